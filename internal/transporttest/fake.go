/*
 *
 * Copyright 2024 gRPC authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 */

// Package transporttest provides an in-process, channel-driven fake of
// transport.Transport, in the teacher's tradition of hand-written stubs
// (internal/balancer/stub) rather than a generated mock. It makes the
// reconnect-coalescing and timeout scenarios from spec §8 deterministically
// testable without a real socket.
package transporttest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajith-anz/grpcmux/internal/transport"
)

// Fake is an in-memory transport.Transport. Use Deliver to push a
// *transport.Response the Client's receiver loop will observe from
// Recv/Read, and Script to control what Send returns on each call.
type Fake struct {
	Endpoint string

	mu          sync.Mutex
	connected   bool
	closed      bool
	settings    transport.Settings
	script      []transport.Code
	scriptIndex int
	reconnects  int64

	responses chan *transport.Response

	nextStreamID atomic.Int64

	// ConnectErr, if set, makes Connect fail with this error.
	ConnectErr error
}

// NewFake returns a ready, disconnected Fake.
func NewFake(endpoint string) *Fake {
	return &Fake{
		Endpoint:  endpoint,
		responses: make(chan *transport.Response, 256),
	}
}

// Script installs the sequence of error codes successive Send calls should
// report before reverting to success.
func (f *Fake) Script(codes ...transport.Code) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = codes
	f.scriptIndex = 0
}

// Deliver enqueues a response as if produced by the remote peer. Tests use
// this to simulate the server's side of a call.
func (f *Fake) Deliver(resp *transport.Response) {
	f.responses <- resp
}

// Reconnects reports how many times Connect has been called after the
// first successful connect (i.e. actual reconnects, not the initial dial).
func (f *Fake) Reconnects() int64 {
	return atomic.LoadInt64(&f.reconnects)
}

// Connect implements transport.Transport.
func (f *Fake) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	if f.connected {
		atomic.AddInt64(&f.reconnects, 1)
	}
	f.connected = true
	f.closed = false
	return nil
}

// Configure implements transport.Transport.
func (f *Fake) Configure(settings transport.Settings) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settings = settings
}

// Send implements transport.Transport.
func (f *Fake) Send(ctx context.Context, req *transport.Request) (int, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return 0, &transport.Error{Code: transport.CodeSessionClosed, Endpoint: f.Endpoint, Message: "session closed"}
	}
	var code transport.Code
	if f.scriptIndex < len(f.script) {
		code = f.script[f.scriptIndex]
		f.scriptIndex++
	}
	f.mu.Unlock()

	if code != transport.CodeNone {
		return 0, &transport.Error{Code: code, Endpoint: f.Endpoint, Message: "scripted failure"}
	}
	return int(f.nextStreamID.Add(1)), nil
}

// Write implements transport.Transport.
func (f *Fake) Write(streamID int, data []byte, end bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return &transport.Error{Code: transport.CodeSessionClosed, Endpoint: f.Endpoint, Message: "session closed"}
	}
	return nil
}

func (f *Fake) read(timeout time.Duration) (*transport.Response, error) {
	if timeout < 0 {
		return <-f.responses, nil
	}
	select {
	case resp := <-f.responses:
		return resp, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// Recv implements transport.Transport.
func (f *Fake) Recv(timeout time.Duration) (*transport.Response, error) { return f.read(timeout) }

// Read implements transport.Transport.
func (f *Fake) Read(timeout time.Duration) (*transport.Response, error) { return f.read(timeout) }

// Close implements transport.Transport.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Stats implements transport.Transport.
func (f *Fake) Stats() transport.Stats {
	return transport.Stats{}
}

var _ transport.Transport = (*Fake)(nil)
