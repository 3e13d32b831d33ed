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

package grpcmux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ajith-anz/grpcmux/internal/grpcsync"
	"github.com/ajith-anz/grpcmux/internal/transport"
	"github.com/ajith-anz/grpcmux/internal/xstats"
)

// streamState is the per-stream record of spec §3: a single-slot mailbox.
// The stream ends when a delivery arrives with Pipeline false, regardless
// of mode — a real HTTP/2 unary response can arrive as a data push
// followed by a separate trailer-only push, so UNARY must not unregister
// before the delivery that actually carries the trailers.
type streamState struct {
	mailbox chan delivery
}

type delivery struct {
	payload  []byte
	trailers Trailers
	end      bool
}

// Client wraps one HTTP/2 connection (a transport.Transport) and
// multiplexes many logical gRPC streams over it, per spec §3/§4.1.
type Client struct {
	id       string
	endpoint string
	mode     Mode
	settings Settings
	tr       transport.Transport
	log      *slog.Logger

	mu       sync.Mutex
	streams  map[int]*streamState
	spanEnds map[int]func()
	closed   bool

	reconnecting atomic.Bool
	closedEvent  *grpcsync.Event

	rec *xstats.Recorder
}

// New returns an unconnected Client for endpoint, owning tr. Callers must
// call Connect before Send/Push/Recv.
func New(endpoint string, mode Mode, tr transport.Transport, settings Settings) *Client {
	return &Client{
		id:          uuid.NewString(),
		endpoint:    endpoint,
		mode:        mode,
		settings:    settings,
		tr:          tr,
		log:         slog.Default(),
		streams:     make(map[int]*streamState),
		spanEnds:    make(map[int]func()),
		closedEvent: grpcsync.NewEvent(),
	}
}

// SetLogger overrides the Client's logger (defaults to slog.Default()).
func (c *Client) SetLogger(l *slog.Logger) {
	if l != nil {
		c.log = l
	}
}

// SetRecorder wires a telemetry Recorder into the Client: Send/Recv pairs
// get a span and Recv latency measurement, and a forced reconnect
// increments the reconnect counter. A Client without a Recorder behaves
// identically; this is ambient observability, not a spec invariant.
func (c *Client) SetRecorder(r *xstats.Recorder) {
	c.rec = r
}

// ID returns the Client's connection identifier, useful for correlating
// log lines and telemetry across a multiplexed connection.
func (c *Client) ID() string { return c.id }

// Connect establishes the HTTP/2 session and spawns the receiver task, per
// spec §4.1.1/§4.1.5. A failed connect is terminal: there is no retry from
// INIT.
func (c *Client) Connect(ctx context.Context) error {
	c.tr.Configure(c.settings.toTransportSettings())
	if err := c.tr.Connect(ctx); err != nil {
		return err
	}
	go c.receiveLoop()
	return nil
}

// Send submits a POST request with gRPC headers whose body is the
// length-prefixed payload, per spec §4.1.1/§4.1.2. It returns a positive
// stream id on success.
func (c *Client) Send(ctx context.Context, method string, pay []byte, encoding string) (int, error) {
	req := &transport.Request{
		Method:    method,
		Data:      transport.Frame(pay),
		EndStream: c.mode == Unary,
		Encoding:  encoding,
	}

	maxRetries := c.settings.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		streamID, err := c.tr.Send(ctx, req)
		if err == nil && streamID > 0 {
			c.registerStream(streamID)
			if c.rec != nil {
				_, end := c.rec.StartCall(ctx, method)
				c.mu.Lock()
				c.spanEnds[streamID] = end
				c.mu.Unlock()
			}
			c.reconnecting.Store(false)
			return streamID, nil
		}
		if err == nil {
			// Zero error, zero stream id: sleep and retry (spec §4.1.2.5).
			time.Sleep(10 * time.Millisecond)
			continue
		}

		code, classified := transport.ClassifyError(err)
		if classified && transport.IsReconnectEligible(code) && c.settings.ForceReconnect && attempt < maxRetries-1 {
			if c.reconnecting.CompareAndSwap(false, true) {
				c.log.Debug("grpcmux: forcing reconnect", "endpoint", c.endpoint, "code", code)
				c.tr.Close()
				if cErr := c.tr.Connect(ctx); cErr != nil {
					c.reconnecting.Store(false)
					return 0, cErr
				}
				if c.rec != nil {
					c.rec.RecordReconnect(c.endpoint)
				}
				time.Sleep(100 * time.Millisecond)
			} else {
				time.Sleep(10 * time.Millisecond)
			}
			continue
		}

		// Any other non-zero error terminates the loop.
		c.reconnecting.Store(false)
		return 0, err
	}

	c.reconnecting.Store(false)
	return 0, fmt.Errorf("grpcmux: send to %s failed after %d attempts", c.endpoint, maxRetries)
}

func (c *Client) registerStream(streamID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams[streamID] = &streamState{
		mailbox: make(chan delivery, 1),
	}
}

// Push writes an additional length-prefixed payload frame on an open
// stream, per spec §4.1.1. end closes the request side.
func (c *Client) Push(streamID int, pay []byte, encoding string, end bool) error {
	c.mu.Lock()
	_, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return &UnknownStreamError{StreamID: streamID}
	}
	return c.tr.Write(streamID, transport.Frame(pay), end)
}

// Recv blocks until the receiver task delivers a message for streamID, or
// until timeout elapses, per spec §4.1.1. A timeout is not an error: it
// synthesizes a DEADLINE_EXCEEDED trailer with an empty payload.
func (c *Client) Recv(streamID int, timeout time.Duration) ([]byte, Trailers, error) {
	c.mu.Lock()
	st, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return nil, Trailers{}, &UnknownStreamError{StreamID: streamID}
	}

	effective := timeout
	if c.settings.ReceiveTimeout >= 0 {
		effective = c.settings.ReceiveTimeout
	}

	timer := time.NewTimer(effective)
	defer timer.Stop()
	defer c.endSpan(streamID)

	select {
	case d, ok := <-st.mailbox:
		if !ok {
			return []byte{}, Trailers{}, nil
		}
		if d.end {
			// Recv is the sole consumer of a stream's mailbox, so it is the
			// one safe place to unregister: doing this in deliver instead
			// would let the receiver task drop a stream (and the terminal
			// message it's holding) before this call ever looks it up.
			c.mu.Lock()
			delete(c.streams, streamID)
			c.mu.Unlock()
		}
		return d.payload, d.trailers, nil
	case <-timer.C:
		return nil, deadlineExceededTrailers(), nil
	}
}

// endSpan closes out the telemetry span opened for streamID by Send, if
// any. It is a no-op when no Recorder is wired or the span already ended.
func (c *Client) endSpan(streamID int) {
	c.mu.Lock()
	end, ok := c.spanEnds[streamID]
	if ok {
		delete(c.spanEnds, streamID)
	}
	c.mu.Unlock()
	if ok {
		end()
	}
}

// Close sets closed and tears down the transport; the receiver task
// observes closedEvent and exits at its next observation point. Close is
// idempotent.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	c.closedEvent.Fire()
	return c.tr.Close()
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool { return c.closedEvent.HasFired() }

// Stats is a pass-through of transport-level counters, per spec §4.1.1.
func (c *Client) Stats() transport.Stats { return c.tr.Stats() }

// receiveLoop is the single long-lived receiver task of spec §4.1.3. It
// reads one response at a time from the transport, decodes the gRPC
// framing, and routes deliveries to the issuing stream's mailbox.
func (c *Client) receiveLoop() {
	readTimeout := c.settings.Timeout * time.Duration(maxInt(c.settings.MaxRetries, 1))

	for {
		if c.closedEvent.HasFired() {
			return
		}

		var resp *transport.Response
		var err error
		if c.mode == Unary {
			resp, err = c.tr.Recv(readTimeout)
		} else {
			resp, err = c.tr.Read(readTimeout)
		}

		if c.closedEvent.HasFired() {
			return
		}
		if err != nil {
			c.log.Debug("grpcmux: receiver backoff after transport error", "endpoint", c.endpoint, "err", err)
			time.Sleep(time.Second)
			continue
		}
		if resp == nil {
			time.Sleep(time.Second)
			continue
		}

		// A trailer-only push (no message in this delivery, just the
		// terminal status) carries no Data at all; only length-prefixed
		// deliveries go through Strip5.
		var payload []byte
		if len(resp.Data) > 0 {
			p, decodeErr := transport.Strip5(resp.Data)
			if decodeErr != nil {
				c.log.Debug("grpcmux: dropping malformed frame", "endpoint", c.endpoint, "err", decodeErr)
				continue
			}
			payload = p
		} else {
			payload = []byte{}
		}

		d := delivery{payload: payload, trailers: trailersFromWire(resp.Trailers)}
		c.deliver(resp.StreamID, d, !resp.Pipeline)
	}
}

// deliver routes one decoded response to streamID's mailbox, marking it as
// the terminal delivery when endOfStream is set (Pipeline false). It never
// unregisters the stream itself — Recv does that once it has actually
// consumed the terminal delivery — since the real HTTP/2 transport can
// split a single unary response into a data push followed by a separate
// trailer-only push, and the receiver task here runs concurrently with
// whatever Recv calls a caller has made so far.
func (c *Client) deliver(streamID int, d delivery, endOfStream bool) {
	c.mu.Lock()
	st, ok := c.streams[streamID]
	c.mu.Unlock()
	if !ok {
		return
	}

	d.end = endOfStream
	st.mailbox <- d
	if endOfStream {
		close(st.mailbox)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
