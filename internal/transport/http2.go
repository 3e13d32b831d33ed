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

package transport

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	grpcsyscall "github.com/ajith-anz/grpcmux/internal/syscall"
)

// HTTP2Options configures the reference transport. A nil TLSConfig dials
// plaintext HTTP/2 (h2c); callers that need TLS supply a configured
// *tls.Config, matching spec §1's assumption that credential/TLS material
// is applied by the transport layer, not the core.
type HTTP2Options struct {
	TLSConfig *tls.Config
}

// HTTP2 is the reference Transport implementation, built on
// golang.org/x/net/http2. One HTTP2 multiplexes many logical streams over
// a single underlying HTTP/2 session, same as the capability spec §6.1
// describes.
type HTTP2 struct {
	endpoint string
	opts     HTTP2Options

	mu       sync.Mutex
	settings Settings
	client   *http.Client
	h2tr     *http2.Transport
	closed   bool

	nextStreamID atomic.Int64
	streamsMu    sync.Mutex
	streams      map[int]*clientStream

	responses chan *Response

	statsMu sync.Mutex
	stats   Stats
}

type clientStream struct {
	writer io.WriteCloser
}

// NewHTTP2 returns an unconnected HTTP2 transport targeting endpoint
// ("host:port").
func NewHTTP2(endpoint string, opts HTTP2Options) *HTTP2 {
	return &HTTP2{
		endpoint:  endpoint,
		opts:      opts,
		streams:   make(map[int]*clientStream),
		responses: make(chan *Response, 64),
	}
}

// Connect implements Transport.
func (t *HTTP2) Connect(ctx context.Context) error {
	dialer := &net.Dialer{}
	h2tr := &http2.Transport{}
	if t.opts.TLSConfig != nil {
		h2tr.TLSClientConfig = t.opts.TLSConfig
	} else {
		// h2c: pretend every "TLS" dial is a plain TCP dial, the standard
		// trick for talking cleartext HTTP/2 with golang.org/x/net/http2.
		h2tr.AllowHTTP = true
		h2tr.DialTLSContext = func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
			return dialer.DialContext(ctx, network, addr)
		}
	}

	probe, err := dialer.DialContext(ctx, "tcp", t.endpoint)
	if err != nil {
		return t.classify(err)
	}
	probe.Close()

	t.mu.Lock()
	if t.settings.HTTP2MaxFrameSize > 0 {
		h2tr.MaxReadFrameSize = t.settings.HTTP2MaxFrameSize
	}
	t.h2tr = h2tr
	t.client = &http.Client{Transport: h2tr}
	t.closed = false
	t.mu.Unlock()
	return nil
}

// Configure implements Transport.
func (t *HTTP2) Configure(settings Settings) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settings = settings
	if t.h2tr != nil && settings.HTTP2MaxFrameSize > 0 {
		t.h2tr.MaxReadFrameSize = settings.HTTP2MaxFrameSize
	}
}

func (t *HTTP2) scheme() string {
	if t.opts.TLSConfig != nil {
		return "https"
	}
	return "http"
}

// Send implements Transport.
func (t *HTTP2) Send(ctx context.Context, req *Request) (int, error) {
	t.mu.Lock()
	client := t.client
	closed := t.closed
	t.mu.Unlock()
	if closed || client == nil {
		return 0, &Error{Code: CodeSessionClosed, Endpoint: t.endpoint, Message: "session closed"}
	}

	pr, pw := io.Pipe()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.scheme()+"://"+t.endpoint+req.Method, pr)
	if err != nil {
		return 0, &Error{Code: CodeSessionClosed, Endpoint: t.endpoint, Message: err.Error()}
	}
	contentType := "application/grpc+proto"
	if req.Encoding == "json" {
		contentType = "application/grpc+json"
	}
	httpReq.Header.Set("content-type", contentType)
	httpReq.Header.Set("te", "trailers")
	httpReq.Header.Set("user-agent", userAgent)

	streamID := int(t.nextStreamID.Add(1))

	t.streamsMu.Lock()
	t.streams[streamID] = &clientStream{writer: pw}
	t.streamsMu.Unlock()

	go t.roundTrip(streamID, httpReq)

	if len(req.Data) > 0 {
		if _, err := pw.Write(req.Data); err != nil {
			return 0, &Error{Code: t.classifyWriteErr(err), Endpoint: t.endpoint, Message: err.Error()}
		}
	}
	if req.EndStream {
		pw.Close()
		t.streamsMu.Lock()
		delete(t.streams, streamID)
		t.streamsMu.Unlock()
	}

	t.statsMu.Lock()
	t.stats.StreamsOpened++
	t.stats.BytesSent += uint64(len(req.Data))
	t.statsMu.Unlock()

	return streamID, nil
}

// Write implements Transport.
func (t *HTTP2) Write(streamID int, data []byte, end bool) error {
	t.streamsMu.Lock()
	cs, ok := t.streams[streamID]
	if ok && end {
		delete(t.streams, streamID)
	}
	t.streamsMu.Unlock()
	if !ok {
		return &Error{Code: CodeUnknownStream, Endpoint: t.endpoint, Message: "unknown stream"}
	}
	if len(data) > 0 {
		if _, err := cs.writer.Write(data); err != nil {
			return &Error{Code: t.classifyWriteErr(err), Endpoint: t.endpoint, Message: err.Error()}
		}
	}
	if end {
		return cs.writer.Close()
	}
	return nil
}

func (t *HTTP2) roundTrip(streamID int, req *http.Request) {
	client := t.client
	resp, err := client.Do(req)
	if err != nil {
		t.responses <- &Response{
			StreamID: streamID,
			Pipeline: false,
			Trailers: map[string][]string{
				"grpc-status":  {"2"}, // UNKNOWN, surfaced as a terminal delivery
				"grpc-message": {err.Error()},
			},
		}
		return
	}
	defer resp.Body.Close()

	// pending holds the most recently read data frame. It is flushed as a
	// mid-stream (Pipeline true) delivery as soon as another frame follows
	// it, and flushed as the terminal delivery — carrying the real
	// trailers, Pipeline false — once the body is exhausted. A unary
	// response has exactly one data frame, so in the common case this
	// frame and the trailers arrive in a single delivery instead of the
	// data and the trailers racing as two separate pushes.
	var pending *Response
	for {
		header := make([]byte, frameHeaderLen)
		if _, err := io.ReadFull(resp.Body, header); err != nil {
			break
		}
		length := int(header[1])<<24 | int(header[2])<<16 | int(header[3])<<8 | int(header[4])
		wire := make([]byte, frameHeaderLen+length)
		copy(wire, header)
		if length > 0 {
			if _, err := io.ReadFull(resp.Body, wire[frameHeaderLen:]); err != nil {
				break
			}
		}
		t.statsMu.Lock()
		t.stats.BytesReceived += uint64(length)
		t.statsMu.Unlock()

		if pending != nil {
			t.responses <- pending
		}
		// Data carries the still-framed wire body; the Client's receiver
		// task strips the 5-octet prefix, per spec.
		pending = &Response{StreamID: streamID, Data: wire, Pipeline: true}
	}

	status := firstOr(resp.Trailer.Values("grpc-status"), "0")
	msg := firstOr(resp.Trailer.Values("grpc-message"), "")
	trailers := map[string][]string{"grpc-status": {status}, "grpc-message": {msg}}

	if pending != nil {
		pending.Pipeline = false
		pending.Trailers = trailers
		t.responses <- pending
		return
	}
	t.responses <- &Response{StreamID: streamID, Pipeline: false, Trailers: trailers}
}

func firstOr(vals []string, fallback string) string {
	if len(vals) > 0 {
		return vals[0]
	}
	return fallback
}

// Recv implements Transport.
func (t *HTTP2) Recv(timeout time.Duration) (*Response, error) {
	return t.read(timeout)
}

// Read implements Transport.
func (t *HTTP2) Read(timeout time.Duration) (*Response, error) {
	return t.read(timeout)
}

func (t *HTTP2) read(timeout time.Duration) (*Response, error) {
	if timeout < 0 {
		resp := <-t.responses
		return resp, nil
	}
	select {
	case resp := <-t.responses:
		return resp, nil
	case <-time.After(timeout):
		return nil, nil
	}
}

// Close implements Transport.
func (t *HTTP2) Close() error {
	t.mu.Lock()
	t.closed = true
	h2tr := t.h2tr
	t.mu.Unlock()
	if h2tr != nil {
		h2tr.CloseIdleConnections()
	}
	return nil
}

// Stats implements Transport.
func (t *HTTP2) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

func (t *HTTP2) classify(err error) error {
	code := t.classifyWriteErr(err)
	return &Error{Code: code, Endpoint: t.endpoint, Message: err.Error()}
}

func (t *HTTP2) classifyWriteErr(err error) Code {
	if errno, ok := grpcsyscall.ClassifyConnectError(err); ok {
		switch errno {
		case grpcsyscall.EPIPE:
			return CodeEPIPE
		case grpcsyscall.ECONNREFUSED:
			return CodeConnRefused
		}
	}
	return CodeSessionClosed
}

const userAgent = "grpcmux/1.0"
