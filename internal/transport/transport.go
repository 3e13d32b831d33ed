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

// Package transport defines the capability a Client multiplexes logical
// gRPC streams over, and ships one reference implementation backed by
// HTTP/2.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Code classifies a transport-level failure. It is distinct from
// codes.Code, which classifies the gRPC-status carried in trailers: Code
// describes why a send/connect attempt itself failed.
type Code int

// Recognized transport codes. The numeric values match errno on unix
// platforms where applicable (see internal/syscall), plus two codes
// internal to this module.
const (
	// CodeNone indicates no error.
	CodeNone Code = 0
	// CodeEPIPE is a broken-pipe write failure (errno EPIPE on unix).
	CodeEPIPE Code = 32
	// CodeConnRefused is a refused-connection failure (errno ECONNREFUSED
	// on unix).
	CodeConnRefused Code = 111
	// CodeSessionClosed indicates the HTTP/2 session is unusable: Send was
	// called before Connect or after Close, or a dial/write failed with an
	// error that is neither EPIPE nor ECONNREFUSED.
	CodeSessionClosed Code = 5001
	// CodeUnknownStream is raised by Client.Recv when asked for a stream
	// id it never issued.
	CodeUnknownStream Code = 86
)

// reconnectEligible is the set of Codes that the Client's send path may
// respond to with a forced reconnect when Settings.ForceReconnect is set.
var reconnectEligible = map[Code]bool{
	CodeEPIPE:         true,
	CodeConnRefused:   true,
	CodeSessionClosed: true,
}

// IsReconnectEligible reports whether c is one of the codes that the send
// path treats as a recoverable transport reset.
func IsReconnectEligible(c Code) bool {
	return reconnectEligible[c]
}

// Error is the error type returned by Transport.Connect and Transport.Send.
// It carries the classified Code plus the endpoint the attempt targeted.
// Error() renders Message followed by the endpoint; Message holds the text
// of the underlying failure and is not derived from Code (there is no
// errno-to-text table).
type Error struct {
	Code     Code
	Endpoint string
	Message  string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s", e.Message, e.Endpoint)
	}
	return fmt.Sprintf("transport error %d %s", e.Code, e.Endpoint)
}

// Coder is implemented by errors that carry a transport Code.
type Coder interface {
	TransportCode() Code
}

// TransportCode implements Coder.
func (e *Error) TransportCode() Code { return e.Code }

// ClassifyError extracts a transport Code from err, returning (code, true)
// if err (or something it wraps) implements Coder, or (CodeNone, false)
// otherwise.
func ClassifyError(err error) (Code, bool) {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.TransportCode(), true
	}
	return CodeNone, false
}

// Settings holds the client/connection-level knobs recognized by a
// Transport, mirroring spec §6.3.
type Settings struct {
	Timeout                   time.Duration
	OpenEOFCheck              bool
	PackageMaxLength          int
	HTTP2MaxConcurrentStreams uint32
	HTTP2MaxFrameSize         uint32
}

// DefaultSettings returns the documented defaults from spec §6.3.
func DefaultSettings() Settings {
	return Settings{
		Timeout:                   3 * time.Second,
		OpenEOFCheck:              true,
		PackageMaxLength:          2 << 20, // 2 MiB
		HTTP2MaxConcurrentStreams: 1000,
		HTTP2MaxFrameSize:         2 << 20, // 2 MiB
	}
}

// Request is submitted by Client.Send. Method is the gRPC method path
// (":path"), Data is the already length-prefix-framed body for the first
// write, EndStream ends the request side immediately (UNARY mode), and
// Encoding is echoed into the content-type header ("proto" or "json").
type Request struct {
	Method    string
	Data      []byte
	EndStream bool
	Encoding  string
}

// Response is returned by Transport.Recv/Read. Pipeline true means the
// message is mid-stream (more will follow); false means end-of-stream and
// Trailers carries the final grpc-status/grpc-message pair.
type Response struct {
	StreamID int
	Data     []byte
	Pipeline bool
	Trailers map[string][]string
}

// Stats is a pass-through of transport-level counters, per spec §4.1.1.
type Stats struct {
	StreamsOpened   uint64
	BytesSent       uint64
	BytesReceived   uint64
	ReconnectCount  uint64
}

// Transport is the capability a Client multiplexes logical gRPC streams
// over. It is the "transport" collaborator of spec §6.1: connect/send/
// write/recv/read/close/stats.
type Transport interface {
	// Connect establishes the underlying HTTP/2 session.
	Connect(ctx context.Context) error
	// Configure applies connection-level settings; safe to call before or
	// after Connect (a reconnect re-applies the last Configure call).
	Configure(settings Settings)
	// Send submits req as a new logical stream and returns a positive
	// stream id on success, or 0 plus a classified *Error on failure.
	Send(ctx context.Context, req *Request) (streamID int, err error)
	// Write appends an additional length-prefixed frame to an open
	// stream previously returned by Send; end closes the request side.
	Write(streamID int, data []byte, end bool) error
	// Recv blocks for up to timeout for the next response in UNARY mode.
	// Returns (nil, nil) on timeout/no-data, never an error for timeouts.
	Recv(timeout time.Duration) (*Response, error)
	// Read is the STREAMING-mode analog of Recv.
	Read(timeout time.Duration) (*Response, error)
	// Close tears down the session. Idempotent.
	Close() error
	// Stats returns a snapshot of transport-level counters.
	Stats() Stats
}
