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
	"strconv"
	"time"

	"github.com/ajith-anz/grpcmux/codes"
	"github.com/ajith-anz/grpcmux/internal/transport"
)

// Mode selects whether a Client ends the request stream on Send (Unary) or
// leaves it open for subsequent Push calls (Streaming), per spec §3.
type Mode int

const (
	// Unary ends the request stream when Send is called.
	Unary Mode = iota
	// Streaming leaves the request stream open; callers drive it with
	// Push until they pass end=true.
	Streaming
)

func (m Mode) String() string {
	switch m {
	case Unary:
		return "unary"
	case Streaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// Settings holds the client-level knobs recognized by a Client, per spec
// §6.3.
type Settings struct {
	Timeout                   time.Duration
	OpenEOFCheck              bool
	PackageMaxLength          int
	HTTP2MaxConcurrentStreams uint32
	HTTP2MaxFrameSize         uint32
	MaxRetries                int
	ForceReconnect            bool
	// ReceiveTimeout overrides the per-call timeout passed to Recv/Acquire
	// whenever it is >= 0 (0 included, meaning "poll and return
	// immediately"). -1 (the default) defers to the caller's timeout.
	ReceiveTimeout time.Duration
}

// DefaultSettings returns the documented defaults from spec §6.3.
func DefaultSettings() Settings {
	return Settings{
		Timeout:                   3 * time.Second,
		OpenEOFCheck:              true,
		PackageMaxLength:          2 << 20,
		HTTP2MaxConcurrentStreams: 1000,
		HTTP2MaxFrameSize:         2 << 20,
		MaxRetries:                10,
		ForceReconnect:            false,
		ReceiveTimeout:            -1,
	}
}

func (s Settings) toTransportSettings() transport.Settings {
	return transport.Settings{
		Timeout:                   s.Timeout,
		OpenEOFCheck:              s.OpenEOFCheck,
		PackageMaxLength:          s.PackageMaxLength,
		HTTP2MaxConcurrentStreams: s.HTTP2MaxConcurrentStreams,
		HTTP2MaxFrameSize:         s.HTTP2MaxFrameSize,
	}
}

// Trailers is the gRPC status pair surfaced at end-of-stream, per spec
// §6.2/§GLOSSARY. GRPCStatus uses the canonical codes.Code enum rather than
// the bare wire string, so callers classify it the same way the rest of
// gRPC does.
type Trailers struct {
	GRPCStatus  codes.Code
	GRPCMessage string
}

// deadlineExceededTrailers is synthesized by Recv on timeout, per spec
// §4.1.1 and §7: not an error, a terminal delivery with grpc-status
// DeadlineExceeded.
func deadlineExceededTrailers() Trailers {
	return Trailers{GRPCStatus: codes.DeadlineExceeded, GRPCMessage: "DEADLINE_EXCEEDED"}
}

func trailersFromWire(headers map[string][]string) Trailers {
	t := Trailers{GRPCStatus: codes.OK, GRPCMessage: ""}
	if v := firstValue(headers, "grpc-status"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			t.GRPCStatus = codes.Code(n)
		}
	}
	if v := firstValue(headers, "grpc-message"); v != "" {
		t.GRPCMessage = v
	}
	return t
}

func firstValue(headers map[string][]string, key string) string {
	if vs, ok := headers[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}
