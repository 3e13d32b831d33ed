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
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ajith-anz/grpcmux/codes"
	"github.com/ajith-anz/grpcmux/internal/transport"
	"github.com/ajith-anz/grpcmux/internal/transporttest"
)

func newConnectedClient(t *testing.T, mode Mode, settings Settings) (*Client, *transporttest.Fake) {
	t.Helper()
	fake := transporttest.NewFake("test.local:443")
	c := New("test.local:443", mode, fake, settings)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, fake
}

// Scenario 1 of spec §8: unary happy path.
func TestUnaryHappyPath(t *testing.T) {
	c, fake := newConnectedClient(t, Unary, DefaultSettings())

	streamID, err := c.Send(context.Background(), "/svc/M", []byte("hello"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if streamID != 1 {
		t.Fatalf("streamID = %d, want 1", streamID)
	}

	fake.Deliver(&transport.Response{
		StreamID: streamID,
		Data:     transport.Frame([]byte("world")),
		Trailers: map[string][]string{"grpc-status": {"0"}},
	})

	payload, trailers, err := c.Recv(streamID, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(payload) != "world" {
		t.Fatalf("payload = %q, want %q", payload, "world")
	}
	want := Trailers{GRPCStatus: codes.OK, GRPCMessage: ""}
	if diff := cmp.Diff(want, trailers); diff != "" {
		t.Fatalf("trailers mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 2 of spec §8: a Recv timeout synthesizes DEADLINE_EXCEEDED
// rather than returning an error.
func TestRecvTimeout(t *testing.T) {
	c, _ := newConnectedClient(t, Unary, DefaultSettings())

	streamID, err := c.Send(context.Background(), "/svc/M", []byte("hi"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	payload, trailers, err := c.Recv(streamID, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("Recv returned an error on timeout, want nil: %v", err)
	}
	if payload != nil {
		t.Fatalf("payload = %v, want nil", payload)
	}
	want := Trailers{GRPCStatus: codes.DeadlineExceeded, GRPCMessage: "DEADLINE_EXCEEDED"}
	if diff := cmp.Diff(want, trailers); diff != "" {
		t.Fatalf("trailers mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 3 of spec §8: concurrent sends hitting a reconnect-eligible
// error coalesce into exactly one reconnect.
func TestReconnectCoalescing(t *testing.T) {
	fake := transporttest.NewFake("test.local:443")
	fake.Script(transport.CodeConnRefused, transport.CodeConnRefused)

	settings := DefaultSettings()
	settings.ForceReconnect = true
	c := New("test.local:443", Unary, fake, settings)
	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Send(context.Background(), "/svc/M", []byte("x"), "proto")
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("send %d: %v", i, err)
		}
	}
	if got := fake.Reconnects(); got != 1 {
		t.Fatalf("Reconnects() = %d, want 1", got)
	}
}

// Scenario 4 of spec §8: client-streaming aggregate reply.
func TestClientStreamingAggregateReply(t *testing.T) {
	c, fake := newConnectedClient(t, Streaming, DefaultSettings())

	streamID, err := c.Send(context.Background(), "/svc/Stream", []byte("a"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Push(streamID, []byte("b"), "proto", false); err != nil {
		t.Fatalf("Push b: %v", err)
	}
	if err := c.Push(streamID, []byte("c"), "proto", true); err != nil {
		t.Fatalf("Push c (end): %v", err)
	}

	fake.Deliver(&transport.Response{
		StreamID: streamID,
		Data:     transport.Frame([]byte("abc")),
		Pipeline: false,
		Trailers: map[string][]string{"grpc-status": {"0"}},
	})

	payload, _, err := c.Recv(streamID, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(payload) != "abc" {
		t.Fatalf("payload = %q, want %q", payload, "abc")
	}

	if _, _, err := c.Recv(streamID, 50*time.Millisecond); err == nil {
		t.Fatal("Recv on an unregistered stream id should error, got nil")
	}
}

// TestUnarySplitDataAndTrailerPush covers the case a transport delivers a
// unary response as two pushes — a data chunk (Pipeline true, no trailers)
// followed by a trailer-only push (Pipeline false) — instead of one
// combined delivery. Recv must surface the real trailers from the second
// push, not unregister (and drop them) after the first.
func TestUnarySplitDataAndTrailerPush(t *testing.T) {
	c, fake := newConnectedClient(t, Unary, DefaultSettings())

	streamID, err := c.Send(context.Background(), "/svc/M", []byte("hello"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	fake.Deliver(&transport.Response{
		StreamID: streamID,
		Data:     transport.Frame([]byte("world")),
		Pipeline: true,
	})
	fake.Deliver(&transport.Response{
		StreamID: streamID,
		Pipeline: false,
		Trailers: map[string][]string{"grpc-status": {"5"}, "grpc-message": {"NOT_FOUND"}},
	})

	payload, trailers, err := c.Recv(streamID, time.Second)
	if err != nil {
		t.Fatalf("Recv (data push): %v", err)
	}
	if string(payload) != "world" {
		t.Fatalf("payload = %q, want %q", payload, "world")
	}
	if trailers.GRPCStatus != codes.OK {
		t.Fatalf("GRPCStatus on the data push = %v, want %v (not yet terminal)", trailers.GRPCStatus, codes.OK)
	}

	_, trailers, err = c.Recv(streamID, time.Second)
	if err != nil {
		t.Fatalf("Recv (trailer push): %v", err)
	}
	if trailers.GRPCStatus != codes.NotFound {
		t.Fatalf("GRPCStatus = %v, want %v", trailers.GRPCStatus, codes.NotFound)
	}
	if trailers.GRPCMessage != "NOT_FOUND" {
		t.Fatalf("GRPCMessage = %q, want %q", trailers.GRPCMessage, "NOT_FOUND")
	}
}

func TestPushUnknownStream(t *testing.T) {
	c, _ := newConnectedClient(t, Streaming, DefaultSettings())

	err := c.Push(999, []byte("x"), "proto", false)
	if err == nil {
		t.Fatal("Push on an unknown stream should error, got nil")
	}
	if _, ok := err.(*UnknownStreamError); !ok {
		t.Fatalf("error type = %T, want *UnknownStreamError", err)
	}
}

func TestZeroLengthResponsePreserved(t *testing.T) {
	c, fake := newConnectedClient(t, Unary, DefaultSettings())

	streamID, err := c.Send(context.Background(), "/svc/M", []byte("x"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	fake.Deliver(&transport.Response{
		StreamID: streamID,
		Data:     transport.Frame(nil),
		Trailers: map[string][]string{"grpc-status": {"0"}},
	})

	payload, _, err := c.Recv(streamID, time.Second)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if payload == nil || len(payload) != 0 {
		t.Fatalf("payload = %#v, want a non-nil empty slice", payload)
	}
}

func TestReceiveTimeoutSettingOverridesCallerTimeout(t *testing.T) {
	settings := DefaultSettings()
	settings.ReceiveTimeout = 0
	c, _ := newConnectedClient(t, Unary, settings)

	streamID, err := c.Send(context.Background(), "/svc/M", []byte("x"), "proto")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	start := time.Now()
	_, trailers, err := c.Recv(streamID, time.Hour)
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("Recv took %s, want near-immediate return (ReceiveTimeout=0 overrides caller timeout)", elapsed)
	}
	if trailers.GRPCStatus != codes.DeadlineExceeded {
		t.Fatalf("GRPCStatus = %v, want %v", trailers.GRPCStatus, codes.DeadlineExceeded)
	}
}
