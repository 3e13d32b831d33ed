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
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFrameRoundTrip(t *testing.T) {
	for _, payload := range [][]byte{
		[]byte("world"),
		[]byte(""),
		make([]byte, 1024),
	} {
		framed := Frame(payload)
		if len(framed) != len(payload)+frameHeaderLen {
			t.Fatalf("len(Frame(p)) = %d, want %d", len(framed), len(payload)+frameHeaderLen)
		}
		got, err := Strip5(framed)
		if err != nil {
			t.Fatalf("Strip5: %v", err)
		}
		if diff := cmp.Diff(payload, got); diff != "" {
			t.Fatalf("Strip5(Frame(p)) mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestFrameLiteralExample(t *testing.T) {
	got := Frame([]byte("world"))
	want := []byte("\x00\x00\x00\x00\x05world")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Frame(\"world\") mismatch (-want +got):\n%s", diff)
	}
}

func TestStrip5Errors(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"too short", []byte{0, 0, 0}},
		{"declares more than available", []byte{0, 0, 0, 0, 10, 'a', 'b'}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Strip5(tt.body); err == nil {
				t.Fatal("expected an error, got nil")
			}
		})
	}
}
