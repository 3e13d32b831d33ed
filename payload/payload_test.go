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

package payload

import (
	"testing"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

func TestJSONPayload(t *testing.T) {
	p := JSON(`{"a":1}`)
	b, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(b) != `{"a":1}` {
		t.Fatalf("Bytes() = %q, want %q", b, `{"a":1}`)
	}
	if p.Encoding() != "json" {
		t.Fatalf("Encoding() = %q, want %q", p.Encoding(), "json")
	}
}

func TestProtoPayload(t *testing.T) {
	msg := wrapperspb.String("hello")
	p := Proto{Message: msg}

	b, err := p.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(b) == 0 {
		t.Fatal("Bytes() returned empty output for a non-empty message")
	}
	if p.Encoding() != "proto" {
		t.Fatalf("Encoding() = %q, want %q", p.Encoding(), "proto")
	}
}

func TestProtoPayloadEmptyMessage(t *testing.T) {
	p := Proto{Message: &wrapperspb.StringValue{}}
	if _, err := p.Bytes(); err != nil {
		t.Fatalf("Bytes: %v", err)
	}
}
