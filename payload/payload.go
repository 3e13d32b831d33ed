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

// Package payload implements the message-payload capability of spec §6.1:
// a caller supplies either already-serialized bytes ("json") or a message
// exposing a serializeToString-equivalent ("proto"). The core itself never
// looks inside the returned bytes; it treats them as an opaque octet
// string of known length.
package payload

import "google.golang.org/protobuf/proto"

// Payload is anything the Client can frame and send. Bytes returns the
// serialized form; Encoding names the wire encoding echoed into the
// content-type header ("proto" or "json").
type Payload interface {
	Bytes() ([]byte, error)
	Encoding() string
}

// JSON wraps a pre-serialized JSON payload. Callers that already hold
// serialized bytes (the common case for "json" per spec §6.1) use this
// directly.
type JSON []byte

// Bytes implements Payload.
func (j JSON) Bytes() ([]byte, error) { return []byte(j), nil }

// Encoding implements Payload.
func (JSON) Encoding() string { return "json" }

// Proto wraps a proto.Message, serializing it with
// google.golang.org/protobuf on demand — the Go analog of the source's
// serializeToString() capability.
type Proto struct {
	Message proto.Message
}

// Bytes implements Payload.
func (p Proto) Bytes() ([]byte, error) { return proto.Marshal(p.Message) }

// Encoding implements Payload.
func (Proto) Encoding() string { return "proto" }
