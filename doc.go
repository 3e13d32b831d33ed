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

// Package grpcmux implements the core of a client-side gRPC runtime: a
// multiplexed HTTP/2 gRPC Client capable of unary and streaming calls with
// automatic reconnection, and a ClientPool that cooperatively shares a
// bounded set of such Clients.
//
// A Client wraps one transport.Transport (an HTTP/2 session) and owns a
// long-lived receiver task that fans inbound frames out to per-stream
// mailboxes. A ClientPool owns up to Size Clients, lazily created, with
// Acquire/Release checkout semantics and a drain that waits for in-flight
// callers rather than interrupting them.
//
// Message serialization, gRPC service stubs, and the HTTP/2 transport
// itself are external collaborators: grpcmux treats a serialized payload
// as an opaque octet string of known length (see package payload) and
// consumes a transport.Transport capability (see package
// internal/transport) rather than owning TLS, connection establishment,
// or framing policy beyond the thin gRPC length-prefix it applies on top.
package grpcmux
