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
	"encoding/binary"
	"fmt"
)

// frameHeaderLen is the one compression-flag octet plus the four
// big-endian length octets every gRPC message is prefixed with on the
// wire.
const frameHeaderLen = 5

// Frame prepends the gRPC length-prefix header to payload: one octet
// compression flag (always 0 in this core) followed by a big-endian u32
// length.
func Frame(payload []byte) []byte {
	out := make([]byte, frameHeaderLen+len(payload))
	out[0] = 0
	binary.BigEndian.PutUint32(out[1:5], uint32(len(payload)))
	copy(out[5:], payload)
	return out
}

// Strip5 removes the five-octet gRPC framing header from body and returns
// the remaining payload. It returns an error if body is shorter than the
// header or the declared length doesn't fit what's left.
func Strip5(body []byte) ([]byte, error) {
	if len(body) < frameHeaderLen {
		return nil, fmt.Errorf("transport: frame too short: %d bytes", len(body))
	}
	n := binary.BigEndian.Uint32(body[1:5])
	rest := body[frameHeaderLen:]
	if uint32(len(rest)) < n {
		return nil, fmt.Errorf("transport: frame declares %d bytes, have %d", n, len(rest))
	}
	return rest[:n], nil
}
