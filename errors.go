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
	"fmt"

	"github.com/ajith-anz/grpcmux/internal/transport"
)

// UnknownStreamError is returned by Client.Recv and Client.Push when asked
// for a stream id the Client never issued, per spec §6.4 (code 86).
type UnknownStreamError struct {
	StreamID int
}

func (e *UnknownStreamError) Error() string {
	return fmt.Sprintf("grpcmux: unknown stream %d", e.StreamID)
}

// TransportCode implements transport.Coder so callers can classify this
// error the same way as any other transport-level failure.
func (e *UnknownStreamError) TransportCode() transport.Code { return transport.CodeUnknownStream }
