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
	"errors"
	"fmt"
	"testing"
)

func TestIsReconnectEligible(t *testing.T) {
	for _, tt := range []struct {
		code Code
		want bool
	}{
		{CodeEPIPE, true},
		{CodeConnRefused, true},
		{CodeSessionClosed, true},
		{CodeUnknownStream, false},
		{CodeNone, false},
	} {
		if got := IsReconnectEligible(tt.code); got != tt.want {
			t.Errorf("IsReconnectEligible(%d) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestClassifyErrorUnwraps(t *testing.T) {
	base := &Error{Code: CodeEPIPE, Endpoint: "localhost:1", Message: "broken pipe"}
	wrapped := fmt.Errorf("send failed: %w", base)

	code, ok := ClassifyError(wrapped)
	if !ok || code != CodeEPIPE {
		t.Fatalf("ClassifyError(wrapped) = (%d, %v), want (%d, true)", code, ok, CodeEPIPE)
	}
}

func TestClassifyErrorNotCoder(t *testing.T) {
	if _, ok := ClassifyError(errors.New("plain")); ok {
		t.Fatal("ClassifyError(plain error) reported a code, want false")
	}
}
