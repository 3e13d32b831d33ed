/*
 *
 * Copyright 2018 gRPC authors.
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

// Package grpcsync implements additional synchronization primitives built on
// top of the sync package.
package grpcsync

import "sync/atomic"

// Event represents a one-time event that may occur in the future.
type Event struct {
	fired int32
	c     chan struct{}
}

// Fire records that the event has occurred. It returns true if this call to
// Fire was the first one for this event; it returns false otherwise.
func (e *Event) Fire() bool {
	if atomic.CompareAndSwapInt32(&e.fired, 0, 1) {
		close(e.c)
		return true
	}
	return false
}

// HasFired returns true if Fire has been called.
func (e *Event) HasFired() bool {
	return atomic.LoadInt32(&e.fired) == 1
}

// Done returns a channel that is closed after Fire is called for the first
// time.
func (e *Event) Done() <-chan struct{} {
	return e.c
}

// NewEvent creates a new, ready-to-use Event.
func NewEvent() *Event {
	return &Event{c: make(chan struct{})}
}
