// Copyright 2026 the Jarvis authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package broker

import (
	"sync"
	"time"
)

// correlationEntry ties a request id to a waiting caller. The value channel
// is buffered so the resolver never blocks; the cancel channel is closed by
// the TTL sweeper or broker shutdown.
type correlationEntry struct {
	value     chan map[string]any
	cancel    chan struct{}
	createdAt time.Time
	resolved  bool
}

// correlationTable is the broker-owned table of pending requests. All writes
// (create, fulfill, remove) are serialized behind the mutex.
type correlationTable struct {
	mu      sync.Mutex
	entries map[string]*correlationEntry
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{entries: make(map[string]*correlationEntry)}
}

// Create registers a new entry for requestID, replacing nothing: a duplicate
// id keeps the original entry and returns false.
func (t *correlationTable) Create(requestID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.entries[requestID]; exists {
		return false
	}
	t.entries[requestID] = &correlationEntry{
		value:     make(chan map[string]any, 1),
		cancel:    make(chan struct{}),
		createdAt: time.Now(),
	}
	return true
}

// Lookup returns the entry for requestID, if any.
func (t *correlationTable) Lookup(requestID string) (*correlationEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	return e, ok
}

// Resolve fulfills the entry with a value. The entry stays in the table until
// the waiter consumes the value (or the TTL sweep reaps it): a response that
// lands before the caller reaches its wait must not be lost. Returns false
// when the entry is missing or already fulfilled (a warning, not an error).
func (t *correlationTable) Resolve(requestID string, value map[string]any) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	if !ok || e.resolved {
		return false
	}
	e.resolved = true
	e.value <- value
	return true
}

// Remove deletes the entry without fulfilling it. Used when a waiter times
// out and abandons the request.
func (t *correlationTable) Remove(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, requestID)
}

// Cancel cancels the entry: any waiter is released with a timeout error.
// Returns true when an unresolved entry was cancelled.
func (t *correlationTable) Cancel(requestID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	if !ok {
		return false
	}
	if !e.resolved {
		e.resolved = true
		close(e.cancel)
	}
	delete(t.entries, requestID)
	return true
}

// SweepExpired cancels every entry older than ttl and returns how many were
// removed.
func (t *correlationTable) SweepExpired(ttl time.Duration) int {
	now := time.Now()
	t.mu.Lock()
	defer t.mu.Unlock()
	swept := 0
	for id, e := range t.entries {
		if now.Sub(e.createdAt) <= ttl {
			continue
		}
		if !e.resolved {
			e.resolved = true
			close(e.cancel)
		}
		delete(t.entries, id)
		swept++
	}
	return swept
}

// CancelAll cancels every outstanding entry. Called on broker shutdown.
func (t *correlationTable) CancelAll() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, e := range t.entries {
		if !e.resolved {
			e.resolved = true
			close(e.cancel)
		}
		delete(t.entries, id)
		n++
	}
	return n
}

// Len returns the number of active entries.
func (t *correlationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
