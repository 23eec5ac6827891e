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

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// Priority classifies a message into one of the three broker queues.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// String returns the queue name for metrics and logs.
func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	default:
		return "low"
	}
}

// ClassifyPriority maps a message type to its default priority. Responses and
// errors are urgent because a caller is blocked on them; requests are normal;
// everything else is low.
func ClassifyPriority(messageType string) Priority {
	switch messageType {
	case types.MessageTypeCapabilityResponse, types.MessageTypeError:
		return PriorityHigh
	case types.MessageTypeCapabilityRequest:
		return PriorityNormal
	default:
		return PriorityLow
	}
}

// boundedQueue is a capacity-bounded FIFO of messages. A mutex-guarded slice
// rather than a channel so the backpressure path can evict entries.
type boundedQueue struct {
	mu       sync.Mutex
	items    []*types.Message
	capacity int
}

func newBoundedQueue(capacity int) *boundedQueue {
	return &boundedQueue{capacity: capacity}
}

// Len returns the current queue depth.
func (q *boundedQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// TryPush appends the message unless the queue is full.
func (q *boundedQueue) TryPush(msg *types.Message) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return false
	}
	q.items = append(q.items, msg)
	return true
}

// TryPop removes and returns the oldest message, if any.
func (q *boundedQueue) TryPop() (*types.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	msg := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return msg, true
}
