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

import "sync/atomic"

// brokerMetrics holds the broker's monotonic counters.
type brokerMetrics struct {
	direct             atomic.Int64
	queued             atomic.Int64
	broadcast          atomic.Int64
	dropped            atomic.Int64
	backpressureEvents atomic.Int64
	futureCleanups     atomic.Int64
}

// Metrics is a point-in-time snapshot of broker state.
type Metrics struct {
	DirectMessages       int64
	QueuedMessages       int64
	BroadcastMessages    int64
	DroppedMessages      int64
	BackpressureEvents   int64
	FutureCleanups       int64
	QueueDepths          map[string]int
	ActiveCorrelations   int
	CircuitBreakerActive bool
}
