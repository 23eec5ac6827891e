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
package observability

import (
	"context"
	"time"
)

// NoopTracer discards all spans and metrics. Used when tracing is disabled
// and in tests.
type NoopTracer struct{}

// NewNoopTracer returns a tracer that does nothing.
func NewNoopTracer() *NoopTracer { return &NoopTracer{} }

// StartSpan returns the context unchanged with a throwaway span.
func (t *NoopTracer) StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span) {
	span := &Span{Name: name, StartTime: time.Now()}
	for _, opt := range opts {
		opt(span)
	}
	return ctx, span
}

// EndSpan records the end time and discards the span.
func (t *NoopTracer) EndSpan(span *Span) {
	if span != nil {
		span.EndTime = time.Now()
	}
}

// RecordMetric discards the metric.
func (t *NoopTracer) RecordMetric(name string, value float64, labels map[string]string) {}
