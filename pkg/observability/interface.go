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

// Package observability provides the tracing seam and the append-only
// usage/interaction log sinks consumed by the broker, executor, and
// orchestrator.
package observability

import (
	"context"
	"time"
)

// Tracer instruments runtime operations.
//
// Thread-safe: all methods can be called concurrently.
type Tracer interface {
	// StartSpan creates a new span and returns a context containing it.
	StartSpan(ctx context.Context, name string, opts ...SpanOption) (context.Context, *Span)

	// EndSpan completes a span and exports it. Call via defer after StartSpan.
	EndSpan(span *Span)

	// RecordMetric records a point-in-time metric value with labels.
	RecordMetric(name string, value float64, labels map[string]string)
}

// Span is a single timed operation with attributes.
type Span struct {
	Name       string
	StartTime  time.Time
	EndTime    time.Time
	Attributes map[string]any
}

// SetAttribute records a key/value attribute on the span. Nil-safe.
func (s *Span) SetAttribute(key string, value any) {
	if s == nil {
		return
	}
	if s.Attributes == nil {
		s.Attributes = make(map[string]any)
	}
	s.Attributes[key] = value
}

// Duration returns the elapsed span time, using now when the span is open.
func (s *Span) Duration() time.Duration {
	if s == nil {
		return 0
	}
	end := s.EndTime
	if end.IsZero() {
		end = time.Now()
	}
	return end.Sub(s.StartTime)
}

// SpanOption configures a span at creation.
type SpanOption func(*Span)

// WithAttribute sets an initial attribute on the span.
func WithAttribute(key string, value any) SpanOption {
	return func(s *Span) {
		s.SetAttribute(key, value)
	}
}

// SpanFromContext retrieves the current span from context, if any.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(spanContextKey).(*Span); ok {
		return span
	}
	return nil
}

// ContextWithSpan returns a new context with the span attached.
func ContextWithSpan(ctx context.Context, span *Span) context.Context {
	return context.WithValue(ctx, spanContextKey, span)
}

type contextKey string

const spanContextKey contextKey = "jarvis.span"
