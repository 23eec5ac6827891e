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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestSpanAttributes(t *testing.T) {
	tracer := NewNoopTracer()
	_, span := tracer.StartSpan(context.Background(), "test.op", WithAttribute("capability", "lighting"))
	span.SetAttribute("receivers", 2)
	tracer.EndSpan(span)

	assert.Equal(t, "test.op", span.Name)
	assert.Equal(t, "lighting", span.Attributes["capability"])
	assert.Equal(t, 2, span.Attributes["receivers"])
	assert.False(t, span.EndTime.IsZero())
	assert.GreaterOrEqual(t, span.Duration(), time.Duration(0))
}

func TestSpanNilSafety(t *testing.T) {
	var span *Span
	span.SetAttribute("k", "v")
	assert.Zero(t, span.Duration())
	NewNoopTracer().EndSpan(nil)
}

func TestSpanContextRoundTrip(t *testing.T) {
	span := &Span{Name: "parent"}
	ctx := ContextWithSpan(context.Background(), span)
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Nil(t, SpanFromContext(context.Background()))
}

func TestZapActivityLogger(t *testing.T) {
	l := NewZapActivityLogger(zaptest.NewLogger(t))
	assert.NoError(t, l.LogUsage(context.Background(), &UsageEntry{
		ProtocolName: "blue_lights_on",
		Success:      true,
	}))
	assert.NoError(t, l.LogInteraction(context.Background(), &InteractionEntry{
		Utterance: "blue lights",
		Success:   true,
	}))

	// Nil logger falls back to a nop logger.
	assert.NoError(t, NewZapActivityLogger(nil).LogUsage(context.Background(), &UsageEntry{}))
}
