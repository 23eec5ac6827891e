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
package protocol

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ostepan8/jarvis-server/pkg/broker"
)

func newTestRecorder(t *testing.T) (*Recorder, *Registry) {
	t.Helper()
	r := newTestRegistry(t)
	return NewRecorder(r, zaptest.NewLogger(t)), r
}

func TestRecorderLifecycle(t *testing.T) {
	rec, reg := newTestRecorder(t)
	assert.False(t, rec.Active())

	rec.Start("evening_routine", "recorded routine")
	assert.True(t, rec.Active())

	rec.RecordStep("Lights", "set_color_name", map[string]any{"color_name": "red"}, nil)
	rec.RecordStep("Speaker", "announce", map[string]any{"text": "good evening"}, nil)
	require.NoError(t, rec.SetTriggerPhrases([]string{"evening routine"}))

	p, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.False(t, rec.Active())

	require.Len(t, p.Steps, 2)
	assert.Equal(t, "Lights", p.Steps[0].Agent)
	assert.Equal(t, "set_color_name", p.Steps[0].Function)
	assert.Equal(t, "red", p.Steps[0].Parameters["color_name"])
	assert.Equal(t, "Speaker", p.Steps[1].Agent)

	// Persisted through the sink.
	stored, ok := reg.Get("evening_routine")
	require.True(t, ok)
	assert.Equal(t, p.ID, stored.ID)
}

func TestRecorderIgnoresStepsWhileIdle(t *testing.T) {
	rec, _ := newTestRecorder(t)
	rec.RecordStep("Lights", "on", nil, nil)
	assert.Nil(t, rec.Snapshot())
}

func TestRecorderReplaceStep(t *testing.T) {
	rec, _ := newTestRecorder(t)
	rec.Start("r", "")
	rec.RecordStep("Lights", "on", nil, nil)

	require.NoError(t, rec.ReplaceStep(0, "Lights", "set_color_name", map[string]any{"color_name": "blue"}, nil))
	assert.Error(t, rec.ReplaceStep(5, "Lights", "on", nil, nil))

	snap := rec.Snapshot()
	require.Len(t, snap.Steps, 1)
	assert.Equal(t, "set_color_name", snap.Steps[0].Function)
}

func TestRecorderClear(t *testing.T) {
	rec, _ := newTestRecorder(t)
	rec.Start("r", "")
	rec.RecordStep("Lights", "on", nil, nil)
	rec.Clear()

	assert.False(t, rec.Active())
	_, err := rec.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorderStopWhileIdle(t *testing.T) {
	rec, _ := newTestRecorder(t)
	_, err := rec.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestRecorderSnapshotIsACopy(t *testing.T) {
	rec, _ := newTestRecorder(t)
	rec.Start("r", "")
	rec.RecordStep("Lights", "on", map[string]any{"k": "v"}, nil)

	snap := rec.Snapshot()
	snap.Steps[0].Parameters["k"] = "mutated"

	fresh := rec.Snapshot()
	assert.Equal(t, "v", fresh.Steps[0].Parameters["k"])
}

func TestRecorderReplayRunsCapturedSteps(t *testing.T) {
	rec, _ := newTestRecorder(t)

	bus := newFakeBus()
	var order []string
	bus.addProvider("A", map[string]broker.ProviderFunc{
		"first": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			order = append(order, "A:"+params["v"].(string))
			return map[string]any{}, nil
		},
	})
	bus.addProvider("B", map[string]broker.ProviderFunc{
		"second": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			order = append(order, "B:"+params["v"].(string))
			return map[string]any{}, nil
		},
	})
	exec := NewExecutor(bus, nil, nil, nil, zaptest.NewLogger(t))

	rec.Start("replayable", "")
	rec.RecordStep("A", "first", map[string]any{"v": "one"}, nil)
	rec.RecordStep("B", "second", map[string]any{"v": "two"}, nil)

	result, err := rec.Replay(context.Background(), exec, ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"A:one", "B:two"}, order)

	// Replay does not persist and does not stop the recording.
	assert.True(t, rec.Active())
}

func TestRecorderReplayDoesNotReRecordSteps(t *testing.T) {
	rec, _ := newTestRecorder(t)

	bus := newFakeBus()
	bus.addProvider("A", map[string]broker.ProviderFunc{
		"first": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	})
	bus.addProvider("B", map[string]broker.ProviderFunc{
		"second": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{}, nil
		},
	})
	// The executor records direct calls through this same recorder, as wired
	// in production.
	exec := NewExecutor(bus, rec, nil, nil, zaptest.NewLogger(t))

	rec.Start("replayable", "")
	rec.RecordStep("A", "first", nil, nil)
	rec.RecordStep("B", "second", nil, nil)

	result, err := rec.Replay(context.Background(), exec, ExecuteOptions{})
	require.NoError(t, err)
	assert.True(t, result.Success)

	// The replayed dispatches must not be appended back onto the recording.
	snap := rec.Snapshot()
	require.Len(t, snap.Steps, 2)
	assert.Equal(t, "first", snap.Steps[0].Function)
	assert.Equal(t, "second", snap.Steps[1].Function)

	// Recording resumes after replay.
	assert.True(t, rec.Active())
	rec.RecordStep("C", "third", nil, nil)
	require.Len(t, rec.Snapshot().Steps, 3)

	p, err := rec.Stop(context.Background())
	require.NoError(t, err)
	assert.Len(t, p.Steps, 3)
}

func TestRecorderReplayWhileIdle(t *testing.T) {
	rec, _ := newTestRecorder(t)
	exec := NewExecutor(newFakeBus(), nil, nil, nil, zaptest.NewLogger(t))
	_, err := rec.Replay(context.Background(), exec, ExecuteOptions{})
	assert.ErrorIs(t, err, ErrNotRecording)
}
