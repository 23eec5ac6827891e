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
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ErrNotRecording is returned by recorder operations that need an active
// recording.
var ErrNotRecording = errors.New("no recording in progress")

// RecorderSink persists a finished recording. *Registry satisfies it.
type RecorderSink interface {
	Register(ctx context.Context, p *types.Protocol, replaceDuplicates bool) (RegisterResult, error)
}

// Recorder reifies live capability traffic into a protocol definition. While
// a recording is active the broker calls RecordStep for every dispatched
// capability_request (except intent routing) and the executor does the same
// for direct function calls. Single writer (the dispatch path), single reader
// (the caller of Stop).
type Recorder struct {
	sink   RecorderSink
	logger *zap.Logger

	mu        sync.Mutex
	current   *types.Protocol
	replaying bool
}

// NewRecorder creates a recorder persisting into sink on Stop.
func NewRecorder(sink RecorderSink, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{sink: sink, logger: logger}
}

// Active implements broker.StepRecorder. A recording being replayed is not
// active: its own steps passing back through the dispatch hooks must not be
// re-appended.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && !r.replaying
}

// Start begins a new recording. An in-progress recording is discarded.
func (r *Recorder) Start(name, description string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.logger.Warn("recording restarted, previous recording discarded",
			zap.String("discarded", r.current.Name))
	}
	r.current = &types.Protocol{
		Name:        name,
		Description: description,
	}
	r.logger.Info("recording started", zap.String("name", name))
}

// RecordStep implements broker.StepRecorder: appends one dispatched
// capability call to the in-flight protocol. A call with no active recording
// is ignored.
func (r *Recorder) RecordStep(agent, function string, params map[string]any, mappings map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil || r.replaying {
		return
	}
	r.current.Steps = append(r.current.Steps, types.ProtocolStep{
		Agent:             agent,
		Function:          function,
		Parameters:        copyParams(params),
		ParameterMappings: copyMappings(mappings),
	})
	r.logger.Debug("step recorded",
		zap.String("agent", agent),
		zap.String("function", function),
		zap.Int("step_index", len(r.current.Steps)-1))
}

// ReplaceStep overwrites a previously recorded step.
func (r *Recorder) ReplaceStep(index int, agent, function string, params map[string]any, mappings map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNotRecording
	}
	if index < 0 || index >= len(r.current.Steps) {
		return fmt.Errorf("step index %d out of range [0, %d)", index, len(r.current.Steps))
	}
	r.current.Steps[index] = types.ProtocolStep{
		Agent:             agent,
		Function:          function,
		Parameters:        copyParams(params),
		ParameterMappings: copyMappings(mappings),
	}
	return nil
}

// SetTriggerPhrases attaches trigger phrases to the in-flight recording so
// the finished protocol is matchable.
func (r *Recorder) SetTriggerPhrases(phrases []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return ErrNotRecording
	}
	r.current.TriggerPhrases = append([]string(nil), phrases...)
	return nil
}

// Snapshot returns a copy of the in-flight protocol, or nil when idle.
func (r *Recorder) Snapshot() *types.Protocol {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return nil
	}
	return r.current.Clone()
}

// Stop finalizes the recording, persists it through the sink, and returns
// the stored protocol. The recorder is idle afterwards.
func (r *Recorder) Stop(ctx context.Context) (*types.Protocol, error) {
	r.mu.Lock()
	p := r.current
	r.current = nil
	r.mu.Unlock()

	if p == nil {
		return nil, ErrNotRecording
	}
	result, err := r.sink.Register(ctx, p, false)
	if err != nil {
		return nil, fmt.Errorf("failed to persist recording %q: %w", p.Name, err)
	}
	r.logger.Info("recording stopped",
		zap.String("name", p.Name),
		zap.String("id", result.Protocol.ID),
		zap.Int("steps", len(result.Protocol.Steps)))
	return result.Protocol, nil
}

// Clear drops the in-flight recording without persisting.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current != nil {
		r.logger.Info("recording cleared", zap.String("name", r.current.Name))
	}
	r.current = nil
}

// Replay re-runs the in-flight recording through the executor without
// persisting it. Recording is suspended for the duration so the replayed
// dispatches are not appended back onto the recording; it resumes afterwards.
func (r *Recorder) Replay(ctx context.Context, exec *Executor, opts ExecuteOptions) (*ExecutionResult, error) {
	r.mu.Lock()
	if r.current == nil {
		r.mu.Unlock()
		return nil, ErrNotRecording
	}
	if len(r.current.Steps) == 0 {
		name := r.current.Name
		r.mu.Unlock()
		return nil, fmt.Errorf("recording %q has no steps", name)
	}
	p := r.current.Clone()
	r.replaying = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.replaying = false
		r.mu.Unlock()
	}()
	return exec.Execute(ctx, p, opts), nil
}

func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func copyMappings(mappings map[string]string) map[string]string {
	if mappings == nil {
		return nil
	}
	out := make(map[string]string, len(mappings))
	for k, v := range mappings {
		out[k] = v
	}
	return out
}
