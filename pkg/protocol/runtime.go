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

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/llm"
	"github.com/ostepan8/jarvis-server/pkg/observability"
)

// Runtime composes the registry, matcher, executor, formatter, and recorder
// into the protocol fast path the orchestrator drives.
type Runtime struct {
	Registry  *Registry
	Matcher   *TriggerMatcher
	Executor  *Executor
	Formatter *ResponseFormatter
	Recorder  *Recorder
}

// NewRuntime wires a runtime over the given collaborators. chat, usage, and
// tracer may be nil.
func NewRuntime(registry *Registry, bus BrokerClient, chat llm.ChatProvider, usage observability.ProtocolUsageLogger, tracer observability.Tracer, logger *zap.Logger) *Runtime {
	if logger == nil {
		logger = zap.NewNop()
	}
	recorder := NewRecorder(registry, logger.Named("recorder"))
	return &Runtime{
		Registry:  registry,
		Matcher:   NewTriggerMatcher(registry, logger.Named("matcher")),
		Executor:  NewExecutor(bus, recorder, usage, tracer, logger.Named("executor")),
		Formatter: NewResponseFormatter(chat, logger.Named("formatter")),
		Recorder:  recorder,
	}
}

// Match runs the trigger matcher against an utterance.
func (rt *Runtime) Match(utterance string) *Match {
	return rt.Matcher.Match(utterance)
}

// Run executes a matched protocol and renders the reply.
func (rt *Runtime) Run(ctx context.Context, m *Match, opts ExecuteOptions) (string, *ExecutionResult) {
	if opts.Arguments == nil {
		opts.Arguments = m.Arguments
	}
	if opts.TriggerPhrase == "" {
		opts.TriggerPhrase = m.TriggerPhrase
	}
	if opts.MatchedPhrase == "" {
		opts.MatchedPhrase = m.MatchedPhrase
	}
	result := rt.Executor.Execute(ctx, m.Protocol, opts)
	return rt.Formatter.Format(ctx, result, opts.Arguments), result
}
