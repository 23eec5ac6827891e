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
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/broker"
	"github.com/ostepan8/jarvis-server/pkg/observability"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// Step error markers stored under the "error" key of a step result.
const (
	StepErrorNoProvider      = "no_provider"
	StepErrorAgentDisallowed = "agent_disallowed"
)

// DefaultStepTimeout bounds one capability round-trip through the broker.
const DefaultStepTimeout = 15 * time.Second

// referenceRe matches "{step_<j>_<fn>.<field>}" inter-step references.
var referenceRe = regexp.MustCompile(`^\{(step_\d+_[^.}]+)\.([^}]+)\}$`)

// argumentRe matches "{<arg_name>}" argument references.
var argumentRe = regexp.MustCompile(`^\{([a-zA-Z_][a-zA-Z0-9_]*)\}$`)

// BrokerClient is the slice of the message broker the executor needs. The
// concrete *broker.MessageBroker satisfies it.
type BrokerClient interface {
	HasProvider(name string) bool
	Functions(providerName string) (map[string]broker.ProviderFunc, bool)
	RequestCapability(ctx context.Context, req broker.CapabilityRequest) (string, []string, error)
	WaitForResponse(requestID string, timeout time.Duration) (map[string]any, error)
}

// ExecuteOptions carries the per-run inputs: matched arguments, the caller's
// provider allow-list, runtime extras merged into every step, and usage-log
// metadata.
type ExecuteOptions struct {
	// Arguments are the protocol arguments (matcher output merged over
	// defaults).
	Arguments map[string]any

	// AllowedAgents restricts which providers steps may target. Nil means no
	// restriction.
	AllowedAgents []string

	// Timeout bounds each broker-dispatched step. Zero means
	// DefaultStepTimeout.
	Timeout time.Duration

	// Extras are merged into every step's effective parameters after
	// defaults and mappings.
	Extras map[string]any

	// Usage-log metadata.
	TriggerPhrase string
	MatchedPhrase string
	UserID        string
	Device        string
	Location      string
	Timezone      string
}

// ExecutionResult reports a protocol run. Results holds exactly one entry per
// step keyed "step_<i>_<function>"; Keys preserves step order.
type ExecutionResult struct {
	Protocol *types.Protocol
	Results  map[string]map[string]any
	Keys     []string
	Success  bool
	Duration time.Duration
}

// StepErrors collects the error texts of failed steps, in step order.
func (r *ExecutionResult) StepErrors() []string {
	var errs []string
	for _, key := range r.Keys {
		if res := r.Results[key]; res != nil {
			if s, ok := res[types.ContentKeyError].(string); ok && s != "" {
				errs = append(errs, s)
			}
		}
	}
	return errs
}

// Executor runs protocol steps sequentially, threading results between steps
// via parameter mappings. Step failures are recorded per step and never abort
// the run.
type Executor struct {
	bus      BrokerClient
	recorder broker.StepRecorder
	usage    observability.ProtocolUsageLogger
	tracer   observability.Tracer
	logger   *zap.Logger
}

// NewExecutor creates an executor over the broker. recorder, usage, and
// tracer may be nil.
func NewExecutor(bus BrokerClient, recorder broker.StepRecorder, usage observability.ProtocolUsageLogger, tracer observability.Tracer, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		bus:      bus,
		recorder: recorder,
		usage:    usage,
		tracer:   tracer,
		logger:   logger,
	}
}

// Execute runs every step of the protocol in order. The returned result maps
// one entry per step; Success is true only when no step recorded an error.
func (e *Executor) Execute(ctx context.Context, p *types.Protocol, opts ExecuteOptions) *ExecutionResult {
	start := time.Now()
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultStepTimeout
	}
	if e.tracer != nil {
		var span *observability.Span
		ctx, span = e.tracer.StartSpan(ctx, "protocol.execute",
			observability.WithAttribute("protocol", p.Name),
			observability.WithAttribute("steps", len(p.Steps)))
		defer e.tracer.EndSpan(span)
	}

	result := &ExecutionResult{
		Protocol: p,
		Results:  make(map[string]map[string]any, len(p.Steps)),
	}

	allowed := allowSet(opts.AllowedAgents)
	for i, step := range p.Steps {
		key := types.StepResultKey(i, step.Function)
		result.Keys = append(result.Keys, key)
		result.Results[key] = e.runStep(ctx, i, step, result, opts, allowed)
	}

	result.Duration = time.Since(start)
	result.Success = len(result.StepErrors()) == 0

	e.logger.Info("protocol executed",
		zap.String("protocol", p.Name),
		zap.String("protocol_id", p.ID),
		zap.Bool("success", result.Success),
		zap.Duration("duration", result.Duration),
		zap.Int("steps", len(p.Steps)))
	e.logUsage(ctx, p, opts, result)
	return result
}

func (e *Executor) runStep(ctx context.Context, index int, step types.ProtocolStep, prior *ExecutionResult, opts ExecuteOptions, allowed map[string]struct{}) map[string]any {
	params := e.effectiveParams(step, prior, opts)

	if allowed != nil {
		if _, ok := allowed[step.Agent]; !ok {
			e.logger.Warn("step agent not in allow-list",
				zap.String("agent", step.Agent),
				zap.String("function", step.Function))
			return map[string]any{types.ContentKeyError: StepErrorAgentDisallowed}
		}
	}

	if !e.bus.HasProvider(step.Agent) {
		e.logger.Warn("step references unknown provider",
			zap.String("agent", step.Agent),
			zap.String("function", step.Function))
		return map[string]any{types.ContentKeyError: StepErrorNoProvider}
	}

	// In-process fast path: a provider's function table sidesteps the queue
	// for deterministic one-party calls. Broker-dispatched steps are recorded
	// by the broker's broadcast hook; direct calls bypass it, so the executor
	// records them itself.
	if fns, ok := e.bus.Functions(step.Agent); ok {
		if fn, ok := fns[step.Function]; ok {
			if e.recorder != nil && e.recorder.Active() {
				e.recorder.RecordStep(step.Agent, step.Function, params, step.ParameterMappings)
			}
			return e.callDirect(ctx, step, fn, params)
		}
	}

	return e.dispatch(ctx, step, params, opts.Timeout)
}

func (e *Executor) callDirect(ctx context.Context, step types.ProtocolStep, fn broker.ProviderFunc, params map[string]any) (result map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("step function panicked",
				zap.String("agent", step.Agent),
				zap.String("function", step.Function),
				zap.Any("panic", r))
			result = map[string]any{types.ContentKeyError: fmt.Sprintf("panic: %v", r)}
		}
	}()
	out, err := fn(ctx, params)
	if err != nil {
		e.logger.Warn("step function failed",
			zap.String("agent", step.Agent),
			zap.String("function", step.Function),
			zap.Error(err))
		return map[string]any{types.ContentKeyError: err.Error()}
	}
	if out == nil {
		out = map[string]any{}
	}
	return out
}

func (e *Executor) dispatch(ctx context.Context, step types.ProtocolStep, params map[string]any, timeout time.Duration) map[string]any {
	requestID, receivers, err := e.bus.RequestCapability(ctx, broker.CapabilityRequest{
		FromAgent:  "protocol_executor",
		Capability: step.Function,
		Data:       params,
		Allowed:    []string{step.Agent},
	})
	if err != nil {
		return map[string]any{types.ContentKeyError: err.Error()}
	}
	if len(receivers) == 0 {
		e.logger.Warn("no provider advertises step capability",
			zap.String("agent", step.Agent),
			zap.String("function", step.Function))
		return map[string]any{types.ContentKeyError: StepErrorNoProvider}
	}

	resp, err := e.bus.WaitForResponse(requestID, timeout)
	if err != nil {
		e.logger.Warn("step dispatch timed out",
			zap.String("agent", step.Agent),
			zap.String("function", step.Function),
			zap.Error(err))
		return map[string]any{types.ContentKeyError: err.Error()}
	}
	if resp == nil {
		resp = map[string]any{}
	}
	return resp
}

// effectiveParams builds merge(parameters, resolved(mappings), extras).
// Mapping expressions reference prior step results ("{step_<j>_<fn>.<field>}")
// or protocol arguments ("{<arg>}"); unresolvable references keep the raw
// expression so the failure is visible downstream.
func (e *Executor) effectiveParams(step types.ProtocolStep, prior *ExecutionResult, opts ExecuteOptions) map[string]any {
	params := make(map[string]any, len(step.Parameters)+len(step.ParameterMappings)+len(opts.Extras))
	for k, v := range step.Parameters {
		params[k] = v
	}
	for name, expr := range step.ParameterMappings {
		if v, ok := resolveReference(expr, prior, opts.Arguments); ok {
			params[name] = v
		} else {
			e.logger.Warn("unresolvable parameter mapping",
				zap.String("parameter", name),
				zap.String("expression", expr))
			params[name] = expr
		}
	}
	for k, v := range opts.Extras {
		params[k] = v
	}
	return params
}

func resolveReference(expr string, prior *ExecutionResult, args map[string]any) (any, bool) {
	if m := referenceRe.FindStringSubmatch(expr); m != nil {
		stepKey, field := m[1], m[2]
		res, ok := prior.Results[stepKey]
		if !ok {
			return nil, false
		}
		v, ok := res[field]
		return v, ok
	}
	if m := argumentRe.FindStringSubmatch(expr); m != nil {
		v, ok := args[m[1]]
		return v, ok
	}
	// Literal passthrough for non-reference expressions.
	if !strings.Contains(expr, "{") {
		return expr, true
	}
	return nil, false
}

func (e *Executor) logUsage(ctx context.Context, p *types.Protocol, opts ExecuteOptions, result *ExecutionResult) {
	if e.usage == nil {
		return
	}
	entry := &observability.UsageEntry{
		ProtocolName:  p.Name,
		ProtocolID:    p.ID,
		Arguments:     opts.Arguments,
		TriggerPhrase: opts.TriggerPhrase,
		MatchedPhrase: opts.MatchedPhrase,
		Timestamp:     time.Now().UTC(),
		Timezone:      opts.Timezone,
		Success:       result.Success,
		LatencyMS:     result.Duration.Milliseconds(),
		UserID:        opts.UserID,
		Device:        opts.Device,
		Location:      opts.Location,
	}
	if err := e.usage.LogUsage(ctx, entry); err != nil {
		e.logger.Warn("failed to log protocol usage", zap.Error(err))
	}
}

func allowSet(allowed []string) map[string]struct{} {
	if allowed == nil {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	return set
}
