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

// Package orchestrator drives one user request end to end: night-mode gate,
// protocol fast path, NLU fallback, conversation history, and interaction
// logging.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/broker"
	"github.com/ostepan8/jarvis-server/pkg/llm"
	"github.com/ostepan8/jarvis-server/pkg/memory"
	"github.com/ostepan8/jarvis-server/pkg/observability"
	"github.com/ostepan8/jarvis-server/pkg/protocol"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// Canned user-facing replies.
const (
	MaintenanceReply = "Jarvis is in maintenance mode"
	TimeoutReply     = "The request took too long to complete. Please try again."
)

// DefaultRequestTimeout bounds NLU routing for one request.
const DefaultRequestTimeout = 15 * time.Second

// Intent labels written to the interaction log.
const (
	intentProtocol    = "protocol"
	intentMaintenance = "maintenance_mode"
)

// Request is one user utterance plus its context.
type Request struct {
	Utterance string
	Timezone  string

	// Metadata carries user_id, device, location, source, and optionally a
	// "profile" block captured into the profile store.
	Metadata map[string]any

	// AllowedAgents restricts which providers this request may reach. Nil
	// means no restriction.
	AllowedAgents []string
}

// Result is the orchestrator's reply.
type Result struct {
	Response         string
	ProtocolExecuted string
	ExecutionTime    time.Duration
}

// Config holds the orchestrator's tunables.
type Config struct {
	// DefaultUserID is used when the request metadata has none.
	DefaultUserID string

	// RequestTimeout bounds the NLU round-trip. Zero means
	// DefaultRequestTimeout.
	RequestTimeout time.Duration

	// MaxHistory caps per-user conversation history. Zero means
	// DefaultMaxHistory.
	MaxHistory int
}

// Orchestrator sequences an utterance through the protocol fast path and the
// NLU fallback. Nothing a provider does ever unwinds it; failures become
// canned replies.
type Orchestrator struct {
	cfg      Config
	bus      protocol.BrokerClient
	runtime  *protocol.Runtime
	chat     llm.ChatProvider
	night    *NightMode
	history  *ConversationHistory
	profiles *ProfileStore
	facts    memory.FactMemoryService
	sink     observability.InteractionLogger
	tracer   observability.Tracer
	logger   *zap.Logger
}

// New creates an orchestrator. chat, night, sink, and tracer may be nil.
func New(cfg Config, bus protocol.BrokerClient, runtime *protocol.Runtime, chat llm.ChatProvider, night *NightMode, sink observability.InteractionLogger, tracer observability.Tracer, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	return &Orchestrator{
		cfg:      cfg,
		bus:      bus,
		runtime:  runtime,
		chat:     chat,
		night:    night,
		history:  NewConversationHistory(cfg.MaxHistory),
		profiles: NewProfileStore(),
		sink:     sink,
		tracer:   tracer,
		logger:   logger,
	}
}

// AttachFactMemory adds a fact store whose contents are passed along with NLU
// routing requests as "user_facts".
func (o *Orchestrator) AttachFactMemory(facts memory.FactMemoryService) {
	o.facts = facts
}

// History exposes the conversation history (for providers that need it).
func (o *Orchestrator) History() *ConversationHistory { return o.history }

// Profiles exposes the per-user profile store.
func (o *Orchestrator) Profiles() *ProfileStore { return o.profiles }

// HandleRequest runs the full pipeline for one utterance.
func (o *Orchestrator) HandleRequest(ctx context.Context, req Request) Result {
	start := time.Now()
	if o.tracer != nil {
		var span *observability.Span
		ctx, span = o.tracer.StartSpan(ctx, "orchestrator.handle_request")
		defer o.tracer.EndSpan(span)
	}

	user := o.userConfig(req)
	o.captureProfile(user.UserID, req.Metadata)
	o.profiles.Touch(user.UserID)

	match := o.runtime.Match(req.Utterance)

	// Night-mode gate: only the wake_up protocol passes.
	if o.night != nil && o.night.Enabled() {
		if match == nil || protocol.NormalizeName(match.Protocol.Name) != WakeUpProtocol {
			o.logInteraction(ctx, req, user, Result{Response: MaintenanceReply}, intentMaintenance, "", "", false, start)
			return Result{Response: MaintenanceReply, ExecutionTime: time.Since(start)}
		}
	}

	if match != nil {
		return o.runProtocol(ctx, req, user, match, start)
	}
	return o.routeNLU(ctx, req, user, start)
}

func (o *Orchestrator) runProtocol(ctx context.Context, req Request, user types.UserConfig, match *protocol.Match, start time.Time) Result {
	reply, execResult := o.runtime.Run(ctx, match, protocol.ExecuteOptions{
		AllowedAgents: req.AllowedAgents,
		UserID:        user.UserID,
		Device:        user.Device,
		Location:      user.Location,
		Timezone:      req.Timezone,
	})

	o.history.Append(user.UserID, req.Utterance, reply)
	result := Result{
		Response:         reply,
		ProtocolExecuted: match.Protocol.Name,
		ExecutionTime:    time.Since(start),
	}
	o.logInteraction(ctx, req, user, result, intentProtocol, "", match.Protocol.Name, execResult.Success, start)
	return result
}

func (o *Orchestrator) routeNLU(ctx context.Context, req Request, user types.UserConfig, start time.Time) Result {
	data := map[string]any{
		"input":                req.Utterance,
		"conversation_history": o.history.AsMaps(user.UserID),
		"user_id":              user.UserID,
	}
	if o.facts != nil {
		facts, err := o.facts.ListFacts(ctx, user.UserID)
		if err != nil {
			o.logger.Warn("failed to load user facts", zap.String("user_id", user.UserID), zap.Error(err))
		} else if len(facts) > 0 {
			data["user_facts"] = facts
		}
	}

	requestID, receivers, err := o.bus.RequestCapability(ctx, broker.CapabilityRequest{
		FromAgent:  "orchestrator",
		Capability: types.CapabilityIntentMatching,
		Data:       data,
		Allowed:    req.AllowedAgents,
	})
	if err != nil {
		return o.failWith(ctx, req, user, fmt.Sprintf("Sorry, I encountered an error: %v", err), start)
	}
	if len(receivers) == 0 {
		return o.failWith(ctx, req, user, "Sorry, I didn't understand that.", start)
	}

	content, err := o.bus.WaitForResponse(requestID, o.cfg.RequestTimeout)
	if err != nil {
		if errors.Is(err, broker.ErrTimeout) {
			o.logger.Warn("nlu routing timed out",
				zap.String("utterance", req.Utterance),
				zap.Duration("timeout", o.cfg.RequestTimeout))
			return o.failWith(ctx, req, user, TimeoutReply, start)
		}
		return o.failWith(ctx, req, user, fmt.Sprintf("Sorry, I encountered an error: %v", err), start)
	}

	if errText, ok := content[types.ContentKeyError].(string); ok && errText != "" {
		return o.failWith(ctx, req, user, fmt.Sprintf("Sorry, I encountered an error: %s", errText), start)
	}

	nlu, err := types.NLUResultFromContent(content)
	if err != nil {
		return o.failWith(ctx, req, user, fmt.Sprintf("Sorry, I encountered an error: %v", err), start)
	}

	o.history.Append(user.UserID, req.Utterance, nlu.Response)
	result := Result{Response: nlu.Response, ExecutionTime: time.Since(start)}
	o.logInteraction(ctx, req, user, result, nlu.Intent(), nlu.Capability(), "", true, start)
	return result
}

// failWith logs a failed interaction and returns the canned reply.
func (o *Orchestrator) failWith(ctx context.Context, req Request, user types.UserConfig, reply string, start time.Time) Result {
	o.logInteraction(ctx, req, user, Result{Response: reply}, "", "", "", false, start)
	return Result{Response: reply, ExecutionTime: time.Since(start)}
}

func (o *Orchestrator) userConfig(req Request) types.UserConfig {
	user := types.UserConfig{
		UserID:   o.cfg.DefaultUserID,
		Timezone: req.Timezone,
	}
	if req.Metadata == nil {
		return user
	}
	if s, ok := req.Metadata["user_id"].(string); ok && s != "" {
		user.UserID = s
	}
	if s, ok := req.Metadata["device"].(string); ok {
		user.Device = s
	}
	if s, ok := req.Metadata["location"].(string); ok {
		user.Location = s
	}
	if s, ok := req.Metadata["source"].(string); ok {
		user.Source = s
	}
	return user
}

// captureProfile stores a metadata profile block and attaches it to the chat
// provider. A malformed block is logged and ignored.
func (o *Orchestrator) captureProfile(userID string, metadata map[string]any) {
	if metadata == nil {
		return
	}
	block, ok := metadata["profile"].(map[string]any)
	if !ok {
		return
	}
	profile, err := types.ProfileFromMetadata(block)
	if err != nil {
		o.logger.Warn("ignoring malformed profile metadata",
			zap.String("user_id", userID),
			zap.Error(err))
		return
	}
	o.profiles.Put(userID, profile)
	if o.chat != nil {
		o.chat.SetUserContext(profile)
	}
}

func (o *Orchestrator) logInteraction(ctx context.Context, req Request, user types.UserConfig, result Result, intent, capability, protocolName string, success bool, start time.Time) {
	if o.sink == nil {
		return
	}
	entry := &observability.InteractionEntry{
		Utterance:        req.Utterance,
		Response:         result.Response,
		Intent:           intent,
		Capability:       capability,
		ProtocolExecuted: protocolName,
		LatencyMS:        time.Since(start).Milliseconds(),
		Success:          success,
		UserID:           user.UserID,
		Device:           user.Device,
		Location:         user.Location,
		Source:           user.Source,
		Timestamp:        time.Now().UTC(),
	}
	if err := o.sink.LogInteraction(ctx, entry); err != nil {
		o.logger.Warn("failed to log interaction", zap.Error(err))
	}
}
