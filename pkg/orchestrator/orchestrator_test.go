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
package orchestrator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ostepan8/jarvis-server/pkg/broker"
	"github.com/ostepan8/jarvis-server/pkg/memory"
	"github.com/ostepan8/jarvis-server/pkg/observability"
	"github.com/ostepan8/jarvis-server/pkg/protocol"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// stubBus satisfies protocol.BrokerClient for orchestrator tests. Providers
// with function tables take the executor fast path; intent_matching requests
// get the canned nluContent (or nluErr).
type stubBus struct {
	mu         sync.Mutex
	functions  map[string]map[string]broker.ProviderFunc
	providers  map[string]bool
	nluContent map[string]any
	nluErr     error
	nluData    map[string]any
	requested  []string
}

func newStubBus() *stubBus {
	return &stubBus{
		functions: make(map[string]map[string]broker.ProviderFunc),
		providers: make(map[string]bool),
	}
}

func (s *stubBus) addProvider(name string, fns map[string]broker.ProviderFunc) {
	s.providers[name] = true
	if fns != nil {
		s.functions[name] = fns
	}
}

func (s *stubBus) HasProvider(name string) bool { return s.providers[name] }

func (s *stubBus) Functions(name string) (map[string]broker.ProviderFunc, bool) {
	fns, ok := s.functions[name]
	return fns, ok
}

func (s *stubBus) RequestCapability(ctx context.Context, req broker.CapabilityRequest) (string, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requested = append(s.requested, req.Capability)
	if req.Capability == types.CapabilityIntentMatching {
		s.nluData = req.Data
		if req.Allowed != nil && !contains(req.Allowed, "NLU") {
			return "req-nlu", nil, nil
		}
		return "req-nlu", []string{"NLU"}, nil
	}
	return "req-x", req.Allowed, nil
}

func (s *stubBus) WaitForResponse(requestID string, timeout time.Duration) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nluErr != nil {
		return nil, s.nluErr
	}
	return s.nluContent, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// captureSink records interaction entries.
type captureSink struct {
	mu      sync.Mutex
	entries []*observability.InteractionEntry
}

func (c *captureSink) LogInteraction(ctx context.Context, e *observability.InteractionEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
	return nil
}

func (c *captureSink) last(t *testing.T) *observability.InteractionEntry {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.entries)
	return c.entries[len(c.entries)-1]
}

type fixture struct {
	orch  *Orchestrator
	bus   *stubBus
	sink  *captureSink
	night *NightMode
	reg   *protocol.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := newStubBus()
	sink := &captureSink{}

	reg, err := protocol.NewRegistry(context.Background(), protocol.NewMemoryStore(), logger)
	require.NoError(t, err)
	runtime := protocol.NewRuntime(reg, bus, nil, nil, nil, logger)

	night := NewNightMode(&fakeSwitcher{}, nil, logger)
	orch := New(Config{DefaultUserID: "owen"}, bus, runtime, nil, night, sink, nil, logger)
	return &fixture{orch: orch, bus: bus, sink: sink, night: night, reg: reg}
}

func (f *fixture) registerBlueLights(t *testing.T) {
	t.Helper()
	f.bus.addProvider("Lights", map[string]broker.ProviderFunc{
		"set_color_name": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			return map[string]any{"status": "ok"}, nil
		},
	})
	_, err := f.reg.Register(context.Background(), &types.Protocol{
		Name:           "blue_lights_on",
		TriggerPhrases: []string{"blue lights"},
		Steps: []types.ProtocolStep{
			{Agent: "Lights", Function: "set_color_name", Parameters: map[string]any{"color_name": "blue"}},
		},
		Response: &types.ProtocolResponse{Mode: types.ResponseModeStatic, Phrases: []string{"Lights are blue, sir."}},
	}, false)
	require.NoError(t, err)
}

func TestProtocolFastPath(t *testing.T) {
	f := newFixture(t)
	f.registerBlueLights(t)

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "blue lights"})

	assert.Equal(t, "Lights are blue, sir.", result.Response)
	assert.Equal(t, "blue_lights_on", result.ProtocolExecuted)
	assert.Greater(t, result.ExecutionTime, time.Duration(0))

	entry := f.sink.last(t)
	assert.Equal(t, "protocol", entry.Intent)
	assert.Equal(t, "blue_lights_on", entry.ProtocolExecuted)
	assert.True(t, entry.Success)
	assert.Equal(t, "owen", entry.UserID)

	// The exchange lands in history.
	turns := f.orch.History().Turns("owen")
	require.Len(t, turns, 1)
	assert.Equal(t, "blue lights", turns[0].User)
}

func TestNLUFallback(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{
		"response": "You have 2 events tomorrow.",
		"metadata": map[string]any{"intent": "view_schedule"},
	}

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "what's on my calendar tomorrow?"})

	assert.Equal(t, "You have 2 events tomorrow.", result.Response)
	assert.Empty(t, result.ProtocolExecuted)
	assert.Equal(t, []string{types.CapabilityIntentMatching}, f.bus.requested)
	assert.Equal(t, "what's on my calendar tomorrow?", f.bus.nluData["input"])

	entry := f.sink.last(t)
	assert.Equal(t, "view_schedule", entry.Intent)
	assert.True(t, entry.Success)

	turns := f.orch.History().Turns("owen")
	require.Len(t, turns, 1)
	assert.Equal(t, "You have 2 events tomorrow.", turns[0].Assistant)
}

func TestNLUHistoryIsPassedAlong(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"response": "ok"}

	f.orch.HandleRequest(context.Background(), Request{Utterance: "first"})
	f.orch.HandleRequest(context.Background(), Request{Utterance: "second"})

	history, ok := f.bus.nluData["conversation_history"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, history, 1)
	assert.Equal(t, "first", history[0]["user"])
}

func TestNLUIncludesUserFacts(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"response": "ok"}

	facts := memory.NewMemoryFactStore()
	require.NoError(t, facts.StoreFact(context.Background(), "owen", "coffee", "black"))
	f.orch.AttachFactMemory(facts)

	f.orch.HandleRequest(context.Background(), Request{Utterance: "make me coffee"})

	got, ok := f.bus.nluData["user_facts"].(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "black", got["coffee"])

	// A user with no facts gets no user_facts key at all.
	f.bus.nluData = nil
	f.orch.HandleRequest(context.Background(), Request{
		Utterance: "hello",
		Metadata:  map[string]any{"user_id": "guest"},
	})
	_, present := f.bus.nluData["user_facts"]
	assert.False(t, present)
}

func TestNLUTimeout(t *testing.T) {
	f := newFixture(t)
	f.bus.nluErr = broker.ErrTimeout

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "anything"})
	assert.Equal(t, TimeoutReply, result.Response)

	entry := f.sink.last(t)
	assert.False(t, entry.Success)
	assert.Empty(t, f.orch.History().Turns("owen"), "failed requests never enter history")
}

func TestNLUErrorEnvelope(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"error": "model offline"}

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "anything"})
	assert.Equal(t, "Sorry, I encountered an error: model offline", result.Response)
	assert.False(t, f.sink.last(t).Success)
}

func TestNLUNoReceivers(t *testing.T) {
	f := newFixture(t)
	// Allow-list excludes the NLU provider entirely.
	result := f.orch.HandleRequest(context.Background(), Request{
		Utterance:     "anything",
		AllowedAgents: []string{"Lights"},
	})
	assert.Equal(t, "Sorry, I didn't understand that.", result.Response)
}

func TestNightModeGate(t *testing.T) {
	f := newFixture(t)
	f.registerBlueLights(t)
	f.night.Enable()

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "blue lights"})
	assert.Equal(t, MaintenanceReply, result.Response)

	entry := f.sink.last(t)
	assert.Equal(t, "maintenance_mode", entry.Intent)
	assert.False(t, entry.Success)
}

func TestNightModeWakeUpPasses(t *testing.T) {
	f := newFixture(t)
	woke := false
	f.bus.addProvider("System", map[string]broker.ProviderFunc{
		"wake": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			woke = true
			return map[string]any{}, nil
		},
	})
	_, err := f.reg.Register(context.Background(), &types.Protocol{
		Name:           "wake_up",
		TriggerPhrases: []string{"wake up"},
		Steps:          []types.ProtocolStep{{Agent: "System", Function: "wake"}},
		Response:       &types.ProtocolResponse{Mode: types.ResponseModeStatic, Phrases: []string{"Good morning."}},
	}, false)
	require.NoError(t, err)
	f.night.Enable()

	result := f.orch.HandleRequest(context.Background(), Request{Utterance: "wake up"})
	assert.Equal(t, "Good morning.", result.Response)
	assert.True(t, woke)
}

func TestDisallowedAgentSurfacesError(t *testing.T) {
	f := newFixture(t)
	called := false
	f.bus.addProvider("Lights", map[string]broker.ProviderFunc{
		"set_color_name": func(ctx context.Context, params map[string]any) (map[string]any, error) {
			called = true
			return map[string]any{}, nil
		},
	})
	_, err := f.reg.Register(context.Background(), &types.Protocol{
		Name:           "blue_lights_on",
		TriggerPhrases: []string{"blue lights"},
		Steps:          []types.ProtocolStep{{Agent: "Lights", Function: "set_color_name"}},
	}, false)
	require.NoError(t, err)

	result := f.orch.HandleRequest(context.Background(), Request{
		Utterance:     "blue lights",
		AllowedAgents: []string{"Speaker"},
	})

	assert.Contains(t, result.Response, protocol.StepErrorAgentDisallowed)
	assert.False(t, called, "disallowed provider must not be invoked")
	assert.False(t, f.sink.last(t).Success)
}

func TestUserIDFromMetadata(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"response": "hi"}

	f.orch.HandleRequest(context.Background(), Request{
		Utterance: "hello",
		Metadata:  map[string]any{"user_id": "guest", "device": "kitchen", "source": "voice"},
	})

	entry := f.sink.last(t)
	assert.Equal(t, "guest", entry.UserID)
	assert.Equal(t, "kitchen", entry.Device)
	assert.Equal(t, "voice", entry.Source)
	assert.Len(t, f.orch.History().Turns("guest"), 1)
	assert.Empty(t, f.orch.History().Turns("owen"))
}

func TestProfileCapture(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"response": "hi"}

	f.orch.HandleRequest(context.Background(), Request{
		Utterance: "hello",
		Metadata: map[string]any{
			"profile": map[string]any{
				"display_name":          "Owen",
				"preferred_personality": "dry",
				"interests":             []any{"robotics"},
			},
		},
	})

	p, ok := f.orch.Profiles().Get("owen")
	require.True(t, ok)
	assert.Equal(t, "Owen", p.DisplayName)
	assert.Equal(t, "dry", p.Personality)
	assert.Equal(t, []string{"robotics"}, p.Interests)
}

func TestInteractionCountIncrements(t *testing.T) {
	f := newFixture(t)
	f.bus.nluContent = map[string]any{"response": "hi"}

	f.orch.HandleRequest(context.Background(), Request{Utterance: "one"})
	f.orch.HandleRequest(context.Background(), Request{Utterance: "two"})

	p, ok := f.orch.Profiles().Get("owen")
	require.True(t, ok)
	assert.Equal(t, 2, p.InteractionCount)
	assert.False(t, p.LastSeen.IsZero())
}
