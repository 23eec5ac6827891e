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

// Package broker implements the priority-aware in-process message broker at
// the heart of the Jarvis runtime: three bounded priority queues drained by a
// worker pool, a TTL-bounded request/response correlation table, capability
// fan-out with allowed-agent filtering, and a backpressure ladder with a
// circuit-breaker flag.
package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/observability"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// Span names for broker operations.
const (
	SpanBrokerSend    = "broker.send"
	SpanBrokerRequest = "broker.request_capability"
	SpanBrokerWait    = "broker.wait_for_response"
)

// Defaults.
const (
	DefaultQueueCapacity   = 1000
	DefaultWorkers         = 1
	DefaultRequestTTL      = 300 * time.Second
	DefaultCleanupInterval = 60 * time.Second

	// Backpressure thresholds as fractions of queue capacity. Both
	// boundaries classify as ">=".
	backpressureWarnFraction = 0.8
	backpressureDropFraction = 0.95

	// How many low-priority messages a pressured high-priority enqueue may
	// evict before pushing.
	maxLowEvictions = 3

	// Worker poll fallback when no enqueue wakeup arrives.
	workerIdleWait = 50 * time.Millisecond
)

// Sentinel errors surfaced to callers.
var (
	// ErrTimeout is returned when a response does not arrive in time or the
	// correlation entry was cancelled by TTL cleanup or shutdown.
	ErrTimeout = errors.New("timed out waiting for response")

	// ErrUnknownRequest is returned when waiting on a request id that has no
	// correlation entry. This is a programmer error.
	ErrUnknownRequest = errors.New("unknown request id")

	// ErrBrokerClosed is returned by operations on a closed broker.
	ErrBrokerClosed = errors.New("message broker is closed")
)

// StepRecorder observes capability dispatches while a recording is active.
// Implemented by the protocol recorder.
type StepRecorder interface {
	// Active reports whether a recording is in progress.
	Active() bool

	// RecordStep appends a dispatched capability call to the recording.
	RecordStep(agent, function string, params map[string]any, mappings map[string]string)
}

// Config controls broker sizing and policies.
type Config struct {
	// QueueCapacity bounds each of the three priority queues. Default 1000.
	QueueCapacity int

	// Workers is the message-processing worker count. Default 1.
	Workers int

	// RequestTTL bounds the lifetime of a correlation entry. Default 300s.
	RequestTTL time.Duration

	// CleanupInterval is the correlation GC sweep period. Default 60s.
	CleanupInterval time.Duration

	// DeliverResponsesToRecipient also delivers a capability_response to its
	// to_agent (when registered) after resolving the correlation entry. The
	// double delivery is observable in logs. Default true.
	DeliverResponsesToRecipient bool
}

func (c Config) withDefaults() Config {
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.RequestTTL <= 0 {
		c.RequestTTL = DefaultRequestTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	return c
}

// DefaultConfig returns the default broker configuration.
func DefaultConfig() Config {
	return Config{
		QueueCapacity:               DefaultQueueCapacity,
		Workers:                     DefaultWorkers,
		RequestTTL:                  DefaultRequestTTL,
		CleanupInterval:             DefaultCleanupInterval,
		DeliverResponsesToRecipient: true,
	}
}

// CapabilityRequest describes a capability broadcast expecting a response.
type CapabilityRequest struct {
	FromAgent  string
	Capability string
	Data       map[string]any

	// RequestID is generated when empty.
	RequestID string

	// Allowed restricts which providers may receive the broadcast. Nil means
	// no restriction.
	Allowed []string
}

// MessageBroker routes messages between capability providers. All operations
// are safe for concurrent use.
type MessageBroker struct {
	cfg Config

	mu        sync.RWMutex
	providers map[string]Provider

	caps    *capabilityTable
	queues  [3]*boundedQueue // indexed by Priority
	wake    chan struct{}
	pending *correlationTable

	recorderMu sync.RWMutex
	recorder   StepRecorder

	metrics        brokerMetrics
	circuitBreaker atomic.Bool

	tracer observability.Tracer
	logger *zap.Logger

	runCtx    context.Context
	runCancel context.CancelFunc
	wg        sync.WaitGroup
	started   atomic.Bool
	closed    atomic.Bool
}

// NewMessageBroker creates a broker. Call Start before sending.
func NewMessageBroker(cfg Config, tracer observability.Tracer, logger *zap.Logger) *MessageBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	b := &MessageBroker{
		cfg:       cfg,
		providers: make(map[string]Provider),
		caps:      newCapabilityTable(),
		wake:      make(chan struct{}, 1),
		pending:   newCorrelationTable(),
		tracer:    tracer,
		logger:    logger,
	}
	for i := range b.queues {
		b.queues[i] = newBoundedQueue(cfg.QueueCapacity)
	}
	return b
}

// Start launches the worker pool and the correlation GC task.
func (b *MessageBroker) Start(ctx context.Context) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("message broker already started")
	}
	b.runCtx, b.runCancel = context.WithCancel(ctx)

	for i := 0; i < b.cfg.Workers; i++ {
		b.wg.Add(1)
		go b.workerLoop(i)
	}
	b.wg.Add(1)
	go b.gcLoop()

	b.logger.Info("message broker started",
		zap.Int("workers", b.cfg.Workers),
		zap.Int("queue_capacity", b.cfg.QueueCapacity),
		zap.Duration("request_ttl", b.cfg.RequestTTL))
	return nil
}

// Close stops workers and the GC task and cancels every outstanding
// correlation entry. Waiters see ErrTimeout.
func (b *MessageBroker) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	if b.runCancel != nil {
		b.runCancel()
	}
	b.wg.Wait()

	cancelled := b.pending.CancelAll()
	b.logger.Info("message broker closed",
		zap.Int("cancelled_correlations", cancelled),
		zap.Int64("direct_messages", b.metrics.direct.Load()),
		zap.Int64("queued_messages", b.metrics.queued.Load()),
		zap.Int64("dropped_messages", b.metrics.dropped.Load()))
	return nil
}

// RegisterProvider adds a provider to the name index. When includeCapabilities
// is set, the provider's advertised capabilities are indexed in the active
// table, or in the dormant table when dormant is set (night agents). A
// BrokerAware provider receives a back-reference.
func (b *MessageBroker) RegisterProvider(p Provider, includeCapabilities, dormant bool) {
	b.mu.Lock()
	b.providers[p.Name()] = p
	b.mu.Unlock()

	if includeCapabilities {
		if dormant {
			b.caps.AddDormant(p.Name(), p.Capabilities())
		} else {
			b.caps.AddActive(p.Name(), p.Capabilities())
		}
	}
	if aware, ok := p.(BrokerAware); ok {
		aware.AttachBroker(b)
	}

	b.logger.Info("provider registered",
		zap.String("provider", p.Name()),
		zap.Strings("capabilities", p.Capabilities()),
		zap.Bool("dormant", dormant))
}

// ActivateCapabilities moves a provider's capability entries from the dormant
// to the active table. Unknown providers are a no-op.
func (b *MessageBroker) ActivateCapabilities(providerName string) {
	if p, ok := b.provider(providerName); ok {
		b.caps.Activate(providerName, p.Capabilities())
		b.logger.Info("capabilities activated", zap.String("provider", providerName))
	}
}

// DeactivateCapabilities moves a provider's capability entries from the
// active to the dormant table.
func (b *MessageBroker) DeactivateCapabilities(providerName string) {
	if p, ok := b.provider(providerName); ok {
		b.caps.Deactivate(providerName, p.Capabilities())
		b.logger.Info("capabilities deactivated", zap.String("provider", providerName))
	}
}

// HasProvider reports whether a provider name is registered.
func (b *MessageBroker) HasProvider(name string) bool {
	_, ok := b.provider(name)
	return ok
}

// Functions returns a provider's in-process function table, if it has one.
func (b *MessageBroker) Functions(providerName string) (map[string]ProviderFunc, bool) {
	p, ok := b.provider(providerName)
	if !ok {
		return nil, false
	}
	fp, ok := p.(FunctionProvider)
	if !ok {
		return nil, false
	}
	return fp.Functions(), true
}

// CapabilityProviders returns the active providers for a capability, in
// registration order.
func (b *MessageBroker) CapabilityProviders(capability string) []string {
	return b.caps.Providers(capability)
}

// SetRecorder attaches (or, with nil, detaches) the protocol step recorder.
func (b *MessageBroker) SetRecorder(r StepRecorder) {
	b.recorderMu.Lock()
	b.recorder = r
	b.recorderMu.Unlock()
}

// Send routes a message. A message with a registered direct recipient takes
// the fast path: delivery is scheduled asynchronously and Send returns
// immediately. Everything else is enqueued at the classified priority, which
// the optional override replaces.
func (b *MessageBroker) Send(msg *types.Message, override ...Priority) error {
	if b.closed.Load() {
		return ErrBrokerClosed
	}
	if msg == nil {
		return fmt.Errorf("message cannot be nil")
	}

	if b.tracer != nil {
		_, span := b.tracer.StartSpan(context.Background(), SpanBrokerSend,
			observability.WithAttribute("message_type", msg.Type),
			observability.WithAttribute("to_agent", msg.ToAgent))
		defer b.tracer.EndSpan(span)
	}

	// Fast path: direct recipient known to the broker. Must not block; any
	// failure is logged by the delivery task, never silently dropped.
	// Correlated responses and errors always go through the queue so the
	// worker can resolve the pending request before any recipient delivery.
	if msg.ToAgent != "" && !b.isCorrelatedReply(msg) {
		if p, ok := b.provider(msg.ToAgent); ok {
			b.metrics.direct.Add(1)
			b.scheduleDelivery(p, msg)
			return nil
		}
	}

	prio := ClassifyPriority(msg.Type)
	if len(override) > 0 {
		prio = override[0]
	}
	b.enqueue(msg, prio)
	return nil
}

// RequestCapability creates a correlation entry, broadcasts a
// capability_request, and returns the provider names that will receive it
// (intersected with the allowed set, when given). The request id is issued
// before the broadcast is enqueued, so a response can never precede its
// request.
func (b *MessageBroker) RequestCapability(ctx context.Context, req CapabilityRequest) (string, []string, error) {
	if b.closed.Load() {
		return "", nil, ErrBrokerClosed
	}
	if req.Capability == "" {
		return "", nil, fmt.Errorf("capability cannot be empty")
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	if b.tracer != nil {
		_, span := b.tracer.StartSpan(ctx, SpanBrokerRequest,
			observability.WithAttribute("capability", req.Capability),
			observability.WithAttribute("request_id", requestID))
		defer b.tracer.EndSpan(span)
	}

	b.pending.Create(requestID)

	content := map[string]any{
		types.ContentKeyCapability: req.Capability,
		types.ContentKeyData:       req.Data,
	}
	if req.Allowed != nil {
		content[types.ContentKeyAllowedAgents] = req.Allowed
	}
	msg := types.NewMessage(req.FromAgent, "", types.MessageTypeCapabilityRequest, content).
		WithCorrelation(requestID, "")

	if err := b.Send(msg); err != nil {
		b.pending.Remove(requestID)
		return "", nil, err
	}

	receivers := intersect(b.caps.Providers(req.Capability), req.Allowed)
	b.logger.Debug("capability requested",
		zap.String("capability", req.Capability),
		zap.String("request_id", requestID),
		zap.Strings("receivers", receivers))
	return requestID, receivers, nil
}

// WaitForResponse blocks until the correlation entry for requestID is
// fulfilled, the caller timeout elapses, or the entry is cancelled by TTL
// cleanup or shutdown. A zero timeout returns promptly. On timeout or
// cancellation the entry is removed and ErrTimeout is returned;
// ErrUnknownRequest means no entry exists for the id.
func (b *MessageBroker) WaitForResponse(requestID string, timeout time.Duration) (map[string]any, error) {
	entry, ok := b.pending.Lookup(requestID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRequest, requestID)
	}

	if b.tracer != nil {
		_, span := b.tracer.StartSpan(context.Background(), SpanBrokerWait,
			observability.WithAttribute("request_id", requestID),
			observability.WithAttribute("timeout_ms", timeout.Milliseconds()))
		defer b.tracer.EndSpan(span)
	}

	if timeout <= 0 {
		select {
		case v := <-entry.value:
			b.pending.Remove(requestID)
			return v, nil
		case <-entry.cancel:
			return nil, ErrTimeout
		default:
			b.pending.Remove(requestID)
			return nil, ErrTimeout
		}
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-entry.value:
		b.pending.Remove(requestID)
		return v, nil
	case <-entry.cancel:
		return nil, ErrTimeout
	case <-timer.C:
		b.pending.Remove(requestID)
		return nil, ErrTimeout
	}
}

// SendCapabilityResponse builds and routes a capability_response envelope on
// behalf of a provider.
func (b *MessageBroker) SendCapabilityResponse(fromAgent, toAgent string, content map[string]any, requestID, replyTo string) error {
	msg := types.NewMessage(fromAgent, toAgent, types.MessageTypeCapabilityResponse, content).
		WithCorrelation(requestID, replyTo)
	return b.Send(msg)
}

// SendError builds and routes an error envelope. The error text rides in
// content under the "error" key.
func (b *MessageBroker) SendError(fromAgent, toAgent, errText, requestID string) error {
	msg := types.NewMessage(fromAgent, toAgent, types.MessageTypeError, map[string]any{
		types.ContentKeyError: errText,
	}).WithCorrelation(requestID, "")
	return b.Send(msg)
}

// Metrics returns a snapshot of broker counters and queue state.
func (b *MessageBroker) Metrics() Metrics {
	return Metrics{
		DirectMessages:     b.metrics.direct.Load(),
		QueuedMessages:     b.metrics.queued.Load(),
		BroadcastMessages:  b.metrics.broadcast.Load(),
		DroppedMessages:    b.metrics.dropped.Load(),
		BackpressureEvents: b.metrics.backpressureEvents.Load(),
		FutureCleanups:     b.metrics.futureCleanups.Load(),
		QueueDepths: map[string]int{
			PriorityHigh.String():   b.queues[PriorityHigh].Len(),
			PriorityNormal.String(): b.queues[PriorityNormal].Len(),
			PriorityLow.String():    b.queues[PriorityLow].Len(),
		},
		ActiveCorrelations:   b.pending.Len(),
		CircuitBreakerActive: b.circuitBreaker.Load(),
	}
}

// enqueue applies the backpressure ladder, then pushes onto the queue for the
// given priority. Drops are metric-counted, never returned as errors: the
// broker never retries a user message.
func (b *MessageBroker) enqueue(msg *types.Message, prio Priority) {
	q := b.queues[prio]
	size := q.Len()
	capacity := float64(b.cfg.QueueCapacity)

	if float64(size) >= capacity*backpressureDropFraction && prio < PriorityHigh {
		b.metrics.dropped.Add(1)
		b.metrics.backpressureEvents.Add(1)
		b.circuitBreaker.Store(true)
		b.logger.Warn("backpressure drop",
			zap.String("queue", prio.String()),
			zap.Int("depth", size),
			zap.String("message_type", msg.Type))
		return
	}

	if float64(size) >= capacity*backpressureWarnFraction && prio == PriorityHigh {
		for i := 0; i < maxLowEvictions; i++ {
			if _, ok := b.queues[PriorityLow].TryPop(); !ok {
				break
			}
			b.metrics.dropped.Add(1)
		}
	}

	ok := q.TryPush(msg)
	if !ok && prio == PriorityHigh {
		if _, evicted := b.queues[PriorityLow].TryPop(); evicted {
			b.metrics.dropped.Add(1)
		}
		ok = q.TryPush(msg)
	}
	if !ok {
		b.metrics.dropped.Add(1)
		b.logger.Error("queue full, message dropped",
			zap.String("queue", prio.String()),
			zap.String("message_type", msg.Type),
			zap.String("message_id", msg.ID))
		return
	}

	b.metrics.queued.Add(1)
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// popHighest drains strictly high before normal before low. Under sustained
// high-priority load lower queues may starve; that is the documented fairness
// policy.
func (b *MessageBroker) popHighest() (*types.Message, bool) {
	for _, prio := range []Priority{PriorityHigh, PriorityNormal, PriorityLow} {
		if msg, ok := b.queues[prio].TryPop(); ok {
			b.maybeClearCircuitBreaker()
			return msg, true
		}
	}
	return nil, false
}

func (b *MessageBroker) maybeClearCircuitBreaker() {
	if !b.circuitBreaker.Load() {
		return
	}
	threshold := int(float64(b.cfg.QueueCapacity) * backpressureWarnFraction)
	for _, q := range b.queues {
		if q.Len() >= threshold {
			return
		}
	}
	b.circuitBreaker.Store(false)
	b.logger.Info("circuit breaker cleared")
}

func (b *MessageBroker) workerLoop(id int) {
	defer b.wg.Done()
	ticker := time.NewTicker(workerIdleWait)
	defer ticker.Stop()

	for {
		msg, ok := b.popHighest()
		if !ok {
			select {
			case <-b.runCtx.Done():
				return
			case <-b.wake:
			case <-ticker.C:
			}
			continue
		}
		b.processMessage(msg)
	}
}

// processMessage is the worker dispatch table.
func (b *MessageBroker) processMessage(msg *types.Message) {
	switch {
	case msg.Type == types.MessageTypeCapabilityResponse:
		if !b.pending.Resolve(msg.RequestID, msg.Content) {
			b.logger.Warn("response for unknown or already-resolved request",
				zap.String("request_id", msg.RequestID),
				zap.String("from_agent", msg.FromAgent))
		}
		if b.cfg.DeliverResponsesToRecipient && msg.ToAgent != "" {
			if p, ok := b.provider(msg.ToAgent); ok {
				b.logger.Debug("response also delivered to recipient",
					zap.String("to_agent", msg.ToAgent),
					zap.String("request_id", msg.RequestID))
				b.scheduleDelivery(p, msg)
			}
		}

	case msg.Type == types.MessageTypeError:
		// Errors resolve the waiter with an error-shaped payload; they never
		// raise at this layer.
		b.pending.Resolve(msg.RequestID, map[string]any{
			types.ContentKeyError: msg.ErrorText(),
		})
		if msg.ToAgent != "" {
			if p, ok := b.provider(msg.ToAgent); ok {
				b.scheduleDelivery(p, msg)
			}
		}

	case msg.ToAgent != "":
		if p, ok := b.provider(msg.ToAgent); ok {
			b.scheduleDelivery(p, msg)
		} else {
			b.logger.Warn("message for unknown provider dropped",
				zap.String("to_agent", msg.ToAgent),
				zap.String("message_type", msg.Type))
			b.metrics.dropped.Add(1)
		}

	case msg.Type == types.MessageTypeCapabilityRequest:
		b.broadcastRequest(msg)

	default:
		b.logger.Debug("broadcast of non-request message ignored",
			zap.String("message_type", msg.Type),
			zap.String("message_id", msg.ID))
	}
}

// broadcastRequest fans a capability_request out to every eligible provider.
// Each provider receives its own copy addressed to it; copies share content.
func (b *MessageBroker) broadcastRequest(msg *types.Message) {
	capability := msg.StringContent(types.ContentKeyCapability)
	if capability == "" {
		b.logger.Warn("capability_request without capability", zap.String("message_id", msg.ID))
		return
	}

	receivers := intersect(b.caps.Providers(capability), msg.AllowedAgents())
	b.metrics.broadcast.Add(1)

	if capability != types.CapabilityIntentMatching && len(receivers) > 0 {
		b.recordDispatch(receivers[0], capability, msg)
	}

	for _, name := range receivers {
		p, ok := b.provider(name)
		if !ok {
			continue
		}
		b.scheduleDelivery(p, msg.CopyTo(name))
	}

	if len(receivers) == 0 {
		b.logger.Debug("no providers for capability",
			zap.String("capability", capability),
			zap.String("request_id", msg.RequestID))
	}
}

func (b *MessageBroker) recordDispatch(provider, capability string, msg *types.Message) {
	b.recorderMu.RLock()
	rec := b.recorder
	b.recorderMu.RUnlock()
	if rec == nil || !rec.Active() {
		return
	}
	data, _ := msg.Content[types.ContentKeyData].(map[string]any)
	rec.RecordStep(provider, capability, data, nil)
}

// scheduleDelivery hands a message to a provider on its own goroutine. A
// panic in the handler is recovered and logged; it never reaches the worker.
func (b *MessageBroker) scheduleDelivery(p Provider, msg *types.Message) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("provider panicked in receive_message",
					zap.String("provider", p.Name()),
					zap.String("message_id", msg.ID),
					zap.Any("panic", r))
			}
		}()
		ctx := b.runCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if err := p.ReceiveMessage(ctx, msg); err != nil {
			b.logger.Error("provider failed to handle message",
				zap.String("provider", p.Name()),
				zap.String("message_id", msg.ID),
				zap.String("message_type", msg.Type),
				zap.Error(err))
		}
	}()
}

func (b *MessageBroker) gcLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.runCtx.Done():
			return
		case <-ticker.C:
			if swept := b.pending.SweepExpired(b.cfg.RequestTTL); swept > 0 {
				b.metrics.futureCleanups.Add(int64(swept))
				b.logger.Info("swept expired correlation entries", zap.Int("count", swept))
			}
		}
	}
}

// isCorrelatedReply reports whether the message settles a pending request.
func (b *MessageBroker) isCorrelatedReply(msg *types.Message) bool {
	if msg.RequestID == "" {
		return false
	}
	return msg.Type == types.MessageTypeCapabilityResponse || msg.Type == types.MessageTypeError
}

func (b *MessageBroker) provider(name string) (Provider, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.providers[name]
	return p, ok
}

// intersect keeps the providers that appear in allowed, preserving provider
// order. A nil allowed set means no restriction.
func intersect(providers, allowed []string) []string {
	if allowed == nil {
		return providers
	}
	set := make(map[string]struct{}, len(allowed))
	for _, a := range allowed {
		set[a] = struct{}{}
	}
	out := make([]string, 0, len(providers))
	for _, p := range providers {
		if _, ok := set[p]; ok {
			out = append(out, p)
		}
	}
	return out
}
