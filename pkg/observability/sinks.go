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

	"go.uber.org/zap"
)

// UsageEntry records one protocol run, successful or failed.
type UsageEntry struct {
	ProtocolName  string
	ProtocolID    string
	Arguments     map[string]any
	TriggerPhrase string
	MatchedPhrase string
	Timestamp     time.Time // UTC
	Timezone      string
	Success       bool
	LatencyMS     int64
	UserID        string
	Device        string
	Location      string
}

// ProtocolUsageLogger is the append-only sink for protocol runs.
type ProtocolUsageLogger interface {
	LogUsage(ctx context.Context, entry *UsageEntry) error
}

// InteractionEntry records one user-facing request end to end.
type InteractionEntry struct {
	Utterance        string
	Response         string
	Intent           string
	Capability       string
	ProtocolExecuted string
	LatencyMS        int64
	Success          bool
	UserID           string
	Device           string
	Location         string
	Source           string
	Timestamp        time.Time // UTC
}

// InteractionLogger is the append-only sink for user interactions.
type InteractionLogger interface {
	LogInteraction(ctx context.Context, entry *InteractionEntry) error
}

// ZapActivityLogger writes usage and interaction entries as structured log
// lines. It is the default sink when no persistent store is configured.
type ZapActivityLogger struct {
	logger *zap.Logger
}

// NewZapActivityLogger returns a sink backed by the given logger.
func NewZapActivityLogger(logger *zap.Logger) *ZapActivityLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapActivityLogger{logger: logger}
}

// LogUsage implements ProtocolUsageLogger.
func (l *ZapActivityLogger) LogUsage(ctx context.Context, e *UsageEntry) error {
	l.logger.Info("protocol usage",
		zap.String("protocol", e.ProtocolName),
		zap.String("protocol_id", e.ProtocolID),
		zap.Any("arguments", e.Arguments),
		zap.String("trigger_phrase", e.TriggerPhrase),
		zap.String("matched_phrase", e.MatchedPhrase),
		zap.String("timezone", e.Timezone),
		zap.Bool("success", e.Success),
		zap.Int64("latency_ms", e.LatencyMS),
		zap.String("user_id", e.UserID),
		zap.String("device", e.Device),
		zap.String("location", e.Location))
	return nil
}

// LogInteraction implements InteractionLogger.
func (l *ZapActivityLogger) LogInteraction(ctx context.Context, e *InteractionEntry) error {
	l.logger.Info("interaction",
		zap.String("utterance", e.Utterance),
		zap.String("response", e.Response),
		zap.String("intent", e.Intent),
		zap.String("capability", e.Capability),
		zap.String("protocol_executed", e.ProtocolExecuted),
		zap.Int64("latency_ms", e.LatencyMS),
		zap.Bool("success", e.Success),
		zap.String("user_id", e.UserID),
		zap.String("device", e.Device),
		zap.String("location", e.Location),
		zap.String("source", e.Source))
	return nil
}
