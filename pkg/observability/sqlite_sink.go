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
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ostepan8/jarvis-server/internal/sqlitedriver"
)

// SQLiteActivityLog persists usage and interaction entries in two append-only
// tables. It implements both ProtocolUsageLogger and InteractionLogger.
type SQLiteActivityLog struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteActivityLog opens (or creates) the activity database at dbPath.
// ":memory:" is accepted for tests.
func NewSQLiteActivityLog(dbPath string, logger *zap.Logger) (*SQLiteActivityLog, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dbURL := dbPath
	if dbPath == ":memory:" {
		dbURL = "file::memory:?mode=memory&cache=shared&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open activity database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		logger.Warn("failed to set busy timeout", zap.Error(err))
	}

	schema := `
	CREATE TABLE IF NOT EXISTS protocol_usage (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		protocol_name TEXT NOT NULL,
		protocol_id TEXT,
		arguments TEXT,
		trigger_phrase TEXT,
		matched_phrase TEXT,
		timestamp_utc INTEGER NOT NULL,
		timezone TEXT,
		success INTEGER NOT NULL,
		latency_ms INTEGER,
		user_id TEXT,
		device TEXT,
		location TEXT
	);

	CREATE TABLE IF NOT EXISTS interactions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		utterance TEXT NOT NULL,
		response TEXT,
		intent TEXT,
		capability TEXT,
		protocol_executed TEXT,
		latency_ms INTEGER,
		success INTEGER NOT NULL,
		user_id TEXT,
		device TEXT,
		location TEXT,
		source TEXT,
		timestamp_utc INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_usage_protocol ON protocol_usage(protocol_name);
	CREATE INDEX IF NOT EXISTS idx_interactions_user ON interactions(user_id);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create activity schema: %w", err)
	}

	return &SQLiteActivityLog{db: db, logger: logger}, nil
}

// LogUsage implements ProtocolUsageLogger.
func (l *SQLiteActivityLog) LogUsage(ctx context.Context, e *UsageEntry) error {
	args, err := json.Marshal(e.Arguments)
	if err != nil {
		return fmt.Errorf("failed to marshal usage arguments: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err = l.db.ExecContext(ctx, `
		INSERT INTO protocol_usage (
			protocol_name, protocol_id, arguments, trigger_phrase, matched_phrase,
			timestamp_utc, timezone, success, latency_ms, user_id, device, location
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ProtocolName, e.ProtocolID, string(args), e.TriggerPhrase, e.MatchedPhrase,
		ts.UnixMilli(), e.Timezone, boolToInt(e.Success), e.LatencyMS, e.UserID, e.Device, e.Location)
	if err != nil {
		return fmt.Errorf("failed to insert usage entry: %w", err)
	}
	return nil
}

// LogInteraction implements InteractionLogger.
func (l *SQLiteActivityLog) LogInteraction(ctx context.Context, e *InteractionEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO interactions (
			utterance, response, intent, capability, protocol_executed,
			latency_ms, success, user_id, device, location, source, timestamp_utc
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.Utterance, e.Response, e.Intent, e.Capability, e.ProtocolExecuted,
		e.LatencyMS, boolToInt(e.Success), e.UserID, e.Device, e.Location, e.Source, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert interaction entry: %w", err)
	}
	return nil
}

// UsageCount returns the number of recorded runs for a protocol name.
func (l *SQLiteActivityLog) UsageCount(ctx context.Context, protocolName string) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM protocol_usage WHERE protocol_name = ?`, protocolName).Scan(&n)
	return n, err
}

// Close closes the underlying database.
func (l *SQLiteActivityLog) Close() error {
	return l.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
