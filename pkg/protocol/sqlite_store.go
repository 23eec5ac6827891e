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
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	_ "github.com/ostepan8/jarvis-server/internal/sqlitedriver"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// jsonColumns are the protocol columns stored as JSON text, in schema order.
// Schema evolution is additive only: new columns are appended here and
// backfilled as NULL on existing databases.
var jsonColumns = []string{
	"arguments",
	"steps",
	"trigger_phrases",
	"argument_definitions",
	"response",
}

// SQLiteStore persists protocols in a single SQLite table.
type SQLiteStore struct {
	mu sync.RWMutex
	db *sql.DB

	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) a protocol database at dbPath.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS protocols (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		arguments TEXT,
		steps TEXT,
		trigger_phrases TEXT,
		argument_definitions TEXT,
		response TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_protocols_name ON protocols(name);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.migrate()
}

// migrate adds columns introduced after a database was created. Dropping or
// retyping columns is not supported; unknown columns are tolerated.
func (s *SQLiteStore) migrate() error {
	rows, err := s.db.Query("PRAGMA table_info(protocols)")
	if err != nil {
		return err
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notNull    int
			defaultVal sql.NullString
			pk         int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &defaultVal, &pk); err != nil {
			return err
		}
		existing[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range jsonColumns {
		if existing[col] {
			continue
		}
		if _, err := s.db.Exec(fmt.Sprintf("ALTER TABLE protocols ADD COLUMN %s TEXT", col)); err != nil {
			return fmt.Errorf("failed to add column %s: %w", col, err)
		}
		s.logger.Info("protocol schema migrated", zap.String("column", col))
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, p *types.Protocol) error {
	if p.ID == "" {
		return fmt.Errorf("protocol id cannot be empty")
	}
	args, err := marshalColumn(p.Arguments)
	if err != nil {
		return fmt.Errorf("failed to encode arguments: %w", err)
	}
	steps, err := marshalColumn(p.Steps)
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	triggers, err := marshalColumn(p.TriggerPhrases)
	if err != nil {
		return fmt.Errorf("failed to encode trigger phrases: %w", err)
	}
	defs, err := marshalColumn(p.ArgumentDefinitions)
	if err != nil {
		return fmt.Errorf("failed to encode argument definitions: %w", err)
	}
	resp, err := marshalColumn(p.Response)
	if err != nil {
		return fmt.Errorf("failed to encode response: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO protocols (id, name, description, arguments, steps, trigger_phrases, argument_definitions, response)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			arguments = excluded.arguments,
			steps = excluded.steps,
			trigger_phrases = excluded.trigger_phrases,
			argument_definitions = excluded.argument_definitions,
			response = excluded.response`,
		p.ID, p.Name, p.Description, args, steps, triggers, defs, resp)
	if err != nil {
		return fmt.Errorf("failed to save protocol %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*types.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, arguments, steps, trigger_phrases, argument_definitions, response
		FROM protocols WHERE id = ?`, id)
	p, err := scanProtocol(row.Scan)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

func (s *SQLiteStore) List(ctx context.Context) ([]*types.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, arguments, steps, trigger_phrases, argument_definitions, response
		FROM protocols ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list protocols: %w", err)
	}
	defer rows.Close()

	var out []*types.Protocol
	for rows.Next() {
		p, err := scanProtocol(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM protocols WHERE id = ?", id)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanProtocol(scan func(dest ...any) error) (*types.Protocol, error) {
	var (
		p           types.Protocol
		description sql.NullString
		args        sql.NullString
		steps       sql.NullString
		triggers    sql.NullString
		defs        sql.NullString
		resp        sql.NullString
	)
	if err := scan(&p.ID, &p.Name, &description, &args, &steps, &triggers, &defs, &resp); err != nil {
		return nil, err
	}
	p.Description = description.String
	if err := unmarshalColumn(args, &p.Arguments); err != nil {
		return nil, fmt.Errorf("protocol %s: bad arguments column: %w", p.ID, err)
	}
	if err := unmarshalColumn(steps, &p.Steps); err != nil {
		return nil, fmt.Errorf("protocol %s: bad steps column: %w", p.ID, err)
	}
	if err := unmarshalColumn(triggers, &p.TriggerPhrases); err != nil {
		return nil, fmt.Errorf("protocol %s: bad trigger_phrases column: %w", p.ID, err)
	}
	if err := unmarshalColumn(defs, &p.ArgumentDefinitions); err != nil {
		return nil, fmt.Errorf("protocol %s: bad argument_definitions column: %w", p.ID, err)
	}
	if err := unmarshalColumn(resp, &p.Response); err != nil {
		return nil, fmt.Errorf("protocol %s: bad response column: %w", p.ID, err)
	}
	return &p, nil
}

// marshalColumn encodes a field as JSON text, mapping nil to SQL NULL.
func marshalColumn(v any) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case *types.ProtocolResponse:
		if t == nil {
			return nil, nil
		}
	case map[string]any:
		if t == nil {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalColumn(col sql.NullString, dest any) error {
	if !col.Valid || col.String == "" || col.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(col.String), dest)
}
