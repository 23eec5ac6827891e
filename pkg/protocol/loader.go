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
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// protocolFile is the on-disk JSON shape. Older files spell the response
// block "responses"; both keys are accepted, "response" winning on conflict.
type protocolFile struct {
	Name                string                     `json:"name"`
	Description         string                     `json:"description"`
	TriggerPhrases      []string                   `json:"trigger_phrases"`
	Arguments           map[string]any             `json:"arguments"`
	ArgumentDefinitions []types.ArgumentDefinition `json:"argument_definitions"`
	Steps               []types.ProtocolStep       `json:"steps"`
	Response            *types.ProtocolResponse    `json:"response"`
	Responses           *types.ProtocolResponse    `json:"responses"`
}

// LoadFile parses a single protocol JSON file.
func LoadFile(path string) (*types.Protocol, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var f protocolFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	resp := f.Response
	if resp == nil {
		resp = f.Responses
	}
	p := &types.Protocol{
		Name:                f.Name,
		Description:         f.Description,
		Arguments:           f.Arguments,
		TriggerPhrases:      f.TriggerPhrases,
		Steps:               f.Steps,
		ArgumentDefinitions: f.ArgumentDefinitions,
		Response:            resp,
	}
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// LoadDirectory registers every *.json protocol under dir. Files that fail to
// parse or collide with an existing protocol are skipped with a warning
// (unless replaceDuplicates is set); the returned count is the number actually
// registered.
func LoadDirectory(ctx context.Context, dir string, registry *Registry, replaceDuplicates bool, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read protocol directory %s: %w", dir, err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := LoadFile(path)
		if err != nil {
			logger.Warn("skipping protocol file", zap.String("file", path), zap.Error(err))
			continue
		}
		result, err := registry.Register(ctx, p, replaceDuplicates)
		if err != nil {
			if errors.Is(err, ErrDuplicateProtocol) {
				logger.Warn("skipping duplicate protocol",
					zap.String("file", path),
					zap.String("name", p.Name))
				continue
			}
			return loaded, err
		}
		if result.Status == StatusRegistered {
			loaded++
		}
	}
	logger.Info("protocol directory loaded", zap.String("dir", dir), zap.Int("count", loaded))
	return loaded, nil
}
