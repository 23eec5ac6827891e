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
	"sync"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// MemoryStore is an in-memory Store for tests and ephemeral runtimes.
type MemoryStore struct {
	mu        sync.RWMutex
	protocols map[string]*types.Protocol
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{protocols: make(map[string]*types.Protocol)}
}

func (s *MemoryStore) Save(ctx context.Context, p *types.Protocol) error {
	if p.ID == "" {
		return fmt.Errorf("protocol id cannot be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.protocols[p.ID] = p.Clone()
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*types.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.protocols[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) List(ctx context.Context) ([]*types.Protocol, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*types.Protocol, 0, len(s.protocols))
	for _, p := range s.protocols {
		out = append(out, p.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.protocols, id)
	return nil
}

func (s *MemoryStore) Close() error { return nil }
