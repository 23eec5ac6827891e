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
package memory

import (
	"context"
	"sync"
)

var (
	_ FactMemoryService = (*RedisFactStore)(nil)
	_ FactMemoryService = (*MemoryFactStore)(nil)
)

// MemoryFactStore is an in-process FactMemoryService for tests and
// single-binary setups without Redis.
type MemoryFactStore struct {
	mu    sync.RWMutex
	users map[string]map[string]string
}

// NewMemoryFactStore creates an empty in-memory fact store.
func NewMemoryFactStore() *MemoryFactStore {
	return &MemoryFactStore{users: make(map[string]map[string]string)}
}

// StoreFact implements FactMemoryService.
func (s *MemoryFactStore) StoreFact(_ context.Context, userID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	facts, ok := s.users[userID]
	if !ok {
		facts = make(map[string]string)
		s.users[userID] = facts
	}
	facts[key] = value
	return nil
}

// GetFact implements FactMemoryService.
func (s *MemoryFactStore) GetFact(_ context.Context, userID, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.users[userID][key]
	if !ok {
		return "", ErrNoFact
	}
	return value, nil
}

// ListFacts implements FactMemoryService.
func (s *MemoryFactStore) ListFacts(_ context.Context, userID string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.users[userID]))
	for k, v := range s.users[userID] {
		out[k] = v
	}
	return out, nil
}

// DeleteFact implements FactMemoryService.
func (s *MemoryFactStore) DeleteFact(_ context.Context, userID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users[userID], key)
	return nil
}

// Close implements FactMemoryService.
func (s *MemoryFactStore) Close() error { return nil }
