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
	"sync"
	"time"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ProfileStore keeps the per-user agent profiles the orchestrator captures
// from request metadata.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*types.AgentProfile
}

// NewProfileStore creates an empty profile store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]*types.AgentProfile)}
}

// Put stores (or replaces) a user's profile.
func (s *ProfileStore) Put(userID string, p *types.AgentProfile) {
	if p == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p.UserID = userID
	s.profiles[userID] = p
}

// Get returns the profile for userID, if any.
func (s *ProfileStore) Get(userID string) (*types.AgentProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	return p, ok
}

// Touch bumps the interaction count and last-seen timestamp for userID. A
// missing profile is created on the fly.
func (s *ProfileStore) Touch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		p = &types.AgentProfile{UserID: userID}
		s.profiles[userID] = p
	}
	p.InteractionCount++
	p.LastSeen = time.Now()
}
