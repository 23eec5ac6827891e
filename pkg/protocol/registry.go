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
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ErrDuplicateProtocol is returned when registering a protocol whose name or
// normalized trigger-phrase set collides with an already-registered protocol.
var ErrDuplicateProtocol = errors.New("duplicate protocol")

// RegisterStatus describes the outcome of a Register call.
type RegisterStatus string

const (
	// StatusRegistered means the protocol was stored as new.
	StatusRegistered RegisterStatus = "registered"

	// StatusDuplicate means the same protocol (same id) was already
	// registered; the call was a no-op.
	StatusDuplicate RegisterStatus = "duplicate"

	// StatusReplaced means an existing protocol with a colliding name or
	// trigger set was replaced (replaceDuplicates).
	StatusReplaced RegisterStatus = "replaced"
)

// RegisterResult reports what Register did.
type RegisterResult struct {
	Status   RegisterStatus
	Protocol *types.Protocol

	// Replaced holds the id of the protocol that was displaced, if any.
	Replaced string
}

// Registry keeps protocols in a persistent store and enforces the uniqueness
// invariants: normalized names are unique, and no two protocols share the
// same normalized trigger-phrase set. An in-memory index mirrors the store
// for matching.
type Registry struct {
	store  Store
	logger *zap.Logger

	mu        sync.RWMutex
	protocols map[string]*types.Protocol // by id
	order     []string                   // registration order of ids
	names     map[string]string          // normalized name -> id
	sets      map[string]string          // trigger-set key -> id
}

// NewRegistry creates a registry over the store, loading any previously
// persisted protocols into the index.
func NewRegistry(ctx context.Context, store Store, logger *zap.Logger) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		store:     store,
		logger:    logger,
		protocols: make(map[string]*types.Protocol),
		names:     make(map[string]string),
		sets:      make(map[string]string),
	}

	existing, err := store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load protocols: %w", err)
	}
	for _, p := range existing {
		r.index(p)
	}
	if len(existing) > 0 {
		logger.Info("protocols loaded", zap.Int("count", len(existing)))
	}
	return r, nil
}

// Register stores a protocol. A missing id is generated. Registering the same
// id twice is a no-op reported as StatusDuplicate. A name or trigger-set
// collision with a different protocol fails with ErrDuplicateProtocol unless
// replaceDuplicates is set, in which case the colliding protocol is removed
// first.
func (r *Registry) Register(ctx context.Context, p *types.Protocol, replaceDuplicates bool) (RegisterResult, error) {
	if err := p.Validate(); err != nil {
		return RegisterResult{}, err
	}
	p = p.Clone()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.protocols[p.ID]; exists {
		return RegisterResult{Status: StatusDuplicate, Protocol: r.protocols[p.ID]}, nil
	}

	nameKey := NormalizeName(p.Name)
	setKey := TriggerSetKey(p.TriggerPhrases)

	collidingID := ""
	if id, ok := r.names[nameKey]; ok {
		collidingID = id
	} else if id, ok := r.sets[setKey]; ok && setKey != "" {
		collidingID = id
	}

	status := StatusRegistered
	replaced := ""
	if collidingID != "" {
		if !replaceDuplicates {
			return RegisterResult{}, fmt.Errorf("%w: %q collides with protocol %s", ErrDuplicateProtocol, p.Name, collidingID)
		}
		if err := r.store.Delete(ctx, collidingID); err != nil {
			return RegisterResult{}, fmt.Errorf("failed to remove colliding protocol %s: %w", collidingID, err)
		}
		r.unindex(collidingID)
		status = StatusReplaced
		replaced = collidingID
	}

	if err := r.store.Save(ctx, p); err != nil {
		return RegisterResult{}, fmt.Errorf("failed to persist protocol %s: %w", p.ID, err)
	}
	r.index(p)

	r.logger.Info("protocol registered",
		zap.String("id", p.ID),
		zap.String("name", p.Name),
		zap.Int("steps", len(p.Steps)),
		zap.String("status", string(status)))
	return RegisterResult{Status: status, Protocol: p, Replaced: replaced}, nil
}

// Get looks a protocol up by id first, then by normalized name.
func (r *Registry) Get(idOrName string) (*types.Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if p, ok := r.protocols[idOrName]; ok {
		return p, true
	}
	if id, ok := r.names[NormalizeName(idOrName)]; ok {
		return r.protocols[id], true
	}
	return nil, false
}

// ListIDs returns protocol ids in registration order.
func (r *Registry) ListIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Snapshot returns the registered protocols in registration order.
func (r *Registry) Snapshot() []*types.Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*types.Protocol, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.protocols[id])
	}
	return out
}

// Remove deletes a protocol from the store and the index.
func (r *Registry) Remove(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.protocols[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := r.store.Delete(ctx, id); err != nil {
		return err
	}
	r.unindex(id)
	return nil
}

// FindMatchingProtocol returns the first registered protocol one of whose
// trigger phrases equals the utterance after normalization. Only literal
// phrases participate; templated matching is the trigger matcher's job.
func (r *Registry) FindMatchingProtocol(utterance string) (*types.Protocol, bool) {
	norm := NormalizePhrase(utterance)
	if norm == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		p := r.protocols[id]
		for _, phrase := range p.TriggerPhrases {
			if NormalizePhrase(phrase) == norm {
				return p, true
			}
		}
	}
	return nil, false
}

// index must be called with the write lock held.
func (r *Registry) index(p *types.Protocol) {
	r.protocols[p.ID] = p
	r.order = append(r.order, p.ID)
	r.names[NormalizeName(p.Name)] = p.ID
	if key := TriggerSetKey(p.TriggerPhrases); key != "" {
		r.sets[key] = p.ID
	}
}

// unindex must be called with the write lock held.
func (r *Registry) unindex(id string) {
	p, ok := r.protocols[id]
	if !ok {
		return
	}
	delete(r.protocols, id)
	delete(r.names, NormalizeName(p.Name))
	if key := TriggerSetKey(p.TriggerPhrases); key != "" && r.sets[key] == id {
		delete(r.sets, key)
	}
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
