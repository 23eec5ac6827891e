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

// Package memory defines the long-term memory seams used by memory-capable
// providers: a key-value fact store and a vector similarity store.
package memory

import (
	"context"
	"errors"
)

// ErrNoFact is returned when a user has no fact under the requested key.
var ErrNoFact = errors.New("memory: no such fact")

// FactMemoryService stores discrete facts about a user as key-value pairs.
type FactMemoryService interface {
	// StoreFact records or overwrites one fact.
	StoreFact(ctx context.Context, userID, key, value string) error

	// GetFact returns the fact under key, or ErrNoFact.
	GetFact(ctx context.Context, userID, key string) (string, error)

	// ListFacts returns every fact stored for the user.
	ListFacts(ctx context.Context, userID string) (map[string]string, error)

	// DeleteFact removes one fact. Deleting an absent fact is not an error.
	DeleteFact(ctx context.Context, userID, key string) error

	Close() error
}

// VectorMemoryService retrieves semantically similar past content. The
// implementation lives outside this process; the runtime only ever talks to
// the interface.
type VectorMemoryService interface {
	// StoreText embeds and indexes one piece of text for the user.
	StoreText(ctx context.Context, userID, text string) error

	// Search returns up to limit texts most similar to query.
	Search(ctx context.Context, userID, query string, limit int) ([]string, error)
}
