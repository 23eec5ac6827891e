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

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ErrNotFound is returned by store lookups for unknown protocol ids.
var ErrNotFound = errors.New("protocol not found")

// Store persists protocol definitions. Implementations must be safe for
// concurrent use; the registry layers uniqueness invariants and matching on
// top.
type Store interface {
	// Save inserts or replaces a protocol by id.
	Save(ctx context.Context, p *types.Protocol) error

	// Get returns the protocol with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*types.Protocol, error)

	// List returns every stored protocol.
	List(ctx context.Context) ([]*types.Protocol, error)

	// Delete removes a protocol by id. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error

	// Close releases store resources.
	Close() error
}
