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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFactStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFactStore()

	require.NoError(t, s.StoreFact(ctx, "owen", "favorite_color", "blue"))
	require.NoError(t, s.StoreFact(ctx, "owen", "coffee", "black"))
	require.NoError(t, s.StoreFact(ctx, "guest", "favorite_color", "green"))

	v, err := s.GetFact(ctx, "owen", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "blue", v)

	facts, err := s.ListFacts(ctx, "owen")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"favorite_color": "blue", "coffee": "black"}, facts)

	// Users do not share facts.
	v, err = s.GetFact(ctx, "guest", "favorite_color")
	require.NoError(t, err)
	assert.Equal(t, "green", v)
}

func TestMemoryFactStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFactStore()

	require.NoError(t, s.StoreFact(ctx, "owen", "coffee", "black"))
	require.NoError(t, s.StoreFact(ctx, "owen", "coffee", "oat milk latte"))

	v, err := s.GetFact(ctx, "owen", "coffee")
	require.NoError(t, err)
	assert.Equal(t, "oat milk latte", v)
}

func TestMemoryFactStoreMissing(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFactStore()

	_, err := s.GetFact(ctx, "owen", "unknown")
	assert.ErrorIs(t, err, ErrNoFact)
}

func TestMemoryFactStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryFactStore()

	require.NoError(t, s.StoreFact(ctx, "owen", "coffee", "black"))
	require.NoError(t, s.DeleteFact(ctx, "owen", "coffee"))
	_, err := s.GetFact(ctx, "owen", "coffee")
	assert.ErrorIs(t, err, ErrNoFact)

	// Deleting an absent fact is a no-op.
	require.NoError(t, s.DeleteFact(ctx, "owen", "coffee"))
	require.NoError(t, s.DeleteFact(ctx, "nobody", "anything"))
}

func TestFactKey(t *testing.T) {
	assert.Equal(t, "jarvis:facts:owen", factKey("owen"))
}
