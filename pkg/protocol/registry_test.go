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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

func testProtocol(name string, triggers ...string) *types.Protocol {
	return &types.Protocol{
		Name:           name,
		TriggerPhrases: triggers,
		Steps: []types.ProtocolStep{
			{Agent: "Lights", Function: "set_color_name", Parameters: map[string]any{"color_name": "blue"}},
		},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry(context.Background(), NewMemoryStore(), zaptest.NewLogger(t))
	require.NoError(t, err)
	return r
}

func TestRegisterAssignsID(t *testing.T) {
	r := newTestRegistry(t)
	result, err := r.Register(context.Background(), testProtocol("blue_lights_on", "blue lights"), false)
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, result.Status)
	assert.NotEmpty(t, result.Protocol.ID)
}

func TestRegisterSameIDIsDuplicateNoOp(t *testing.T) {
	r := newTestRegistry(t)
	p := testProtocol("blue_lights_on", "blue lights")
	p.ID = "fixed-id"

	first, err := r.Register(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, StatusRegistered, first.Status)

	second, err := r.Register(context.Background(), p, false)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Len(t, r.ListIDs(), 1)
}

func TestRegisterRejectsCollidingName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(context.Background(), testProtocol("Blue Lights", "blue lights"), false)
	require.NoError(t, err)

	_, err = r.Register(context.Background(), testProtocol("  blue lights ", "make it blue"), false)
	assert.ErrorIs(t, err, ErrDuplicateProtocol)
}

func TestRegisterRejectsEqualTriggerSet(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(context.Background(), testProtocol("first", "blue lights", "lights blue"), false)
	require.NoError(t, err)

	// Same set after normalization, different order and punctuation.
	_, err = r.Register(context.Background(), testProtocol("second", "Lights Blue!", "BLUE lights"), false)
	assert.ErrorIs(t, err, ErrDuplicateProtocol)
}

func TestRegisterReplaceDuplicates(t *testing.T) {
	r := newTestRegistry(t)
	first, err := r.Register(context.Background(), testProtocol("blue_lights", "blue lights"), false)
	require.NoError(t, err)

	replacement := testProtocol("blue_lights", "blue lights")
	replacement.Description = "v2"
	result, err := r.Register(context.Background(), replacement, true)
	require.NoError(t, err)
	assert.Equal(t, StatusReplaced, result.Status)
	assert.Equal(t, first.Protocol.ID, result.Replaced)

	got, ok := r.Get("blue_lights")
	require.True(t, ok)
	assert.Equal(t, "v2", got.Description)
	assert.Len(t, r.ListIDs(), 1)
}

func TestGetByIDAndName(t *testing.T) {
	r := newTestRegistry(t)
	result, err := r.Register(context.Background(), testProtocol("Blue Lights On", "blue lights"), false)
	require.NoError(t, err)

	byID, ok := r.Get(result.Protocol.ID)
	require.True(t, ok)
	byName, ok2 := r.Get("blue lights on")
	require.True(t, ok2)
	assert.Equal(t, byID.ID, byName.ID)

	_, ok = r.Get("nothing")
	assert.False(t, ok)
}

func TestFindMatchingProtocol(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Register(context.Background(), testProtocol("blue_lights_on", "blue lights"), false)
	require.NoError(t, err)

	p, ok := r.FindMatchingProtocol("  BLUE   lights! ")
	require.True(t, ok)
	assert.Equal(t, "blue_lights_on", p.Name)

	_, ok = r.FindMatchingProtocol("red lights")
	assert.False(t, ok)
}

func TestRegistryReloadsFromStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	r1, err := NewRegistry(ctx, store, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = r1.Register(ctx, testProtocol("blue_lights_on", "blue lights"), false)
	require.NoError(t, err)

	r2, err := NewRegistry(ctx, store, zaptest.NewLogger(t))
	require.NoError(t, err)
	p, ok := r2.Get("blue_lights_on")
	require.True(t, ok)
	assert.Equal(t, []string{"blue lights"}, p.TriggerPhrases)

	// Invariants survive the reload.
	_, err = r2.Register(ctx, testProtocol("other", "blue lights"), false)
	assert.ErrorIs(t, err, ErrDuplicateProtocol)
}

func TestRemove(t *testing.T) {
	r := newTestRegistry(t)
	result, err := r.Register(context.Background(), testProtocol("blue_lights_on", "blue lights"), false)
	require.NoError(t, err)

	require.NoError(t, r.Remove(context.Background(), result.Protocol.ID))
	_, ok := r.Get("blue_lights_on")
	assert.False(t, ok)

	// Name and trigger set are free again.
	_, err = r.Register(context.Background(), testProtocol("blue_lights_on", "blue lights"), false)
	assert.NoError(t, err)
}
