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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendAndTurns(t *testing.T) {
	h := NewConversationHistory(10)
	h.Append("owen", "hello", "hi there")
	h.Append("owen", "weather?", "sunny")
	h.Append("someone-else", "ping", "pong")

	turns := h.Turns("owen")
	require.Len(t, turns, 2)
	assert.Equal(t, "hello", turns[0].User)
	assert.Equal(t, "sunny", turns[1].Assistant)
	assert.Len(t, h.Turns("someone-else"), 1)
}

func TestHistoryCapDropsOldest(t *testing.T) {
	h := NewConversationHistory(10)
	for i := 0; i < 10; i++ {
		h.Append("owen", fmt.Sprintf("u%d", i), fmt.Sprintf("a%d", i))
	}
	require.Len(t, h.Turns("owen"), 10)

	// One past the cap: oldest drops, most recent 10 remain.
	h.Append("owen", "u10", "a10")
	turns := h.Turns("owen")
	require.Len(t, turns, 10)
	assert.Equal(t, "u1", turns[0].User)
	assert.Equal(t, "u10", turns[9].User)
}

func TestHistoryDefaultCap(t *testing.T) {
	h := NewConversationHistory(0)
	for i := 0; i < 25; i++ {
		h.Append("owen", fmt.Sprintf("u%d", i), "r")
	}
	assert.Len(t, h.Turns("owen"), DefaultMaxHistory)
}

func TestHistoryAsMaps(t *testing.T) {
	h := NewConversationHistory(10)
	h.Append("owen", "hello", "hi")

	maps := h.AsMaps("owen")
	require.Len(t, maps, 1)
	assert.Equal(t, "hello", maps[0]["user"])
	assert.Equal(t, "hi", maps[0]["assistant"])
}

func TestHistoryClear(t *testing.T) {
	h := NewConversationHistory(10)
	h.Append("owen", "hello", "hi")
	h.Clear("owen")
	assert.Empty(t, h.Turns("owen"))
}

func TestHistoryTurnsIsACopy(t *testing.T) {
	h := NewConversationHistory(10)
	h.Append("owen", "hello", "hi")

	turns := h.Turns("owen")
	turns[0].User = "mutated"
	assert.Equal(t, "hello", h.Turns("owen")[0].User)
}
