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

import "sync"

// DefaultMaxHistory is the per-user conversation history cap.
const DefaultMaxHistory = 10

// Turn is one (utterance, reply) exchange.
type Turn struct {
	User      string `json:"user"`
	Assistant string `json:"assistant"`
}

// ConversationHistory keeps a bounded FIFO of turns per user. Purely
// in-memory; history does not survive a restart.
type ConversationHistory struct {
	mu    sync.Mutex
	max   int
	turns map[string][]Turn
}

// NewConversationHistory creates a history capped at max turns per user.
// A non-positive max falls back to DefaultMaxHistory.
func NewConversationHistory(max int) *ConversationHistory {
	if max <= 0 {
		max = DefaultMaxHistory
	}
	return &ConversationHistory{
		max:   max,
		turns: make(map[string][]Turn),
	}
}

// Append records a turn, evicting the oldest when the user is at capacity.
func (h *ConversationHistory) Append(userID, utterance, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	turns := append(h.turns[userID], Turn{User: utterance, Assistant: reply})
	if len(turns) > h.max {
		turns = turns[len(turns)-h.max:]
	}
	h.turns[userID] = turns
}

// Turns returns a copy of the user's history, oldest first.
func (h *ConversationHistory) Turns(userID string) []Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]Turn(nil), h.turns[userID]...)
}

// AsMaps renders the history in the wire shape the NLU provider expects.
func (h *ConversationHistory) AsMaps(userID string) []map[string]any {
	turns := h.Turns(userID)
	out := make([]map[string]any, len(turns))
	for i, t := range turns {
		out[i] = map[string]any{"user": t.User, "assistant": t.Assistant}
	}
	return out
}

// Clear drops a user's history.
func (h *ConversationHistory) Clear(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, userID)
}
