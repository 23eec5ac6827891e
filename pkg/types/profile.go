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
package types

import (
	"encoding/json"
	"time"
)

// AgentProfile is the per-user personalization state passed through request
// metadata and attached to the chat provider.
type AgentProfile struct {
	UserID            string    `json:"user_id"`
	DisplayName       string    `json:"display_name,omitempty"`
	Personality       string    `json:"preferred_personality,omitempty"`
	Interests         []string  `json:"interests,omitempty"`
	ConversationStyle string    `json:"conversation_style,omitempty"`
	HumorPreference   string    `json:"humor_preference,omitempty"`
	TopicsOfInterest  []string  `json:"topics_of_interest,omitempty"`
	Language          string    `json:"language,omitempty"`
	InteractionCount  int       `json:"interaction_count,omitempty"`
	LastSeen          time.Time `json:"last_seen,omitempty"`
	RequiredResources []string  `json:"required_resources,omitempty"`
}

// ProfileFromMetadata decodes an AgentProfile from the loosely typed map form
// it arrives in over the wire. Unknown keys are ignored.
func ProfileFromMetadata(m map[string]any) (*AgentProfile, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var p AgentProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UserConfig identifies the user and device context of a single request.
type UserConfig struct {
	UserID   string `json:"user_id"`
	Timezone string `json:"timezone,omitempty"`
	Device   string `json:"device,omitempty"`
	Location string `json:"location,omitempty"`
	Source   string `json:"source,omitempty"`
}

// NLUMetadata is the optional metadata block of an NLU routing result.
type NLUMetadata struct {
	Intent     string `json:"intent,omitempty"`
	Capability string `json:"capability,omitempty"`
}

// NLUResult is the expected shape of an intent_matching capability response.
type NLUResult struct {
	Response  string           `json:"response"`
	Metadata  *NLUMetadata     `json:"metadata,omitempty"`
	Actions   []map[string]any `json:"actions,omitempty"`
	Results   []any            `json:"results,omitempty"`
	ToolCalls []any            `json:"tool_calls,omitempty"`
}

// NLUResultFromContent decodes a broker response content map into an
// NLUResult. Decoding is lenient: missing fields stay zero.
func NLUResultFromContent(content map[string]any) (*NLUResult, error) {
	raw, err := json.Marshal(content)
	if err != nil {
		return nil, err
	}
	var r NLUResult
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Intent returns the routed intent, or "" when absent.
func (r *NLUResult) Intent() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata.Intent
}

// Capability returns the routed capability, or "" when absent.
func (r *NLUResult) Capability() string {
	if r == nil || r.Metadata == nil {
		return ""
	}
	return r.Metadata.Capability
}
