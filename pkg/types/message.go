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

// Package types contains the shared data model of the Jarvis runtime: the
// message envelope exchanged over the broker, the protocol definition used by
// the protocol runtime, and the per-user state passed through request
// metadata. The package has no dependencies beyond the standard library and
// uuid so every other package can import it freely.
package types

import (
	"time"

	"github.com/google/uuid"
)

// Well-known message types. Anything else is treated as a free-form message
// and routed at low priority.
const (
	MessageTypeCapabilityRequest  = "capability_request"
	MessageTypeCapabilityResponse = "capability_response"
	MessageTypeError              = "error"
)

// Content keys used by capability request and response envelopes.
const (
	ContentKeyCapability    = "capability"
	ContentKeyData          = "data"
	ContentKeyAllowedAgents = "allowed_agents"
	ContentKeyError         = "error"
	ContentKeyResponse      = "response"
)

// CapabilityIntentMatching is the reserved capability used by the
// orchestrator for natural-language intent routing. Broadcasts of this
// capability are never recorded by the protocol recorder.
const CapabilityIntentMatching = "intent_matching"

// Message is the immutable envelope carried by the message broker.
//
// A Message must not be mutated after construction. Copies made during
// broadcast fan-out share Content by reference, so Content must be treated as
// read-only by every receiver.
type Message struct {
	// ID uniquely identifies this envelope.
	ID string `json:"id"`

	// FromAgent names the sender.
	FromAgent string `json:"from_agent"`

	// ToAgent names the recipient. Empty means broadcast.
	ToAgent string `json:"to_agent,omitempty"`

	// Type is one of the MessageType constants or a free-form string.
	Type string `json:"message_type"`

	// Content is the dynamic payload. Read-only after construction.
	Content map[string]any `json:"content"`

	// RequestID correlates a capability request with its response.
	RequestID string `json:"request_id,omitempty"`

	// ReplyTo optionally references the message this one answers.
	ReplyTo string `json:"reply_to,omitempty"`

	// CreatedAt records construction time.
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage constructs a message with a fresh id. An empty toAgent makes the
// message a broadcast.
func NewMessage(fromAgent, toAgent, messageType string, content map[string]any) *Message {
	if content == nil {
		content = map[string]any{}
	}
	return &Message{
		ID:        uuid.NewString(),
		FromAgent: fromAgent,
		ToAgent:   toAgent,
		Type:      messageType,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// WithCorrelation returns a copy of the message carrying the given request id
// and optional reply-to reference. The original message is not modified.
func (m *Message) WithCorrelation(requestID, replyTo string) *Message {
	c := *m
	c.RequestID = requestID
	c.ReplyTo = replyTo
	return &c
}

// CopyTo returns a copy of the message addressed to a single recipient.
// Content is shared by reference; receivers must not mutate it.
func (m *Message) CopyTo(toAgent string) *Message {
	c := *m
	c.ToAgent = toAgent
	return &c
}

// IsBroadcast reports whether the message has no direct recipient.
func (m *Message) IsBroadcast() bool {
	return m.ToAgent == ""
}

// ErrorText extracts the error string from an error envelope or a response
// whose content carries an error field. Returns "" when there is none.
func (m *Message) ErrorText() string {
	if m.Content == nil {
		return ""
	}
	if s, ok := m.Content[ContentKeyError].(string); ok {
		return s
	}
	return ""
}

// StringContent returns content[key] as a string when present.
func (m *Message) StringContent(key string) string {
	if m.Content == nil {
		return ""
	}
	s, _ := m.Content[key].(string)
	return s
}

// AllowedAgents extracts the allowed-agent list from a capability request.
// Both []string and []any payloads are accepted since content maps may have
// passed through JSON. A nil return means no restriction.
func (m *Message) AllowedAgents() []string {
	if m.Content == nil {
		return nil
	}
	switch v := m.Content[ContentKeyAllowedAgents].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
