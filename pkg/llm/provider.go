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

// Package llm defines the chat-provider seam between the runtime and an AI
// collaborator. The core never depends on a concrete model client; the
// anthropic subpackage provides one.
package llm

import (
	"context"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ChatProvider is an AI collaborator that answers a single prompt. The
// response formatter uses it for ai-mode protocol responses and the
// orchestrator attaches per-user profile state to it.
type ChatProvider interface {
	// Name identifies the provider (e.g. "anthropic").
	Name() string

	// Chat sends prompt as the sole user turn and returns the text reply.
	Chat(ctx context.Context, prompt string) (string, error)

	// SetUserContext attaches the active user's profile so subsequent Chat
	// calls can be personalized. A nil profile clears the context.
	SetUserContext(profile *types.AgentProfile)
}
