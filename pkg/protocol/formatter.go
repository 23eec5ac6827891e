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
	"fmt"
	"math/rand"
	"strings"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/llm"
	"github.com/ostepan8/jarvis-server/pkg/types"
)

// ResponseFormatter renders an execution result as the user-facing reply.
type ResponseFormatter struct {
	chat   llm.ChatProvider
	rand   *rand.Rand
	logger *zap.Logger
}

// NewResponseFormatter creates a formatter. chat may be nil; ai-mode
// responses then fall back to the substituted prompt text.
func NewResponseFormatter(chat llm.ChatProvider, logger *zap.Logger) *ResponseFormatter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResponseFormatter{
		chat:   chat,
		rand:   rand.New(rand.NewSource(rand.Int63())),
		logger: logger,
	}
}

// Format renders the result. Step errors win over any configured response:
// they are concatenated into a single sentence.
func (f *ResponseFormatter) Format(ctx context.Context, result *ExecutionResult, args map[string]any) string {
	p := result.Protocol

	if errs := result.StepErrors(); len(errs) > 0 {
		return fmt.Sprintf("I ran into trouble with %s: %s.", p.Name, strings.Join(errs, "; "))
	}

	if p.Response == nil {
		return SubstituteArgs(fmt.Sprintf("%s completed successfully.", p.Name), args)
	}

	switch p.Response.Mode {
	case types.ResponseModeStatic:
		phrase := p.Response.Phrases[f.rand.Intn(len(p.Response.Phrases))]
		return SubstituteArgs(phrase, args)

	case types.ResponseModeAI:
		prompt := SubstituteArgs(p.Response.Prompt, args)
		if f.chat == nil {
			return prompt
		}
		reply, err := f.chat.Chat(ctx, prompt)
		if err != nil {
			f.logger.Warn("ai response generation failed, using prompt text",
				zap.String("protocol", p.Name),
				zap.Error(err))
			return prompt
		}
		return reply

	default:
		return SubstituteArgs(fmt.Sprintf("%s completed successfully.", p.Name), args)
	}
}

// SubstituteArgs replaces "{name}" tokens with the stringified argument
// values. Unknown tokens are left intact.
func SubstituteArgs(template string, args map[string]any) string {
	out := template
	for name, value := range args {
		out = strings.ReplaceAll(out, "{"+name+"}", fmt.Sprintf("%v", value))
	}
	return out
}
