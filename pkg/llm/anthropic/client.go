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

// Package anthropic implements llm.ChatProvider against the Anthropic
// Messages API using plain net/http.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

const (
	// DefaultModel is used when neither Config nor the environment names one.
	DefaultModel = "claude-sonnet-4-5-20250929"

	// DefaultEndpoint is the Messages API URL.
	DefaultEndpoint = "https://api.anthropic.com/v1/messages"

	// DefaultMaxTokens caps the reply length.
	DefaultMaxTokens = 4096

	// DefaultTimeout bounds one API round-trip.
	DefaultTimeout = 60 * time.Second

	apiVersion = "2023-06-01"
)

// Config holds the client's settings. An empty Model or Endpoint falls back
// to the ANTHROPIC_DEFAULT_MODEL and ANTHROPIC_API_ENDPOINT environment
// variables, then to the package defaults.
type Config struct {
	APIKey      string
	Model       string
	Endpoint    string
	Timeout     time.Duration
	MaxTokens   int
	Temperature float64
}

// Client talks to the Anthropic Messages API.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger

	mu      sync.RWMutex
	profile *types.AgentProfile
}

// NewClient builds a client. An empty API key is allowed so the rest of the
// runtime can start without credentials; Chat will fail until one is set.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Model == "" {
		cfg.Model = os.Getenv("ANTHROPIC_DEFAULT_MODEL")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = os.Getenv("ANTHROPIC_API_ENDPOINT")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Name implements llm.ChatProvider.
func (c *Client) Name() string { return "anthropic" }

// SetUserContext attaches the profile used to build the system prompt. Nil
// clears it.
func (c *Client) SetUserContext(profile *types.AgentProfile) {
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
}

// Chat sends prompt as a single user turn and returns the concatenated text
// of the reply.
func (c *Client) Chat(ctx context.Context, prompt string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("anthropic: no API key configured")
	}

	req := MessagesRequest{
		Model: c.cfg.Model,
		Messages: []Message{{
			Role:    "user",
			Content: []ContentBlock{{Type: "text", Text: prompt}},
		}},
		System:      c.systemPrompt(),
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	}

	resp, err := c.callAPI(ctx, &req)
	if err != nil {
		return "", err
	}

	var out strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	c.logger.Debug("anthropic chat complete",
		zap.String("model", resp.Model),
		zap.String("stop_reason", resp.StopReason),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens))
	return out.String(), nil
}

func (c *Client) callAPI(ctx context.Context, req *MessagesRequest) (*MessagesResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", c.cfg.APIKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic: request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: read response: %w", err)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: API returned %d: %s", httpResp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var resp MessagesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("anthropic: decode response: %w", err)
	}
	return &resp, nil
}

// systemPrompt renders the attached profile into instructions, or returns ""
// when no profile is set.
func (c *Client) systemPrompt() string {
	c.mu.RLock()
	p := c.profile
	c.mu.RUnlock()
	if p == nil {
		return ""
	}

	var b strings.Builder
	b.WriteString("You are Jarvis, a concise personal assistant.")
	if p.DisplayName != "" {
		fmt.Fprintf(&b, " The user prefers to be called %s.", p.DisplayName)
	}
	if p.Personality != "" {
		fmt.Fprintf(&b, " Adopt a %s personality.", p.Personality)
	}
	if p.ConversationStyle != "" {
		fmt.Fprintf(&b, " Conversation style: %s.", p.ConversationStyle)
	}
	if p.HumorPreference != "" {
		fmt.Fprintf(&b, " Humor preference: %s.", p.HumorPreference)
	}
	if len(p.Interests) > 0 {
		fmt.Fprintf(&b, " The user's interests include %s.", strings.Join(p.Interests, ", "))
	}
	if p.Language != "" {
		fmt.Fprintf(&b, " Reply in %s.", p.Language)
	}
	return b.String()
}
