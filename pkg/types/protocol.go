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
	"fmt"
	"strings"
)

// Argument definition types.
const (
	ArgTypeChoice  = "choice"
	ArgTypeRange   = "range"
	ArgTypeText    = "text"
	ArgTypeBoolean = "boolean"
)

// Response rendering modes.
const (
	ResponseModeStatic = "static"
	ResponseModeAI     = "ai"
)

// ProtocolStep is a single scripted capability call. Steps are pure values.
type ProtocolStep struct {
	// Agent names the provider that performs the step.
	Agent string `json:"agent"`

	// Function is the capability or in-process function name on that provider.
	Function string `json:"function"`

	// Parameters holds literal default parameters.
	Parameters map[string]any `json:"parameters,omitempty"`

	// ParameterMappings maps a parameter name to a reference expression that
	// resolves against prior step outputs ("{step_<i>_<fn>.<field>}") or
	// protocol-level arguments ("{<arg>}").
	ParameterMappings map[string]string `json:"parameter_mappings,omitempty"`
}

// ArgumentDefinition constrains an argument extracted from a trigger-phrase
// placeholder.
type ArgumentDefinition struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Choices     []string `json:"choices,omitempty"`
	Min         *int     `json:"min,omitempty"`
	Max         *int     `json:"max,omitempty"`
	Required    bool     `json:"required,omitempty"`
	Description string   `json:"description,omitempty"`
}

// ProtocolResponse controls how an execution result is rendered.
type ProtocolResponse struct {
	// Mode is "static" or "ai".
	Mode string `json:"mode"`

	// Phrases is the static phrase pool; one is picked at random.
	Phrases []string `json:"phrases,omitempty"`

	// Prompt is the AI prompt template, substituted before dispatch.
	Prompt string `json:"prompt,omitempty"`
}

// Protocol is a named, replayable sequence of capability calls selected by
// trigger phrases.
type Protocol struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Description         string               `json:"description,omitempty"`
	Arguments           map[string]any       `json:"arguments,omitempty"`
	TriggerPhrases      []string             `json:"trigger_phrases"`
	Steps               []ProtocolStep       `json:"steps"`
	ArgumentDefinitions []ArgumentDefinition `json:"argument_definitions,omitempty"`
	Response            *ProtocolResponse    `json:"response,omitempty"`
}

// Validate checks structural well-formedness: a name, at least one step, and
// consistent argument definitions.
func (p *Protocol) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("protocol name cannot be empty")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("protocol %q has no steps", p.Name)
	}
	for i, s := range p.Steps {
		if s.Agent == "" {
			return fmt.Errorf("protocol %q step %d: agent cannot be empty", p.Name, i)
		}
		if s.Function == "" {
			return fmt.Errorf("protocol %q step %d: function cannot be empty", p.Name, i)
		}
	}
	for _, d := range p.ArgumentDefinitions {
		switch d.Type {
		case ArgTypeChoice:
			if len(d.Choices) == 0 {
				return fmt.Errorf("protocol %q argument %q: choice type requires choices", p.Name, d.Name)
			}
		case ArgTypeRange:
			if d.Min != nil && d.Max != nil && *d.Min > *d.Max {
				return fmt.Errorf("protocol %q argument %q: min exceeds max", p.Name, d.Name)
			}
		case ArgTypeText, ArgTypeBoolean, "":
		default:
			return fmt.Errorf("protocol %q argument %q: unknown type %q", p.Name, d.Name, d.Type)
		}
	}
	if p.Response != nil {
		switch p.Response.Mode {
		case ResponseModeStatic:
			if len(p.Response.Phrases) == 0 {
				return fmt.Errorf("protocol %q: static response requires phrases", p.Name)
			}
		case ResponseModeAI:
			if p.Response.Prompt == "" {
				return fmt.Errorf("protocol %q: ai response requires a prompt", p.Name)
			}
		default:
			return fmt.Errorf("protocol %q: unknown response mode %q", p.Name, p.Response.Mode)
		}
	}
	return nil
}

// Clone returns a deep copy of the protocol. Step parameter maps are copied
// one level deep, which is sufficient for the recorder's mutation pattern.
func (p *Protocol) Clone() *Protocol {
	c := *p
	if p.Arguments != nil {
		c.Arguments = make(map[string]any, len(p.Arguments))
		for k, v := range p.Arguments {
			c.Arguments[k] = v
		}
	}
	c.TriggerPhrases = append([]string(nil), p.TriggerPhrases...)
	c.ArgumentDefinitions = append([]ArgumentDefinition(nil), p.ArgumentDefinitions...)
	if p.Steps != nil {
		c.Steps = make([]ProtocolStep, len(p.Steps))
		for i, s := range p.Steps {
			cs := s
			if s.Parameters != nil {
				cs.Parameters = make(map[string]any, len(s.Parameters))
				for k, v := range s.Parameters {
					cs.Parameters[k] = v
				}
			}
			if s.ParameterMappings != nil {
				cs.ParameterMappings = make(map[string]string, len(s.ParameterMappings))
				for k, v := range s.ParameterMappings {
					cs.ParameterMappings[k] = v
				}
			}
			c.Steps[i] = cs
		}
	}
	if p.Response != nil {
		r := *p.Response
		r.Phrases = append([]string(nil), p.Response.Phrases...)
		c.Response = &r
	}
	return &c
}

// StepResultKey returns the key under which the executor stores the result of
// step index i: "step_<i>_<function>".
func StepResultKey(index int, function string) string {
	return fmt.Sprintf("step_%d_%s", index, function)
}
