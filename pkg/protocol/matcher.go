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
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

var placeholderRe = regexp.MustCompile(`\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// Match is a successful trigger match: the protocol, the extracted (and
// coerced) arguments, and which phrases were involved.
type Match struct {
	Protocol *types.Protocol

	// Arguments holds coerced placeholder captures merged over the
	// protocol's argument defaults.
	Arguments map[string]any

	// TriggerPhrase is the registered phrase (possibly templated) that
	// matched.
	TriggerPhrase string

	// MatchedPhrase is the user utterance as given.
	MatchedPhrase string
}

// TriggerMatcher matches utterances against the registry's trigger phrases.
// Literal phrases always beat templated ones; within each category the first
// registered protocol wins, and within a protocol phrase order decides.
type TriggerMatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewTriggerMatcher creates a matcher over the registry.
func NewTriggerMatcher(registry *Registry, logger *zap.Logger) *TriggerMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TriggerMatcher{registry: registry, logger: logger}
}

// Match returns the protocol selected by the utterance, or nil when nothing
// matches. A failed argument coercion on an otherwise-matching template makes
// that template not match; the scan continues.
func (m *TriggerMatcher) Match(utterance string) *Match {
	norm := NormalizePhrase(utterance)
	if norm == "" {
		return nil
	}
	protocols := m.registry.Snapshot()

	// Pass 1: literal phrases, exact normalized equality.
	for _, p := range protocols {
		for _, phrase := range p.TriggerPhrases {
			if placeholderRe.MatchString(phrase) {
				continue
			}
			if NormalizePhrase(phrase) == norm {
				args, ok := m.coerceArguments(p, nil)
				if !ok {
					continue
				}
				m.logger.Debug("literal trigger matched",
					zap.String("protocol", p.Name),
					zap.String("phrase", phrase))
				return &Match{Protocol: p, Arguments: args, TriggerPhrase: phrase, MatchedPhrase: utterance}
			}
		}
	}

	// Pass 2: templated phrases with placeholder capture.
	for _, p := range protocols {
		for _, phrase := range p.TriggerPhrases {
			if !placeholderRe.MatchString(phrase) {
				continue
			}
			captures, ok := captureTemplate(phrase, norm)
			if !ok {
				continue
			}
			args, ok := m.coerceArguments(p, captures)
			if !ok {
				m.logger.Debug("template matched but argument coercion failed",
					zap.String("protocol", p.Name),
					zap.String("phrase", phrase))
				continue
			}
			m.logger.Debug("templated trigger matched",
				zap.String("protocol", p.Name),
				zap.String("phrase", phrase))
			return &Match{Protocol: p, Arguments: args, TriggerPhrase: phrase, MatchedPhrase: utterance}
		}
	}
	return nil
}

// captureTemplate matches a normalized utterance against a trigger template,
// returning the named placeholder captures. Literal segments must match
// exactly; there is no leading or trailing slack.
func captureTemplate(template, normUtterance string) (map[string]string, bool) {
	normTemplate := NormalizePhrase(template)

	var (
		pattern strings.Builder
		names   []string
		last    int
	)
	pattern.WriteString(`^`)
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(normTemplate, -1) {
		pattern.WriteString(regexp.QuoteMeta(normTemplate[last:loc[0]]))
		pattern.WriteString(`(.+?)`)
		names = append(names, normTemplate[loc[2]:loc[3]])
		last = loc[1]
	}
	pattern.WriteString(regexp.QuoteMeta(normTemplate[last:]))
	pattern.WriteString(`$`)

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, false
	}
	groups := re.FindStringSubmatch(normUtterance)
	if groups == nil {
		return nil, false
	}
	captures := make(map[string]string, len(names))
	for i, name := range names {
		captures[name] = strings.TrimSpace(groups[i+1])
	}
	return captures, true
}

// coerceArguments validates captures against the protocol's argument
// definitions and merges them over the protocol defaults. Returns false when
// a required argument is absent or a capture fails its type.
func (m *TriggerMatcher) coerceArguments(p *types.Protocol, captures map[string]string) (map[string]any, bool) {
	args := make(map[string]any, len(p.Arguments)+len(captures))
	for k, v := range p.Arguments {
		args[k] = v
	}

	defs := make(map[string]types.ArgumentDefinition, len(p.ArgumentDefinitions))
	for _, d := range p.ArgumentDefinitions {
		defs[d.Name] = d
	}

	for name, raw := range captures {
		if def, ok := defs[name]; ok {
			v, ok := coerceValue(def, raw)
			if !ok {
				return nil, false
			}
			args[name] = v
		} else {
			args[name] = raw
		}
	}

	for _, d := range p.ArgumentDefinitions {
		if d.Required {
			if _, ok := args[d.Name]; !ok {
				return nil, false
			}
		}
	}
	return args, true
}

func coerceValue(def types.ArgumentDefinition, raw string) (any, bool) {
	switch def.Type {
	case types.ArgTypeChoice:
		for _, c := range def.Choices {
			if strings.EqualFold(c, raw) {
				return c, true
			}
		}
		return nil, false

	case types.ArgTypeRange:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, false
		}
		if def.Min != nil && n < *def.Min {
			return nil, false
		}
		if def.Max != nil && n > *def.Max {
			return nil, false
		}
		return n, true

	case types.ArgTypeBoolean:
		switch strings.ToLower(raw) {
		case "true", "yes", "on":
			return true, true
		case "false", "no", "off":
			return false, true
		default:
			return nil, false
		}

	default:
		// text and untyped definitions pass through.
		return raw, true
	}
}
