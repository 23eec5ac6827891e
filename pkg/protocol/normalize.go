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

// Package protocol implements the scripted-workflow runtime: the persistent
// protocol registry, the trigger matcher with typed argument extraction, the
// step executor, the response formatter, and the recorder that turns live
// capability traffic into replayable protocols.
package protocol

import (
	"sort"
	"strings"
	"unicode"
)

// NormalizeName canonicalizes a protocol name for uniqueness checks:
// lowercase, trimmed.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizePhrase canonicalizes a trigger phrase or utterance: lowercase,
// punctuation stripped, whitespace collapsed to single spaces. Placeholder
// braces survive so templates stay recognizable after normalization.
func NormalizePhrase(phrase string) string {
	var b strings.Builder
	b.Grow(len(phrase))
	for _, r := range strings.ToLower(phrase) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		case r == '{' || r == '}' || r == '_':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// TriggerSetKey reduces a phrase list to a canonical comparison key:
// normalized, deduplicated, sorted, joined. Two protocols with the same key
// have the same trigger-phrase set.
func TriggerSetKey(phrases []string) string {
	seen := make(map[string]struct{}, len(phrases))
	out := make([]string, 0, len(phrases))
	for _, p := range phrases {
		n := NormalizePhrase(p)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return strings.Join(out, "\n")
}
