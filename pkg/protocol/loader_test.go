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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ostepan8/jarvis-server/pkg/types"
)

func writeProtocolFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadFileResponseKey(t *testing.T) {
	dir := t.TempDir()
	writeProtocolFile(t, dir, "blue.json", `{
		"name": "blue_lights_on",
		"description": "turn the lights blue",
		"trigger_phrases": ["blue lights"],
		"steps": [{"agent": "Lights", "function": "set_color_name", "parameters": {"color_name": "blue"}}],
		"response": {"mode": "static", "phrases": ["Lights are blue."]}
	}`)

	p, err := LoadFile(filepath.Join(dir, "blue.json"))
	require.NoError(t, err)
	assert.Equal(t, "blue_lights_on", p.Name)
	require.NotNil(t, p.Response)
	assert.Equal(t, types.ResponseModeStatic, p.Response.Mode)
}

func TestLoadFileLegacyResponsesKey(t *testing.T) {
	dir := t.TempDir()
	writeProtocolFile(t, dir, "legacy.json", `{
		"name": "legacy",
		"trigger_phrases": ["legacy"],
		"steps": [{"agent": "Lights", "function": "on"}],
		"responses": {"mode": "static", "phrases": ["Done."]}
	}`)

	p, err := LoadFile(filepath.Join(dir, "legacy.json"))
	require.NoError(t, err)
	require.NotNil(t, p.Response)
	assert.Equal(t, []string{"Done."}, p.Response.Phrases)
}

func TestLoadFileInvalid(t *testing.T) {
	dir := t.TempDir()
	writeProtocolFile(t, dir, "broken.json", `{"name": "broken"`)
	_, err := LoadFile(filepath.Join(dir, "broken.json"))
	assert.Error(t, err)

	writeProtocolFile(t, dir, "nosteps.json", `{"name": "nosteps", "trigger_phrases": ["x"], "steps": []}`)
	_, err = LoadFile(filepath.Join(dir, "nosteps.json"))
	assert.Error(t, err)
}

func TestLoadDirectory(t *testing.T) {
	dir := t.TempDir()
	writeProtocolFile(t, dir, "blue.json", `{
		"name": "blue_lights_on",
		"trigger_phrases": ["blue lights"],
		"steps": [{"agent": "Lights", "function": "set_color_name", "parameters": {"color_name": "blue"}}]
	}`)
	writeProtocolFile(t, dir, "red.json", `{
		"name": "red_lights_on",
		"trigger_phrases": ["red lights"],
		"steps": [{"agent": "Lights", "function": "set_color_name", "parameters": {"color_name": "red"}}]
	}`)
	writeProtocolFile(t, dir, "broken.json", `not json at all`)
	writeProtocolFile(t, dir, "notes.txt", `ignored`)

	r := newTestRegistry(t)
	count, err := LoadDirectory(context.Background(), dir, r, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	_, ok := r.Get("blue_lights_on")
	assert.True(t, ok)
	_, ok = r.Get("red_lights_on")
	assert.True(t, ok)
}

func TestLoadDirectorySkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeProtocolFile(t, dir, "a.json", `{
		"name": "blue_lights_on",
		"trigger_phrases": ["blue lights"],
		"steps": [{"agent": "Lights", "function": "on"}]
	}`)
	writeProtocolFile(t, dir, "b.json", `{
		"name": "BLUE_LIGHTS_ON",
		"trigger_phrases": ["make it blue"],
		"steps": [{"agent": "Lights", "function": "on"}]
	}`)

	r := newTestRegistry(t)
	count, err := LoadDirectory(context.Background(), dir, r, false, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
