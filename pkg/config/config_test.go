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
package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jarvis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 1000, cfg.Broker.QueueCapacity)
	assert.Equal(t, 1, cfg.Broker.Workers)
	assert.Equal(t, 300, cfg.Broker.RequestTTLSeconds)
	assert.Equal(t, 60, cfg.Broker.CleanupIntervalSeconds)
	assert.True(t, cfg.Broker.DeliverResponsesToRecipient)

	assert.Equal(t, "default", cfg.Orchestrator.DefaultUserID)
	assert.Equal(t, 15, cfg.Orchestrator.RequestTimeoutSeconds)
	assert.Equal(t, 10, cfg.Orchestrator.MaxHistory)

	assert.False(t, cfg.NightMode.Enabled)
	assert.Equal(t, "0 23 * * *", cfg.NightMode.EnterCron)
	assert.Equal(t, "0 7 * * *", cfg.NightMode.ExitCron)

	assert.Equal(t, 4096, cfg.LLM.MaxTokens)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "./jarvis.db", cfg.Database.ProtocolPath)
	assert.Equal(t, "info", cfg.Logging.Level)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, `
broker:
  queue_capacity: 50
  workers: 4
orchestrator:
  default_user_id: owen
  request_timeout_seconds: 5
night_mode:
  enabled: true
  agents: [NightGuard, Sentry]
llm:
  model: test-model
database:
  protocol_path: /tmp/test.db
`))
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Broker.QueueCapacity)
	assert.Equal(t, 4, cfg.Broker.Workers)
	assert.Equal(t, "owen", cfg.Orchestrator.DefaultUserID)
	assert.True(t, cfg.NightMode.Enabled)
	assert.Equal(t, []string{"NightGuard", "Sentry"}, cfg.NightMode.Agents)
	assert.Equal(t, "test-model", cfg.LLM.Model)
	assert.Equal(t, "/tmp/test.db", cfg.Database.ProtocolPath)

	// File values do not disturb neighbouring defaults.
	assert.Equal(t, 300, cfg.Broker.RequestTTLSeconds)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("JARVIS_BROKER_QUEUE_CAPACITY", "25")
	t.Setenv("JARVIS_LLM_API_KEY", "secret-from-env")

	cfg, err := Load(writeConfigFile(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 25, cfg.Broker.QueueCapacity)
	assert.Equal(t, "secret-from-env", cfg.LLM.APIKey)
}

func TestLoadBadFile(t *testing.T) {
	_, err := Load(writeConfigFile(t, "broker: [not: a: map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(writeConfigFile(t, ""))
		require.NoError(t, err)
		return cfg
	}

	cfg := base()
	cfg.Broker.QueueCapacity = 0
	assert.ErrorContains(t, cfg.Validate(), "queue_capacity")

	cfg = base()
	cfg.Broker.Workers = -1
	assert.ErrorContains(t, cfg.Validate(), "workers")

	cfg = base()
	cfg.NightMode.Enabled = true
	cfg.NightMode.EnterCron = ""
	assert.ErrorContains(t, cfg.Validate(), "enter_cron")

	cfg = base()
	cfg.Database.ProtocolPath = ""
	assert.ErrorContains(t, cfg.Validate(), "protocol_path")

	cfg = base()
	cfg.Logging.Level = "verbose"
	assert.ErrorContains(t, cfg.Validate(), "logging.level")
}

func TestDurationHelpers(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Broker.RequestTTL())
	assert.Equal(t, 60*time.Second, cfg.Broker.CleanupInterval())
	assert.Equal(t, 15*time.Second, cfg.Orchestrator.RequestTimeout())
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout())
}

func TestGenerateExampleParses(t *testing.T) {
	cfg, err := Load(writeConfigFile(t, GenerateExample()))
	require.NoError(t, err)
	assert.NoError(t, cfg.Validate())
}
