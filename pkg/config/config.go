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

// Package config loads the server configuration.
// Priority: config file > environment variables > defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultConfigFileName is the name of the config file (jarvis.yaml).
const DefaultConfigFileName = "jarvis"

// EnvPrefix is the prefix for environment overrides (JARVIS_*).
const EnvPrefix = "JARVIS"

// Config holds all configuration for the Jarvis server.
type Config struct {
	// Broker configuration
	Broker BrokerConfig `mapstructure:"broker"`

	// Orchestrator configuration
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`

	// Night mode configuration
	NightMode NightModeConfig `mapstructure:"night_mode"`

	// LLM provider configuration
	LLM LLMConfig `mapstructure:"llm"`

	// Redis fact-memory configuration
	Redis RedisConfig `mapstructure:"redis"`

	// Database configuration (protocol and observability SQLite files)
	Database DatabaseConfig `mapstructure:"database"`

	// Protocols configuration
	Protocols ProtocolsConfig `mapstructure:"protocols"`

	// Logging configuration
	Logging LoggingConfig `mapstructure:"logging"`
}

// BrokerConfig holds message broker tunables.
type BrokerConfig struct {
	// QueueCapacity bounds each priority queue (default: 1000)
	QueueCapacity int `mapstructure:"queue_capacity"`

	// Workers is the message-processing worker count (default: 1)
	Workers int `mapstructure:"workers"`

	// RequestTTLSeconds bounds correlation entry lifetime (default: 300)
	RequestTTLSeconds int `mapstructure:"request_ttl_seconds"`

	// CleanupIntervalSeconds is the correlation GC period (default: 60)
	CleanupIntervalSeconds int `mapstructure:"cleanup_interval_seconds"`

	// DeliverResponsesToRecipient also queues capability responses to their
	// to_agent after resolving the correlation entry (default: true)
	DeliverResponsesToRecipient bool `mapstructure:"deliver_responses_to_recipient"`
}

// OrchestratorConfig holds request-pipeline tunables.
type OrchestratorConfig struct {
	// DefaultUserID is used when a request carries none (default: "default")
	DefaultUserID string `mapstructure:"default_user_id"`

	// RequestTimeoutSeconds bounds the NLU round-trip (default: 15)
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`

	// MaxHistory caps per-user conversation history (default: 10)
	MaxHistory int `mapstructure:"max_history"`
}

// NightModeConfig holds the maintenance-window schedule.
type NightModeConfig struct {
	// Enabled turns on the cron schedule (default: false)
	Enabled bool `mapstructure:"enabled"`

	// EnterCron enters night mode, standard 5-field cron (default: "0 23 * * *")
	EnterCron string `mapstructure:"enter_cron"`

	// ExitCron exits night mode (default: "0 7 * * *")
	ExitCron string `mapstructure:"exit_cron"`

	// Agents are activated on enter and deactivated on exit
	Agents []string `mapstructure:"agents"`
}

// LLMConfig holds chat provider configuration.
type LLMConfig struct {
	// APIKey for the Anthropic API (env: JARVIS_LLM_API_KEY)
	APIKey string `mapstructure:"api_key"`

	Model    string `mapstructure:"model"`
	Endpoint string `mapstructure:"endpoint"`

	Temperature    float64 `mapstructure:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
}

// RedisConfig holds the fact-memory connection settings.
type RedisConfig struct {
	// Enabled turns on the Redis fact store; when false an in-memory store
	// is used (default: false)
	Enabled bool `mapstructure:"enabled"`

	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig holds SQLite file paths.
type DatabaseConfig struct {
	// ProtocolPath is the protocol store database (default: ./jarvis.db)
	ProtocolPath string `mapstructure:"protocol_path"`

	// UsagePath is the observability database; empty reuses ProtocolPath
	UsagePath string `mapstructure:"usage_path"`
}

// ProtocolsConfig holds protocol loading settings.
type ProtocolsConfig struct {
	// Dir is a directory of protocol JSON files loaded at startup (optional)
	Dir string `mapstructure:"dir"`

	// ReplaceDuplicates replaces on name/trigger-set collisions during
	// directory loading (default: false)
	ReplaceDuplicates bool `mapstructure:"replace_duplicates"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // text, json
}

// Load reads configuration from cfgFile (or the standard search paths when
// empty), applies JARVIS_* environment overrides, and fills defaults.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.jarvis")
		v.AddConfigPath("/etc/jarvis/")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file %s: %w", v.ConfigFileUsed(), err)
		}
		// Config file not found; using defaults + env vars
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Broker defaults
	v.SetDefault("broker.queue_capacity", 1000)
	v.SetDefault("broker.workers", 1)
	v.SetDefault("broker.request_ttl_seconds", 300)
	v.SetDefault("broker.cleanup_interval_seconds", 60)
	v.SetDefault("broker.deliver_responses_to_recipient", true)

	// Orchestrator defaults
	v.SetDefault("orchestrator.default_user_id", "default")
	v.SetDefault("orchestrator.request_timeout_seconds", 15)
	v.SetDefault("orchestrator.max_history", 10)

	// Night mode defaults
	v.SetDefault("night_mode.enabled", false)
	v.SetDefault("night_mode.enter_cron", "0 23 * * *")
	v.SetDefault("night_mode.exit_cron", "0 7 * * *")

	// LLM defaults
	v.SetDefault("llm.temperature", 1.0)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.timeout_seconds", 60)

	// Redis defaults
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Database defaults
	v.SetDefault("database.protocol_path", "./jarvis.db")

	// Protocols defaults
	v.SetDefault("protocols.replace_duplicates", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Broker.QueueCapacity < 1 {
		return fmt.Errorf("broker.queue_capacity must be positive, got %d", c.Broker.QueueCapacity)
	}
	if c.Broker.Workers < 1 {
		return fmt.Errorf("broker.workers must be positive, got %d", c.Broker.Workers)
	}
	if c.Orchestrator.RequestTimeoutSeconds < 1 {
		return fmt.Errorf("orchestrator.request_timeout_seconds must be positive, got %d", c.Orchestrator.RequestTimeoutSeconds)
	}
	if c.NightMode.Enabled {
		if c.NightMode.EnterCron == "" || c.NightMode.ExitCron == "" {
			return fmt.Errorf("night_mode.enter_cron and night_mode.exit_cron are required when night mode is enabled")
		}
	}
	if c.Database.ProtocolPath == "" {
		return fmt.Errorf("database.protocol_path is required")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	return nil
}

// RequestTTL returns the broker correlation TTL as a duration.
func (c *BrokerConfig) RequestTTL() time.Duration {
	return time.Duration(c.RequestTTLSeconds) * time.Second
}

// CleanupInterval returns the correlation GC period as a duration.
func (c *BrokerConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}

// RequestTimeout returns the NLU round-trip bound as a duration.
func (c *OrchestratorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the LLM HTTP timeout as a duration.
func (c *LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// GenerateExample returns an example configuration file.
func GenerateExample() string {
	return `# Jarvis Server Configuration
# Priority: config file > environment variables (JARVIS_*) > defaults

broker:
  queue_capacity: 1000
  workers: 1
  request_ttl_seconds: 300
  cleanup_interval_seconds: 60
  deliver_responses_to_recipient: true

orchestrator:
  default_user_id: default
  request_timeout_seconds: 15
  max_history: 10

night_mode:
  enabled: false
  enter_cron: "0 23 * * *"
  exit_cron: "0 7 * * *"
  agents: []

llm:
  # api_key: set via JARVIS_LLM_API_KEY
  model: ""     # empty uses ANTHROPIC_DEFAULT_MODEL, then the built-in default
  endpoint: ""  # empty uses ANTHROPIC_API_ENDPOINT, then the public API
  temperature: 1.0
  max_tokens: 4096
  timeout_seconds: 60

redis:
  enabled: false
  addr: localhost:6379
  db: 0

database:
  protocol_path: ./jarvis.db
  usage_path: ""  # empty reuses protocol_path

protocols:
  dir: ""  # optional directory of protocol JSON files
  replace_duplicates: false

logging:
  level: info  # debug, info, warn, error
  format: text # text, json
`
}
