// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads paperforge's configuration: per-(user, role)
// LLM provider settings, data-root location, and runtime limits.
//
// Config is YAML-first: a Config value is built from a file plus
// environment-variable expansion, mirroring how hector's pkg/config
// loads agent/llm/tool definitions.
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Role identifies which of the three agent roles an LLM configuration
// serves. A user may have a distinct provider/model per role.
type Role string

const (
	RoleBrain   Role = "brain"
	RoleCode    Role = "code"
	RoleWriting Role = "writing"
)

// LLMConfig is one provider binding for a single (user, role) pair.
type LLMConfig struct {
	Provider string `yaml:"provider"`
	ModelID  string `yaml:"model_id"`
	BaseURL  string `yaml:"base_url,omitempty"`
	APIKey   string `yaml:"api_key"`
	IsActive bool   `yaml:"is_active"`
}

// Config is the root configuration structure.
type Config struct {
	// DataPath is the filesystem root under which per-work
	// directories are created. Defaults to "<root>/pa_data" and can
	// be overridden by PA_DATA_PATH.
	DataPath string `yaml:"data_path,omitempty"`

	// LogLevel is one of debug/info/warn/error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Limits configures sandbox/compression/task bounds.
	Limits LimitsConfig `yaml:"limits,omitempty"`

	// Users maps user_id -> role -> LLM configuration.
	Users map[string]map[Role]LLMConfig `yaml:"users,omitempty"`

	// AuthTokens maps a handshake bearer token to the user_id it
	// authenticates as. Real user/session/token management is an
	// out-of-scope HTTP collaborator (spec §1); this map is only the
	// minimal stand-in cmd/paperforge needs to drive the Transport
	// Adapter's handshake (spec §4.12.2) directly off this file.
	AuthTokens map[string]string `yaml:"auth_tokens,omitempty"`

	// ListenAddr is the HTTP/WebSocket bind address for cmd/paperforge.
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// LimitsConfig holds the numeric knobs called out across spec.md.
type LimitsConfig struct {
	SandboxTimeout      time.Duration `yaml:"sandbox_timeout,omitempty"`
	TaskTimeout         time.Duration `yaml:"task_timeout,omitempty"`
	CodeAgentMaxTurns   int           `yaml:"code_agent_max_turns,omitempty"`
	WriterAgentMaxTurns int           `yaml:"writer_agent_max_turns,omitempty"`
	ContextTokenCap     int           `yaml:"context_token_cap,omitempty"`
	ContextMessageCap   int           `yaml:"context_message_cap,omitempty"`
	EventLogCapacity    int           `yaml:"event_log_capacity,omitempty"`
}

// DefaultLimits matches the numeric defaults named in spec.md.
func DefaultLimits() LimitsConfig {
	return LimitsConfig{
		SandboxTimeout:      60 * time.Second,
		TaskTimeout:         10 * time.Minute,
		CodeAgentMaxTurns:   50,
		WriterAgentMaxTurns: 100,
		ContextTokenCap:     20000,
		ContextMessageCap:   50,
		EventLogCapacity:    2000,
	}
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} occurrences with the environment value,
// leaving the placeholder untouched if the variable is unset.
func expandEnv(raw []byte) []byte {
	return envVarPattern.ReplaceAllFunc(raw, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if v, ok := os.LookupEnv(string(name)); ok {
			return []byte(v)
		}
		return match
	})
}

// Load reads and parses a YAML configuration file, expanding ${VAR}
// references against the process environment before unmarshalling.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	expanded := expandEnv(raw)

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if cfg.DataPath == "" {
		if override := os.Getenv("PA_DATA_PATH"); override != "" {
			cfg.DataPath = override
		} else {
			cfg.DataPath = "pa_data"
		}
	}
	if cfg.Limits == (LimitsConfig{}) {
		cfg.Limits = DefaultLimits()
	}
	return &cfg, nil
}

// RoleConfig looks up the LLM configuration for a (user, role) pair.
// Per spec §4.5/§6, a missing role configuration is a hard error —
// the caller must fail before any LLM call is attempted.
func (c *Config) RoleConfig(userID string, role Role) (LLMConfig, error) {
	roles, ok := c.Users[userID]
	if !ok {
		return LLMConfig{}, fmt.Errorf("config: no configuration for user %q", userID)
	}
	cfg, ok := roles[role]
	if !ok || !cfg.IsActive {
		return LLMConfig{}, fmt.Errorf("config: role %q not configured for user %q", role, userID)
	}
	return cfg, nil
}
