// Package config loads tool configuration from a JSON file with
// environment variable overrides.
package config

import (
	"fmt"
	"time"

	"github.com/nanoagent/nanoagent/pkg/provider"
)

// Config is the persistent configuration.
type Config struct {
	Provider    ProviderConfig    `json:"provider" mapstructure:"provider"`
	Agent       AgentConfig       `json:"agent" mapstructure:"agent"`
	Permissions PermissionsConfig `json:"permissions" mapstructure:"permissions"`
	Sessions    SessionsConfig    `json:"sessions" mapstructure:"sessions"`
	Logging     LoggingConfig     `json:"logging" mapstructure:"logging"`
	DataDir     string            `json:"data_dir" mapstructure:"data_dir"`
	Workspace   string            `json:"workspace" mapstructure:"workspace"`
}

// ProviderConfig selects the default provider and model, with
// optional per-provider endpoint overrides.
type ProviderConfig struct {
	Default   string            `json:"default" mapstructure:"default"`
	Model     string            `json:"model" mapstructure:"model"`
	Endpoints map[string]string `json:"endpoints,omitempty" mapstructure:"endpoints"`
}

// AgentConfig holds default execution budgets.
type AgentConfig struct {
	MaxTurns       int     `json:"max_turns" mapstructure:"max_turns"`
	TimeoutSeconds int     `json:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxTokens      int     `json:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `json:"temperature" mapstructure:"temperature"`
	SystemPrompt   string  `json:"system_prompt,omitempty" mapstructure:"system_prompt"`
}

// Timeout returns the run timeout as a duration.
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// PermissionsConfig is the default tool permission policy.
type PermissionsConfig struct {
	AllowedTools []string `json:"allowed_tools,omitempty" mapstructure:"allowed_tools"`
	BlockedTools []string `json:"blocked_tools,omitempty" mapstructure:"blocked_tools"`
	AllowedPaths []string `json:"allowed_paths,omitempty" mapstructure:"allowed_paths"`
	BlockedPaths []string `json:"blocked_paths,omitempty" mapstructure:"blocked_paths"`
	ReadOnly     bool     `json:"read_only" mapstructure:"read_only"`
}

// SessionsConfig controls session persistence and retention.
type SessionsConfig struct {
	Dir           string `json:"dir,omitempty" mapstructure:"dir"`
	RetentionDays int    `json:"retention_days" mapstructure:"retention_days"`
	SweepSchedule string `json:"sweep_schedule,omitempty" mapstructure:"sweep_schedule"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file,omitempty" mapstructure:"file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"`
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns the configuration used before any file or
// environment override.
func DefaultConfig() *Config {
	return &Config{
		Provider: ProviderConfig{
			Default: "openai",
			Model:   "gpt-5-mini",
		},
		Agent: AgentConfig{
			MaxTurns:       20,
			TimeoutSeconds: 300,
			MaxTokens:      4096,
		},
		Sessions: SessionsConfig{
			RetentionDays: 7,
		},
		Logging: LoggingConfig{
			Level:     "info",
			Pretty:    true,
			Redaction: true,
			MaxSize:   50,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// Validate checks the configuration for values no run could accept.
func (c *Config) Validate() error {
	if c.Provider.Default != "" {
		if _, ok := provider.Lookup(c.Provider.Default); !ok {
			return fmt.Errorf("unknown provider: %s", c.Provider.Default)
		}
	}
	if c.Agent.MaxTurns < 0 {
		return fmt.Errorf("max_turns cannot be negative")
	}
	if c.Agent.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds cannot be negative")
	}
	if c.Agent.MaxTokens < 0 {
		return fmt.Errorf("max_tokens cannot be negative")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Sessions.RetentionDays < 0 {
		return fmt.Errorf("retention_days cannot be negative")
	}
	return nil
}
