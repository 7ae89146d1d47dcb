package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	loader := NewLoader(filepath.Join(t.TempDir(), "config.json"))

	cfg, err := loader.Load()
	require.NoError(t, err)

	assert.Equal(t, "openai", cfg.Provider.Default)
	assert.Equal(t, "gpt-5-mini", cfg.Provider.Model)
	assert.Equal(t, 20, cfg.Agent.MaxTurns)
	assert.Equal(t, 300, cfg.Agent.TimeoutSeconds)
	assert.Equal(t, 7, cfg.Sessions.RetentionDays)
	assert.NotEmpty(t, cfg.Sessions.Dir)
}

func TestLoadReadsFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{
		"provider": {"default": "anthropic", "model": "claude-sonnet-4-20250514"},
		"agent": {"max_turns": 5, "timeout_seconds": 60},
		"permissions": {"read_only": true, "blocked_paths": ["/etc"]}
	}`), 0o644))

	cfg, err := NewLoader(configPath).Load()
	require.NoError(t, err)

	assert.Equal(t, "anthropic", cfg.Provider.Default)
	assert.Equal(t, "claude-sonnet-4-20250514", cfg.Provider.Model)
	assert.Equal(t, 5, cfg.Agent.MaxTurns)
	assert.Equal(t, 60, cfg.Agent.TimeoutSeconds)
	assert.True(t, cfg.Permissions.ReadOnly)
	assert.Equal(t, []string{"/etc"}, cfg.Permissions.BlockedPaths)

	// Unset fields keep their defaults.
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsInvalidJSON(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte("{broken"), 0o644))

	_, err := NewLoader(configPath).Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(configPath, []byte(`{"provider": {"default": "mystery"}}`), 0o644))

	_, err := NewLoader(configPath).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestSaveRoundTrip(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "nested", "config.json")
	loader := NewLoader(configPath)

	cfg := DefaultConfig()
	cfg.Provider.Default = "ollama"
	cfg.Provider.Model = "gpt-oss:20b"
	cfg.Agent.MaxTurns = 12
	cfg.DataDir = t.TempDir()
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "ollama", loaded.Provider.Default)
	assert.Equal(t, "gpt-oss:20b", loaded.Provider.Model)
	assert.Equal(t, 12, loaded.Agent.MaxTurns)
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.Agent.MaxTurns = -1
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Agent.Temperature = 2.5
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Sessions.RetentionDays = -2
	assert.Error(t, cfg.Validate())
}
