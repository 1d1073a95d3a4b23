package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "workspaces", cfg.SandboxRoot)
	assert.Equal(t, 2, cfg.Retry.TaskRetries)
	assert.Equal(t, 3, cfg.Retry.ReviewCycles)
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Agent.MaxTokens, cfg.Agent.MaxTokens)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
sandbox_root: /tmp/builds
log:
  level: debug
retry:
  task_retries: 5
check:
  build_cmd: ["pnpm", "build"]
  timeout_seconds: 60
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/builds", cfg.SandboxRoot)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 5, cfg.Retry.TaskRetries)
	assert.Equal(t, []string{"pnpm", "build"}, cfg.Check.BuildCmd)
	assert.Equal(t, 60, cfg.Check.TimeoutSeconds)
	// untouched keys keep their defaults
	assert.Equal(t, 3, cfg.Retry.ReviewCycles)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sandbox_root: [unterminated"), 0600))

	_, err := Load(path)
	assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ZAOYA_SANDBOX_ROOT", "/env/root")
	t.Setenv("ZAOYA_TASK_RETRIES", "7")
	t.Setenv("ZAOYA_LOG_LEVEL", "warn")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/env/root", cfg.SandboxRoot)
	assert.Equal(t, 7, cfg.Retry.TaskRetries)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty sandbox root", func(c *Config) { c.SandboxRoot = "" }},
		{"zero review cycles", func(c *Config) { c.Retry.ReviewCycles = 0 }},
		{"negative task retries", func(c *Config) { c.Retry.TaskRetries = -1 }},
		{"zero max tokens", func(c *Config) { c.Agent.MaxTokens = 0 }},
		{"zero agent timeout", func(c *Config) { c.Agent.TimeoutSeconds = 0 }},
		{"zero stream buffer", func(c *Config) { c.Stream.BufferSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, errors.HasCode(err, errors.ErrCodeConfigInvalid))
		})
	}
}
