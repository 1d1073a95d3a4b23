// Package config loads engine configuration from YAML files with
// environment variable overrides. All knobs have working defaults so a
// zero-config run behaves sensibly.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheSmartAz/zaoya-sub001/internal/errors"
)

// Config is the full engine configuration
type Config struct {
	// SandboxRoot is the directory under which per-build file trees live
	SandboxRoot string `yaml:"sandbox_root"`
	// StoreDir persists build state as JSON; empty selects the in-memory store
	StoreDir string `yaml:"store_dir"`
	// SnapshotDir holds tree snapshots taken before risky phases
	SnapshotDir string `yaml:"snapshot_dir"`

	Log    LogConfig    `yaml:"log"`
	Retry  RetryConfig  `yaml:"retry"`
	Agent  AgentConfig  `yaml:"agent"`
	Check  CheckConfig  `yaml:"check"`
	Stream StreamConfig `yaml:"stream"`
}

// LogConfig controls structured logging
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig sets the retry budgets for agent failures
type RetryConfig struct {
	// TaskRetries is the per-task budget for implementation and patch failures
	TaskRetries int `yaml:"task_retries"`
	// ReviewCycles bounds consecutive request_changes verdicts on one task
	ReviewCycles int `yaml:"review_cycles"`
	// AgentAttempts bounds malformed-output retries within a single agent call
	AgentAttempts int `yaml:"agent_attempts"`
}

// AgentConfig bounds individual agent calls
type AgentConfig struct {
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// Timeout returns the per-call timeout as a duration
func (a AgentConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// CheckConfig configures the build and typecheck tool runners
type CheckConfig struct {
	// BuildCmd and TypecheckCmd are argv vectors; empty means skip that check
	BuildCmd       []string `yaml:"build_cmd"`
	TypecheckCmd   []string `yaml:"typecheck_cmd"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Timeout returns the per-check timeout as a duration
func (c CheckConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StreamConfig tunes progress streaming
type StreamConfig struct {
	// BufferSize is the event channel capacity per streaming consumer
	BufferSize int `yaml:"buffer_size"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		SandboxRoot: "workspaces",
		StoreDir:    "",
		SnapshotDir: "snapshots",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Retry: RetryConfig{
			TaskRetries:   2,
			ReviewCycles:  3,
			AgentAttempts: 2,
		},
		Agent: AgentConfig{
			MaxTokens:      8192,
			Temperature:    0.2,
			TimeoutSeconds: 120,
		},
		Check: CheckConfig{
			BuildCmd:       []string{"npm", "run", "build"},
			TypecheckCmd:   []string{"npx", "tsc", "--noEmit"},
			TimeoutSeconds: 180,
		},
		Stream: StreamConfig{
			BufferSize: 64,
		},
	}
}

// Load reads configuration from a YAML file layered over the defaults.
// An empty path returns the defaults with env overrides applied; a missing
// file at an explicit path is an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to read config file", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(errors.ErrCodeConfigInvalid, "failed to parse config file", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv layers ZAOYA_* environment variables over the loaded values
func (c *Config) applyEnv() {
	if v := os.Getenv("ZAOYA_SANDBOX_ROOT"); v != "" {
		c.SandboxRoot = v
	}
	if v := os.Getenv("ZAOYA_STORE_DIR"); v != "" {
		c.StoreDir = v
	}
	if v := os.Getenv("ZAOYA_SNAPSHOT_DIR"); v != "" {
		c.SnapshotDir = v
	}
	if v := os.Getenv("ZAOYA_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ZAOYA_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
	if v, ok := envInt("ZAOYA_TASK_RETRIES"); ok {
		c.Retry.TaskRetries = v
	}
	if v, ok := envInt("ZAOYA_REVIEW_CYCLES"); ok {
		c.Retry.ReviewCycles = v
	}
	if v, ok := envInt("ZAOYA_AGENT_TIMEOUT"); ok {
		c.Agent.TimeoutSeconds = v
	}
	if v, ok := envInt("ZAOYA_CHECK_TIMEOUT"); ok {
		c.Check.TimeoutSeconds = v
	}
}

// Validate rejects configurations the engine cannot run with
func (c *Config) Validate() error {
	if c.SandboxRoot == "" {
		return errors.New(errors.ErrCodeConfigInvalid, "sandbox_root must not be empty")
	}
	if c.Retry.TaskRetries < 0 || c.Retry.ReviewCycles < 1 || c.Retry.AgentAttempts < 1 {
		return errors.New(errors.ErrCodeConfigInvalid, "retry budgets must be positive").
			WithSuggestion("task_retries >= 0, review_cycles >= 1, agent_attempts >= 1")
	}
	if c.Agent.MaxTokens <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "agent max_tokens must be positive")
	}
	if c.Agent.TimeoutSeconds <= 0 || c.Check.TimeoutSeconds <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "timeouts must be positive")
	}
	if c.Stream.BufferSize <= 0 {
		return errors.New(errors.ErrCodeConfigInvalid, "stream buffer_size must be positive")
	}
	return nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}
