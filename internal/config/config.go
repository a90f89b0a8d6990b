package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
)

// Config is the top-level configuration structure.
type Config struct {
	StorageRoot string         `json:"storage_root"`
	LogLevel    string         `json:"log_level"`
	Session     SessionConfig  `json:"session"`
	Memory      MemoryConfig   `json:"memory"`
	EventLog    EventLogConfig `json:"event_log"`
	Workflow    WorkflowConfig `json:"workflow"`
}

type SessionConfig struct {
	RetentionDays int  `json:"retention_days"`
	AutoCleanup   bool `json:"auto_cleanup"`
}

type MemoryConfig struct {
	CacheSize         int     `json:"cache_size"`
	ApprovalThreshold float64 `json:"approval_threshold"`
}

type EventLogConfig struct {
	BufferSize      int `json:"buffer_size"`
	FlushIntervalMS int `json:"flush_interval_ms"`
}

type WorkflowConfig struct {
	MaxParallel int `json:"max_parallel"`
	MaxRetries  int `json:"max_retries"`
}

// Default returns a configuration with working defaults for local use.
func Default() *Config {
	return &Config{
		StorageRoot: "./storage",
		LogLevel:    "info",
		Session: SessionConfig{
			RetentionDays: 7,
			AutoCleanup:   true,
		},
		Memory: MemoryConfig{
			CacheSize:         100,
			ApprovalThreshold: 85.0,
		},
		EventLog: EventLogConfig{
			BufferSize:      1000,
			FlushIntervalMS: 1000,
		},
		Workflow: WorkflowConfig{
			MaxParallel: 3,
			MaxRetries:  3,
		},
	}
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
// Fields absent from the file keep their Default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	cfg := Default()
	if err := json.Unmarshal([]byte(resolved), cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
