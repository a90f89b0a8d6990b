package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loom.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"storage_root": "/data/loom",
		"session": {"retention_days": 30},
		"event_log": {"buffer_size": 500}
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageRoot != "/data/loom" {
		t.Errorf("storage root = %s", cfg.StorageRoot)
	}
	if cfg.Session.RetentionDays != 30 {
		t.Errorf("retention = %d, want 30", cfg.Session.RetentionDays)
	}
	if cfg.EventLog.BufferSize != 500 {
		t.Errorf("buffer = %d, want 500", cfg.EventLog.BufferSize)
	}
	// Untouched fields keep their defaults.
	if cfg.Memory.CacheSize != 100 {
		t.Errorf("cache size = %d, want default 100", cfg.Memory.CacheSize)
	}
	if cfg.Memory.ApprovalThreshold != 85.0 {
		t.Errorf("threshold = %.1f, want default 85", cfg.Memory.ApprovalThreshold)
	}
}

func TestLoadEnvSubstitution(t *testing.T) {
	t.Setenv("LOOM_TEST_STORAGE", "/env/storage")
	os.Unsetenv("LOOM_TEST_LEVEL")

	path := writeConfig(t, `{
		"storage_root": "${LOOM_TEST_STORAGE}",
		"log_level": "${LOOM_TEST_LEVEL:debug}"
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.StorageRoot != "/env/storage" {
		t.Errorf("storage root = %s, want /env/storage", cfg.StorageRoot)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("log level = %s, want fallback debug", cfg.LogLevel)
	}
}

func TestLoadEnvOverridesDefaultValue(t *testing.T) {
	t.Setenv("LOOM_TEST_LEVEL", "warn")
	path := writeConfig(t, `{"log_level": "${LOOM_TEST_LEVEL:debug}"}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("log level = %s, want warn", cfg.LogLevel)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"storage_root": `)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}
