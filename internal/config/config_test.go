package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.Server.Addr = ":9999"
	cfg.Jobs.PollInterval = Duration{30 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want %q", loaded.Server.Addr, ":9999")
	}
	if loaded.JobPollInterval() != 30*time.Second {
		t.Errorf("JobPollInterval() = %v, want 30s", loaded.JobPollInterval())
	}
}

func TestLoadMissingReturnsDefaults(t *testing.T) {
	cfg, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
	if cfg == nil || cfg.Server.Addr != ":8787" {
		t.Errorf("expected default config on missing file, got %+v", cfg)
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "config.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v, want nil for missing file", err)
	}
	if cfg.Server.Addr != ":8787" {
		t.Errorf("Server.Addr = %q, want default %q", cfg.Server.Addr, ":8787")
	}
}

func TestLoadOrDefaultBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("server = {addr = "), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadOrDefault(path); err == nil {
		t.Error("LoadOrDefault() expected error for malformed file")
	}
}

func TestDefaultsApplied(t *testing.T) {
	cfg := &Config{}
	if got := cfg.JobBatchSize(); got != 100 {
		t.Errorf("JobBatchSize() = %d, want 100", got)
	}
	if got := cfg.JobPollInterval(); got != 2*time.Minute {
		t.Errorf("JobPollInterval() = %v, want 2m", got)
	}
	if got := cfg.ReminderInterval(); got != 5*time.Minute {
		t.Errorf("ReminderInterval() = %v, want 5m", got)
	}
	if got := cfg.ReminderLookahead(); got != time.Hour {
		t.Errorf("ReminderLookahead() = %v, want 1h", got)
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}
