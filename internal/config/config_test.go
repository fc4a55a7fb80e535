package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"loom/internal/syncengine"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q, want %q", cfg.Root, dir)
	}
	if cfg.BranchID != "main" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Sync.RemoteTimeout != syncengine.DefaultRemoteTimeout {
		t.Errorf("RemoteTimeout = %v", cfg.Sync.RemoteTimeout)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
branch: feature
remote: http://sandbox:7450
logFormat: json
sync:
  exclude: [coverage]
  ignore: ["*.log"]
  remoteTimeout: 5s
  retryAttempts: 1
  debounce: 100ms
`)

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BranchID != "feature" || cfg.RemoteURL != "http://sandbox:7450" || cfg.LogFormat != "json" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Sync.Exclude, []string{"coverage"}) {
		t.Errorf("Exclude = %v", cfg.Sync.Exclude)
	}
	if cfg.Sync.RemoteTimeout != 5*time.Second || cfg.Sync.Debounce != 100*time.Millisecond {
		t.Errorf("durations = %v, %v", cfg.Sync.RemoteTimeout, cfg.Sync.Debounce)
	}
	if cfg.Sync.RetryAttempts != 1 {
		t.Errorf("RetryAttempts = %d", cfg.Sync.RetryAttempts)
	}
	if cfg.Root != dir {
		t.Errorf("Root = %q, want %q", cfg.Root, dir)
	}
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "branch: feature\n")

	t.Setenv("LOOM_BRANCH", "hotfix")
	t.Setenv("LOOM_TOKEN", "secret")
	t.Setenv("LOOM_EXCLUDE", "coverage, tmp ,")
	t.Setenv("LOOM_RETRY_ATTEMPTS", "7")
	t.Setenv("LOOM_DEBOUNCE", "not-a-duration")

	cfg, err := Load(dir, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BranchID != "hotfix" || cfg.Token != "secret" {
		t.Errorf("env not applied: %+v", cfg)
	}
	if !reflect.DeepEqual(cfg.Sync.Exclude, []string{"coverage", "tmp"}) {
		t.Errorf("Exclude = %v", cfg.Sync.Exclude)
	}
	if cfg.Sync.RetryAttempts != 7 {
		t.Errorf("RetryAttempts = %d", cfg.Sync.RetryAttempts)
	}
	if cfg.Sync.Debounce != 0 {
		t.Errorf("invalid duration should be ignored, got %v", cfg.Sync.Debounce)
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(dir, filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit file")
	}

	bad := writeConfig(t, dir, "branch: [unclosed\n")
	if _, err := Load(dir, bad); err == nil {
		t.Error("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty root", func(c *Config) { c.Root = "" }},
		{"empty branch", func(c *Config) { c.BranchID = "" }},
		{"bad level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad format", func(c *Config) { c.LogFormat = "xml" }},
		{"negative retries", func(c *Config) { c.Sync.RetryAttempts = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestIndexFile(t *testing.T) {
	cfg := Default()
	cfg.Root = "/srv/app"
	if got := cfg.IndexFile(); got != filepath.Join("/srv/app", ".loom", "index.db") {
		t.Errorf("IndexFile = %q", got)
	}
	cfg.IndexPath = "/var/lib/loom.db"
	if got := cfg.IndexFile(); got != "/var/lib/loom.db" {
		t.Errorf("IndexFile = %q", got)
	}
}
