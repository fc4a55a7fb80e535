// Package config provides configuration for the loom commands.
//
// Values come from an optional loom.yaml in the project root, then LOOM_*
// environment variables, then command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"loom/internal/logging"
	"loom/internal/syncengine"
)

// FileName is the name of the project configuration file.
const FileName = "loom.yaml"

// Config holds loom configuration.
type Config struct {
	// Root is the local project directory.
	Root string `yaml:"root,omitempty"`
	// BranchID identifies the branch edits are applied to.
	BranchID string `yaml:"branch,omitempty"`
	// SandboxID identifies the remote sandbox being synced.
	SandboxID string `yaml:"sandbox,omitempty"`
	// RemoteURL is the base URL of the sandbox file server.
	RemoteURL string `yaml:"remote,omitempty"`
	// Token authenticates against the sandbox file server.
	Token string `yaml:"token,omitempty"`
	// Listen is the address the sandbox file server listens on.
	Listen string `yaml:"listen,omitempty"`
	// IndexPath is the oid index database, relative to Root unless absolute.
	IndexPath string `yaml:"index,omitempty"`
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `yaml:"logLevel,omitempty"`
	// LogFormat is text or json.
	LogFormat string `yaml:"logFormat,omitempty"`
	// Sync configures the sync engine.
	Sync syncengine.Config `yaml:"sync,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Root:      ".",
		BranchID:  "main",
		SandboxID: "local",
		Listen:    ":7450",
		IndexPath: filepath.Join(".loom", "index.db"),
		LogLevel:  "info",
		LogFormat: "text",
		Sync: syncengine.Config{
			RemoteTimeout: syncengine.DefaultRemoteTimeout,
			RetryAttempts: syncengine.DefaultRetryAttempts,
			RetryInterval: syncengine.DefaultRetryInterval,
			PushModified:  true,
		},
	}
}

// Load reads path over the defaults, then applies the environment. A
// missing file is not an error when path is empty or names the default
// loom.yaml of root.
func Load(root, path string) (*Config, error) {
	cfg := Default()
	if root != "" {
		cfg.Root = root
	}

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.Root, FileName)
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		if root != "" {
			cfg.Root = root
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// ApplyEnv overrides fields from LOOM_* environment variables.
func (c *Config) ApplyEnv() {
	c.Root = getEnv("LOOM_ROOT", c.Root)
	c.BranchID = getEnv("LOOM_BRANCH", c.BranchID)
	c.SandboxID = getEnv("LOOM_SANDBOX", c.SandboxID)
	c.RemoteURL = getEnv("LOOM_REMOTE_URL", c.RemoteURL)
	c.Token = getEnv("LOOM_TOKEN", c.Token)
	c.Listen = getEnv("LOOM_LISTEN", c.Listen)
	c.IndexPath = getEnv("LOOM_INDEX", c.IndexPath)
	c.LogLevel = getEnv("LOOM_LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOOM_LOG_FORMAT", c.LogFormat)
	c.Sync.Include = getEnvList("LOOM_INCLUDE", c.Sync.Include)
	c.Sync.Exclude = getEnvList("LOOM_EXCLUDE", c.Sync.Exclude)
	c.Sync.RemoteTimeout = getEnvDuration("LOOM_REMOTE_TIMEOUT", c.Sync.RemoteTimeout)
	c.Sync.RetryAttempts = getEnvInt("LOOM_RETRY_ATTEMPTS", c.Sync.RetryAttempts)
	c.Sync.Debounce = getEnvDuration("LOOM_DEBOUNCE", c.Sync.Debounce)
	c.Sync.PushModified = getEnvBool("LOOM_PUSH_MODIFIED", c.Sync.PushModified)
}

// Validate checks values that cannot be used as given.
func (c *Config) Validate() error {
	if c.Root == "" {
		return errors.New("root is required")
	}
	if c.BranchID == "" {
		return errors.New("branch is required")
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return err
	}
	if c.Sync.RetryAttempts < 0 {
		return fmt.Errorf("retry attempts must not be negative, got %d", c.Sync.RetryAttempts)
	}
	return nil
}

// IndexFile returns the index database path resolved against Root.
func (c *Config) IndexFile() string {
	if filepath.IsAbs(c.IndexPath) {
		return c.IndexPath
	}
	return filepath.Join(c.Root, c.IndexPath)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(val, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
