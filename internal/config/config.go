// Package config loads and validates the installer's on-disk configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultProduct        = "pkginstall"
	defaultRetentionDays  = 30
	defaultLockFileName   = "installer.lock"
	defaultJournalName    = "transactions.db"
	defaultSnapshotSubdir = "snapshots"
	defaultLogFileName    = "installer.log"
)

// Config holds every knob the transaction engine and CLI need at runtime.
type Config struct {
	// StateDir holds the journal database and the advisory lockfile.
	StateDir string `toml:"state_dir"`
	// SnapshotDir holds file-backed snapshot artifacts.
	SnapshotDir string `toml:"snapshot_dir"`
	// LogDir holds the append-only installer log.
	LogDir string `toml:"log_dir"`
	// PlaybookDir is searched for ansible_playbook manifests with relative paths.
	PlaybookDir string `toml:"playbook_dir"`

	// RetentionDays is the default age threshold for cleanup_old_transactions.
	RetentionDays int `toml:"retention_days"`
	// StepTimeout bounds a single step's forward/reverse call. Zero means unbounded.
	StepTimeout time.Duration `toml:"step_timeout"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `toml:"log_level"`
	// LogFormat is one of console, json.
	LogFormat string `toml:"log_format"`
}

// Default returns the baseline configuration used when no config file is present.
func Default() *Config {
	cfg := &Config{
		StateDir:      filepath.Join("/var/lib", defaultProduct),
		SnapshotDir:   "",
		LogDir:        filepath.Join("/var/log", defaultProduct),
		PlaybookDir:   filepath.Join("/etc", defaultProduct, "playbooks"),
		RetentionDays: defaultRetentionDays,
		StepTimeout:   0,
		LogLevel:      "info",
		LogFormat:     "console",
	}
	cfg.normalize()
	return cfg
}

// Load reads a TOML configuration file, applying defaults for any unset field.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// normalize fills in derived defaults that depend on other fields.
func (c *Config) normalize() {
	if c.StateDir == "" {
		c.StateDir = filepath.Join("/var/lib", defaultProduct)
	}
	if c.LogDir == "" {
		c.LogDir = filepath.Join("/var/log", defaultProduct)
	}
	if c.SnapshotDir == "" {
		if writableDir(c.StateDir) {
			c.SnapshotDir = filepath.Join(c.StateDir, defaultSnapshotSubdir)
		} else {
			c.SnapshotDir = filepath.Join(os.TempDir(), defaultProduct, defaultSnapshotSubdir)
		}
	}
	if c.PlaybookDir == "" {
		c.PlaybookDir = filepath.Join("/etc", defaultProduct, "playbooks")
	}
	if c.RetentionDays == 0 {
		c.RetentionDays = defaultRetentionDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
}

func writableDir(dir string) bool {
	if dir == "" {
		return false
	}
	info, err := os.Stat(dir)
	if err != nil {
		parent := filepath.Dir(dir)
		parentInfo, parentErr := os.Stat(parent)
		return parentErr == nil && parentInfo.IsDir()
	}
	return info.IsDir()
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.RetentionDays < 0 {
		return fmt.Errorf("config: retention_days must be >= 0, got %d", c.RetentionDays)
	}
	if c.StepTimeout < 0 {
		return fmt.Errorf("config: step_timeout must be >= 0, got %s", c.StepTimeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: invalid log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("config: invalid log_format %q", c.LogFormat)
	}
	return nil
}

// JournalPath returns the path to the transaction journal database.
func (c *Config) JournalPath() string {
	return filepath.Join(c.StateDir, defaultJournalName)
}

// LockPath returns the path to the advisory host lockfile.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, defaultLockFileName)
}

// LogFilePath returns the path to the append-only installer log.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.LogDir, defaultLogFileName)
}

// EnsureDirs creates the state, snapshot, and log directories if absent. The
// playbook directory is not created.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.StateDir, c.SnapshotDir, c.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}
