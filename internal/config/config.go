// Package config handles loading and validating hookline configuration.
// Supports a YAML config file and HOOKLINE_* environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Defaults applied when the config file leaves a field unset.
const (
	DefaultMaxEventFileSize = int64(10 * 1024 * 1024)
	DefaultRetentionDays    = 90
	DefaultAuditMaxSize     = int64(10 * 1024 * 1024)
	DefaultAuditBackups     = 5
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
)

// Config holds all hookline configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	HooksDir string `mapstructure:"hooks_dir"`
	Manifest string `mapstructure:"manifest"`
	AgentID  string `mapstructure:"agent_id"`

	Store StoreConfig `mapstructure:"store"`
	Audit AuditConfig `mapstructure:"audit"`
	Hooks HooksConfig `mapstructure:"hooks"`

	Logging LoggingConfig `mapstructure:"logging"`
}

// StoreConfig controls the event log.
type StoreConfig struct {
	MaxFileSize   int64 `mapstructure:"max_file_size"`
	RetentionDays int   `mapstructure:"retention_days"`
	Index         bool  `mapstructure:"index"`
}

// AuditConfig controls the hook audit log.
type AuditConfig struct {
	MaxSize int64 `mapstructure:"max_size"`
	Backups int   `mapstructure:"backups"`
}

// HooksConfig controls hook execution.
type HooksConfig struct {
	WorkDir      string            `mapstructure:"work_dir"`
	EnvAllowlist []string          `mapstructure:"env_allowlist"`
	Env          map[string]string `mapstructure:"env"`
}

// LoggingConfig controls diagnostic logging.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	Dir           string `mapstructure:"dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "hookline")
}

// Load reads configuration from the given file (or the defaults when
// path is empty or missing) with HOOKLINE_* environment overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HOOKLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.DataDir = expandPath(cfg.DataDir)
	cfg.HooksDir = expandPath(cfg.HooksDir)
	cfg.Manifest = expandPath(cfg.Manifest)
	if cfg.HooksDir == "" {
		cfg.HooksDir = filepath.Join(cfg.DataDir, "hooks")
	}
	if cfg.Manifest == "" {
		cfg.Manifest = filepath.Join(cfg.DataDir, "hooks.yaml")
	}
	if cfg.Logging.Dir == "" {
		cfg.Logging.Dir = filepath.Join(cfg.DataDir, "logs")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())
	v.SetDefault("agent_id", defaultAgentID())
	v.SetDefault("store.max_file_size", DefaultMaxEventFileSize)
	v.SetDefault("store.retention_days", DefaultRetentionDays)
	v.SetDefault("store.index", true)
	v.SetDefault("audit.max_size", DefaultAuditMaxSize)
	v.SetDefault("audit.backups", DefaultAuditBackups)
	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.format", DefaultLogFormat)
	v.SetDefault("logging.retention_days", 7)
}

func defaultAgentID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "hookline"
	}
	return host
}

// Validate checks field values after defaults and overrides merge.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q (debug, info, warn, error)", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q (json, text)", c.Logging.Format)
	}
	if c.Store.MaxFileSize <= 0 {
		return fmt.Errorf("store.max_file_size must be positive, got %d", c.Store.MaxFileSize)
	}
	if c.Store.RetentionDays <= 0 {
		return fmt.Errorf("store.retention_days must be positive, got %d", c.Store.RetentionDays)
	}
	if c.Audit.MaxSize <= 0 {
		return fmt.Errorf("audit.max_size must be positive, got %d", c.Audit.MaxSize)
	}
	if c.Audit.Backups <= 0 {
		return fmt.Errorf("audit.backups must be positive, got %d", c.Audit.Backups)
	}
	return nil
}

// EventsDir returns the event log directory.
func (c *Config) EventsDir() string { return filepath.Join(c.DataDir, "events") }

// AuditPath returns the audit log file path.
func (c *Config) AuditPath() string { return filepath.Join(c.DataDir, "audit.jsonl") }

// IndexPath returns the SQLite index path.
func (c *Config) IndexPath() string { return filepath.Join(c.DataDir, "index.db") }

// InboxDir returns the directory watched for incoming event files.
func (c *Config) InboxDir() string { return filepath.Join(c.DataDir, "inbox") }

func expandPath(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
