package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"
)

const (
	// WatcherName names the config directory, the ActivityWatch client and
	// the default bucket prefix.
	WatcherName = "aw-importer-ical"

	StorageActivityWatch = "activitywatch"
	StorageSQLite        = "sqlite"

	defaultServerURL      = "http://127.0.0.1:5600"
	defaultTestingURL     = "http://127.0.0.1:5666"
	defaultSQLitePath     = "./var/aw-importer-ical.db"
	defaultTimezone       = "Local"
	defaultRescan         = "@every 5m"
	defaultMaxOccurrences = 100000
	defaultLogLevel       = "info"
)

// Config is the top-level application configuration.
type Config struct {
	// DataPath is the directory watched for calendar export files.
	DataPath string `yaml:"data_path" json:"data_path"`

	// Storage selects the backend: "activitywatch" (default) or "sqlite".
	Storage string `yaml:"storage" json:"storage"`

	// ServerURL is the aw-server base URL. If empty, the default port for
	// Testing is used.
	ServerURL string `yaml:"server_url" json:"server_url"`
	Testing   bool   `yaml:"testing" json:"testing"`

	// SQLitePath is the database file used by the sqlite backend.
	SQLitePath string `yaml:"sqlite_path" json:"sqlite_path"`

	// Bucket overrides the destination bucket. If empty it is
	// "aw-importer-ical_<hostname>".
	Bucket string `yaml:"bucket" json:"bucket"`

	// Timezone is the IANA zone used for floating times and all-day events.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Rescan is a cron-style schedule for rescanning DataPath. Empty
	// disables rescans.
	Rescan string `yaml:"rescan" json:"rescan"`

	// MaxOccurrences caps recurrence expansion per event.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// Listen is the status HTTP listen address. Empty disables the server.
	Listen string `yaml:"listen" json:"listen"`

	LogLevel string `yaml:"log_level" json:"log_level"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataPath:       "",
		Storage:        StorageActivityWatch,
		SQLitePath:     defaultSQLitePath,
		Timezone:       defaultTimezone,
		Rescan:         defaultRescan,
		MaxOccurrences: defaultMaxOccurrences,
		LogLevel:       defaultLogLevel,
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	return xdg.ConfigFile(filepath.Join(WatcherName, "config.yaml"))
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	c.Storage = strings.ToLower(strings.TrimSpace(c.Storage))
	if c.Storage == "" {
		c.Storage = StorageActivityWatch
	}
	if c.SQLitePath == "" {
		c.SQLitePath = defaultSQLitePath
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

// Validate reports configuration errors that prevent startup.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return errors.New("data_path is empty; set it to the folder that receives calendar exports")
	}
	switch c.Storage {
	case StorageActivityWatch, StorageSQLite:
	default:
		return fmt.Errorf("unknown storage %q", c.Storage)
	}
	return nil
}

// EffectiveServerURL returns ServerURL or the default for Testing.
func (c *Config) EffectiveServerURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	if c.Testing {
		return defaultTestingURL
	}
	return defaultServerURL
}

// BucketName returns the destination bucket for hostname.
func (c *Config) BucketName(hostname string) string {
	if c.Bucket != "" {
		return c.Bucket
	}
	return WatcherName + "_" + hostname
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms and returned.
//   - Otherwise the YAML is unmarshalled and defaults are filled in.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+WatcherName+"-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
