package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	appLog "campuscal/internal/log"
)

// ICSConfig describes a single ICS subscription imported into the engine.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for replace-on-refresh and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// ClubID, if set, marks imported events as owned by that organization.
	ClubID string `yaml:"club_id,omitempty" json:"club_id,omitempty"`
	// Forums lists forum ids each imported event is posted to.
	Forums []string `yaml:"forums,omitempty" json:"forums,omitempty"`
	// Category is applied to imported events lacking a known CATEGORIES value.
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
	// Visibility of imported events ("public" default, or "private").
	Visibility string `yaml:"visibility,omitempty" json:"visibility,omitempty"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone calendar windows are computed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart controls the first column of week views and month grids:
	//   - "sunday" (default)
	//   - "monday"
	WeekStart string `yaml:"week_start" json:"week_start"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for re-importing ICS subscriptions.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxOccurrences caps a single recurrence expansion.
	MaxOccurrences int `yaml:"max_occurrences" json:"max_occurrences"`

	// CacheDir holds the on-disk ICS fetch cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	// Clubs maps organization id -> member user ids for the static
	// membership oracle.
	Clubs map[string][]string `yaml:"clubs" json:"clubs"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// envOverrides are applied on top of the file by ApplyEnv.
type envOverrides struct {
	Listen   string `env:"CAMPUSCAL_LISTEN"`
	Timezone string `env:"CAMPUSCAL_TIMEZONE"`
	LogLevel string `env:"CAMPUSCAL_LOG_LEVEL"`
	Refresh  string `env:"CAMPUSCAL_REFRESH"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = "America/New_York"
	defaultRefresh        = "*/15 * * * *"
	defaultMaxOccurrences = 1000
	defaultCacheDir       = "./var/ics-cache"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		Timezone:       defaultTimezone,
		WeekStart:      "sunday",
		LogLevel:       "info",
		RefreshCron:    defaultRefresh,
		MaxOccurrences: defaultMaxOccurrences,
		CacheDir:       defaultCacheDir,
		Clubs:          map[string][]string{},
		ICS:            []ICSConfig{},
		BasicAuth:      nil,
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "sunday", "monday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		c.WeekStart = "sunday"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if c.MaxOccurrences <= 0 {
		c.MaxOccurrences = defaultMaxOccurrences
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Clubs == nil {
		c.Clubs = map[string][]string{}
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// ApplyEnv overrides selected fields from CAMPUSCAL_* environment variables.
func (c *Config) ApplyEnv() error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if o.Listen != "" {
		c.Listen = o.Listen
	}
	if o.Timezone != "" {
		c.Timezone = o.Timezone
	}
	if o.LogLevel != "" {
		c.LogLevel = o.LogLevel
	}
	if o.Refresh != "" {
		c.RefreshCron = o.Refresh
	}
	return nil
}

// Location resolves Timezone, falling back to time.Local.
func (c *Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		appLog.Error("failed to load timezone; falling back to local", err, "name", c.Timezone)
		return time.Local
	}
	return loc
}

// WeekStartDay returns WeekStart as a time.Weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
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
			appLog.Info("wrote default config", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
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

	tmp, err := os.CreateTemp(dir, ".campuscal-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
