// Package config resolves kith's runtime configuration once at startup.
//
// Resolution order: built-in defaults, then the YAML file (~/.kith/config.yaml
// unless a path is given), then a .env file in the working directory, then
// KITH_* environment variables. Consumers receive the resolved *Config; no
// other package reads the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

const (
	// DirName is the per-user directory holding the database, history and config.
	DirName = ".kith"
	// FileName is the config file looked up inside DirName.
	FileName = "config.yaml"
)

// Config is the full, resolved configuration.
type Config struct {
	DataDir   string         `yaml:"data_dir"`
	Log       LogConfig      `yaml:"log"`
	Remote    RemoteConfig   `yaml:"remote"`
	Poller    PollerConfig   `yaml:"poller"`
	Capture   CaptureConfig  `yaml:"capture"`
	Reminders ReminderConfig `yaml:"reminders"`
	History   HistoryConfig  `yaml:"history"`
	Metrics   MetricsConfig  `yaml:"metrics"`
	Access    AccessConfig   `yaml:"access"`
}

// LogConfig controls the logrus logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// RemoteConfig points at the enrichment service that hosts transcription,
// extraction, summarization and ranking.
type RemoteConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	Timeout       time.Duration `yaml:"timeout"`
	RatePerSecond float64       `yaml:"rate_per_second"`
}

// PollerConfig tunes the enrichment completion poller.
type PollerConfig struct {
	Interval               time.Duration `yaml:"interval"`
	MaxBackoff             time.Duration `yaml:"max_backoff"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

// CaptureConfig tunes the capture state machine.
type CaptureConfig struct {
	ErrorResetAfter time.Duration `yaml:"error_reset_after"`
	AudioDir        string        `yaml:"audio_dir"`
}

// ReminderConfig tunes event reminders and the follow-up digest.
type ReminderConfig struct {
	Hour         int           `yaml:"hour"`
	Timezone     string        `yaml:"timezone"`
	FollowUpCron string        `yaml:"follow_up_cron"`
	StaleAfter   time.Duration `yaml:"stale_after"`
}

// HistoryConfig tunes the question history journal.
type HistoryConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// MetricsConfig enables the Prometheus listener when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// AccessConfig replaces ad hoc whitelist lookups with one explicit structure.
// AllowlistedIdentities entries are glob patterns ("*@example.com").
type AccessConfig struct {
	// Identity is the account the local user signed in with.
	Identity              string   `yaml:"identity"`
	AllowlistedIdentities []string `yaml:"allowlisted_identities"`
	AdminIdentity         string   `yaml:"admin_identity"`
	DevelopmentOverride   bool     `yaml:"development_override"`

	compiled []glob.Glob
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	dataDir := filepath.Join(home, DirName)
	return &Config{
		DataDir: dataDir,
		Log:     LogConfig{Level: "info", Format: "text"},
		Remote: RemoteConfig{
			BaseURL:       "http://localhost:8787",
			Timeout:       60 * time.Second,
			RatePerSecond: 2,
		},
		Poller: PollerConfig{
			Interval:               1500 * time.Millisecond,
			MaxBackoff:             30 * time.Second,
			MaxConsecutiveFailures: 8,
		},
		Capture: CaptureConfig{ErrorResetAfter: 30 * time.Second},
		Reminders: ReminderConfig{
			Hour:         19,
			Timezone:     "Local",
			FollowUpCron: "0 9 * * 1",
			StaleAfter:   30 * 24 * time.Hour,
		},
		History: HistoryConfig{MaxEntries: 50},
	}
}

// DefaultPath returns ~/.kith/config.yaml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, DirName, FileName)
}

// Load resolves the configuration. A missing config file or .env is not an
// error; a malformed one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges and compiles the access patterns.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DataDir) == "" {
		return fmt.Errorf("config: data_dir is required")
	}
	if c.Poller.Interval <= 0 {
		return fmt.Errorf("config: poller.interval must be positive (got %s)", c.Poller.Interval)
	}
	if c.Poller.MaxBackoff < c.Poller.Interval {
		c.Poller.MaxBackoff = c.Poller.Interval
	}
	if c.Poller.MaxConsecutiveFailures < 1 {
		return fmt.Errorf("config: poller.max_consecutive_failures must be >= 1")
	}
	if c.Reminders.Hour < 0 || c.Reminders.Hour > 23 {
		return fmt.Errorf("config: reminders.hour must be 0-23 (got %d)", c.Reminders.Hour)
	}
	if _, err := c.Reminders.Location(); err != nil {
		return err
	}
	if c.Reminders.FollowUpCron != "" {
		if _, err := cron.ParseStandard(c.Reminders.FollowUpCron); err != nil {
			return fmt.Errorf("config: reminders.follow_up_cron %q: %w", c.Reminders.FollowUpCron, err)
		}
	}
	if c.Capture.AudioDir == "" {
		c.Capture.AudioDir = filepath.Join(c.DataDir, "audio")
	}
	if c.History.MaxEntries < 1 {
		c.History.MaxEntries = 50
	}
	if c.Remote.RatePerSecond <= 0 {
		c.Remote.RatePerSecond = 2
	}
	return c.Access.compile()
}

// Location resolves the reminder timezone.
func (r ReminderConfig) Location() (*time.Location, error) {
	if r.Timezone == "" || r.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: reminders.timezone %q: %w", r.Timezone, err)
	}
	return loc, nil
}

// DatabasePath is where the Local Store keeps its SQLite file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "kith.db")
}

// HistoryPath is where the question history journal is persisted.
func (c *Config) HistoryPath() string {
	return filepath.Join(c.DataDir, "history.json")
}

// compile drops blank allowlist entries and compiles the rest.
func (a *AccessConfig) compile() error {
	a.compiled = a.compiled[:0]
	patterns := a.AllowlistedIdentities[:0]
	for _, p := range a.AllowlistedIdentities {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		g, err := glob.Compile(strings.ToLower(p))
		if err != nil {
			return fmt.Errorf("config: access pattern %q: %w", p, err)
		}
		patterns = append(patterns, p)
		a.compiled = append(a.compiled, g)
	}
	a.AllowlistedIdentities = patterns
	return nil
}

// Allows reports whether identity may use the enrichment features.
// The development override and the admin identity always pass; an empty
// allowlist (after Validate drops blank entries) admits everyone.
func (a *AccessConfig) Allows(identity string) bool {
	if a.DevelopmentOverride {
		return true
	}
	id := strings.ToLower(strings.TrimSpace(identity))
	if a.AdminIdentity != "" && id == strings.ToLower(a.AdminIdentity) {
		return true
	}
	if len(a.AllowlistedIdentities) == 0 {
		return true
	}
	for _, g := range a.compiled {
		if g.Match(id) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether identity is the configured admin.
func (a *AccessConfig) IsAdmin(identity string) bool {
	return a.AdminIdentity != "" &&
		strings.EqualFold(strings.TrimSpace(identity), a.AdminIdentity)
}

// ─── Environment overrides ──────────────────────────────────────────────────

func applyEnv(cfg *Config) {
	cfg.DataDir = getEnv("KITH_DATA_DIR", cfg.DataDir)
	cfg.Log.Level = getEnv("KITH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("KITH_LOG_FORMAT", cfg.Log.Format)
	cfg.Remote.BaseURL = getEnv("KITH_REMOTE_URL", cfg.Remote.BaseURL)
	cfg.Remote.APIKey = getEnv("KITH_REMOTE_API_KEY", cfg.Remote.APIKey)
	cfg.Remote.Timeout = getDurationEnv("KITH_REMOTE_TIMEOUT", cfg.Remote.Timeout)
	cfg.Poller.Interval = getDurationEnv("KITH_POLL_INTERVAL", cfg.Poller.Interval)
	cfg.Reminders.Timezone = getEnv("KITH_TIMEZONE", cfg.Reminders.Timezone)
	cfg.Metrics.Addr = getEnv("KITH_METRICS_ADDR", cfg.Metrics.Addr)
	cfg.Access.Identity = getEnv("KITH_IDENTITY", cfg.Access.Identity)
	cfg.Access.AdminIdentity = getEnv("KITH_ADMIN_IDENTITY", cfg.Access.AdminIdentity)
	cfg.Access.DevelopmentOverride = getBoolEnv("KITH_DEV_OVERRIDE", cfg.Access.DevelopmentOverride)
	if v := os.Getenv("KITH_ALLOWLIST"); v != "" {
		var ids []string
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		cfg.Access.AllowlistedIdentities = ids
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err == nil {
			return parsed
		}
	}
	return defaultValue
}
