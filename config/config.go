// Package config loads the YAML run configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level run configuration.
type Config struct {
	Site     string   `yaml:"site"`
	Keywords []string `yaml:"keywords"`
	Sort     string   `yaml:"sort"`
	Window   string   `yaml:"analysis_window"`

	OutputDir   string `yaml:"output_dir"`
	HistoryFile string `yaml:"history_file"`

	Limits      LimitsConfig      `yaml:"limits"`
	Browser     BrowserConfig     `yaml:"browser"`
	Pacing      PacingConfig      `yaml:"pacing"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`

	StatusAddr string `yaml:"status_addr"` // empty disables the endpoint
	LogLevel   string `yaml:"log_level"`   // debug | info | warn | error
}

// LimitsConfig bounds one keyword run.
type LimitsConfig struct {
	MaxPages    int  `yaml:"max_pages"`
	MaxRecords  int  `yaml:"max_records"`
	MaxComments int  `yaml:"max_comments"`
	Grind       bool `yaml:"grind"`
	MaxAgeDays  int  `yaml:"max_age_days"`
}

// BrowserConfig controls the Chrome session.
type BrowserConfig struct {
	Remote           string   `yaml:"remote"`
	Headless         bool     `yaml:"headless"`
	UserDataDir      string   `yaml:"user_data_dir"`
	CookiesFile      string   `yaml:"cookies_file"`
	ResourceBlocking []string `yaml:"resource_blocking"`
	ScreenshotDir    string   `yaml:"screenshot_dir"`
}

// PacingConfig sets delay bounds between UI actions.
type PacingConfig struct {
	Min        time.Duration `yaml:"min"`
	Max        time.Duration `yaml:"max"`
	BackoffMin time.Duration `yaml:"backoff_min"`
	BackoffMax time.Duration `yaml:"backoff_max"`
}

// DiagnosticsConfig controls failure bundle capture.
type DiagnosticsConfig struct {
	Verbosity string `yaml:"verbosity"` // off | minimal | standard | full
	Dir       string `yaml:"dir"`
}

// TelemetryConfig controls the JSONL event stream and its SQLite mirror.
type TelemetryConfig struct {
	Dir           string `yaml:"dir"`
	SQLitePath    string `yaml:"sqlite_path"` // empty disables the archive
	RetentionDays int    `yaml:"retention_days"`
}

// LoadFile reads a YAML configuration file and applies defaults.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = "./data"
	}
	if c.Limits.MaxPages <= 0 {
		c.Limits.MaxPages = 20
	}
	if c.Limits.MaxComments <= 0 {
		c.Limits.MaxComments = 10
	}
	if c.Limits.MaxAgeDays <= 0 {
		c.Limits.MaxAgeDays = 99999
	}
	if c.Pacing.Min <= 0 {
		c.Pacing.Min = 2 * time.Second
	}
	if c.Pacing.Max <= 0 {
		c.Pacing.Max = 5 * time.Second
	}
	if c.Pacing.BackoffMin <= 0 {
		c.Pacing.BackoffMin = 4 * time.Second
	}
	if c.Pacing.BackoffMax <= 0 {
		c.Pacing.BackoffMax = 8 * time.Second
	}
	if c.Diagnostics.Verbosity == "" {
		c.Diagnostics.Verbosity = "off"
	}
	if c.Telemetry.Dir == "" {
		c.Telemetry.Dir = "./logs"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Site == "" {
		return fmt.Errorf("config: site is required")
	}
	if len(c.Keywords) == 0 {
		return fmt.Errorf("config: at least one keyword is required")
	}
	switch c.Diagnostics.Verbosity {
	case "off", "minimal", "standard", "full":
	default:
		return fmt.Errorf("config: unknown diagnostics verbosity %q", c.Diagnostics.Verbosity)
	}
	return nil
}
