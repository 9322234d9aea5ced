// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"shelf/internal/booking"
)

const (
	DefaultPath = "configs/config.yaml"
	// PathEnv overrides DefaultPath.
	PathEnv = "SHELF_CONFIG_PATH"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`

	Booking struct {
		BufferStartHours        int  `yaml:"buffer_start_hours"`
		MaxLengthHours          int  `yaml:"max_length_hours"`
		MaxLengthSkipClosedDays bool `yaml:"max_length_skip_closed_days"`
		OverdueSweepSeconds     int  `yaml:"overdue_sweep_seconds"`
	} `yaml:"booking"`

	Telegram struct {
		BotToken      string  `yaml:"bot_token"`
		ChatID        int64   `yaml:"chat_id"`
		RatePerSecond float64 `yaml:"rate_per_second"`
		Burst         int     `yaml:"burst"`
	} `yaml:"telegram"`

	WorkingHoursFile string `yaml:"working_hours_file"`
}

// Load reads the YAML config at path, or at $SHELF_CONFIG_PATH, or at
// DefaultPath. A .env file next to the working directory is loaded first
// so its variables can fill ${VAR} placeholders.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if path == "" {
		path = os.Getenv(PathEnv)
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return cfg, nil
}

// Parse decodes and validates a config document after expanding ${VAR}
// placeholders.
func Parse(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "data/shelf.db"
	}
	if cfg.Backup.Path == "" {
		cfg.Backup.Path = filepath.Join(filepath.Dir(cfg.Database.Path), "backups")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch {
	case c.Booking.BufferStartHours < 0:
		return errors.New("booking.buffer_start_hours must not be negative")
	case c.Booking.MaxLengthHours < 0:
		return errors.New("booking.max_length_hours must not be negative")
	case c.Booking.OverdueSweepSeconds < 0:
		return errors.New("booking.overdue_sweep_seconds must not be negative")
	case c.TelegramEnabled() && c.Telegram.ChatID == 0:
		return errors.New("telegram.chat_id is required when telegram.bot_token is set")
	case c.Telegram.RatePerSecond < 0:
		return errors.New("telegram.rate_per_second must not be negative")
	}
	return nil
}

func (c *Config) BufferStart() time.Duration {
	return time.Duration(c.Booking.BufferStartHours) * time.Hour
}

func (c *Config) MaxBookingLength() time.Duration {
	return time.Duration(c.Booking.MaxLengthHours) * time.Hour
}

// BookingSettings returns the booking window rules.
func (c *Config) BookingSettings() booking.Settings {
	return booking.Settings{
		BufferStart:             c.BufferStart(),
		MaxLengthHours:          c.Booking.MaxLengthHours,
		MaxLengthSkipClosedDays: c.Booking.MaxLengthSkipClosedDays,
	}
}

func (c *Config) OverdueSweepInterval() time.Duration {
	if c.Booking.OverdueSweepSeconds <= 0 {
		return time.Minute
	}
	return time.Duration(c.Booking.OverdueSweepSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) HealthCheckPort() int {
	if c.Monitoring.HealthCheckPort == 0 {
		return 8090
	}
	return c.Monitoring.HealthCheckPort
}

func (c *Config) PrometheusPort() int {
	if c.Monitoring.PrometheusPort == 0 {
		return 9090
	}
	return c.Monitoring.PrometheusPort
}

func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.BotToken != "YOUR_BOT_TOKEN_HERE"
}
