package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config keeps runtime settings for the planner.
type Config struct {
	// TelegramToken enables the bot; empty runs without a front-end.
	TelegramToken string `yaml:"telegram_token"`
	DatabaseURL   string `yaml:"database_url"`
	// DefaultTimezone is given to users who never picked one.
	DefaultTimezone string `yaml:"default_timezone"`
	// DigestTime is the HH:MM local time of the morning digest; empty
	// disables it.
	DigestTime  string `yaml:"digest_time"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		DatabaseURL:     "daily_planner.db",
		DefaultTimezone: "UTC",
		DigestTime:      "08:00",
		LogLevel:        "info",
	}
}

// Load reads the optional YAML file named by CONFIG_FILE, then applies
// environment variables on top of it.
func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	cfg := Default()

	if path, ok := lookup("CONFIG_FILE"); ok && strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(strings.TrimSpace(path))
		if err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config file: %w", err)
		}
	}

	env := map[string]*string{
		"TELEGRAM_TOKEN":   &cfg.TelegramToken,
		"DATABASE_URL":     &cfg.DatabaseURL,
		"DEFAULT_TIMEZONE": &cfg.DefaultTimezone,
		"DIGEST_TIME":      &cfg.DigestTime,
		"METRICS_ADDR":     &cfg.MetricsAddr,
		"LOG_LEVEL":        &cfg.LogLevel,
	}
	for key, field := range env {
		if v, ok := lookup(key); ok {
			*field = strings.TrimSpace(v)
		}
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = "daily_planner.db"
	}
	if cfg.DefaultTimezone == "" {
		cfg.DefaultTimezone = "UTC"
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("DEFAULT_TIMEZONE: unknown zone %q", c.DefaultTimezone))
	}
	if c.DigestTime != "" {
		if _, err := time.Parse("15:04", c.DigestTime); err != nil {
			errs = append(errs, fmt.Errorf("DIGEST_TIME: expected HH:MM, got %q", c.DigestTime))
		}
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("LOG_LEVEL: %w", err))
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel; empty means info.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, err
	}
	return level, nil
}

// DigestEnabled reports whether the morning digest should be scheduled.
func (c Config) DigestEnabled() bool {
	return c.DigestTime != ""
}
