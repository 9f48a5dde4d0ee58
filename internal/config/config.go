// Package config loads process configuration from CLI flags with
// environment-variable fallback. Flags win over the environment, the
// environment wins over defaults.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
)

// Config holds all process configuration.
type Config struct {
	// BrokerURL is the AMQP connection URL. Required.
	BrokerURL string

	// Port for the process's own listener, where one exists.
	Port int

	// Logging
	LogLevel string
	JSONLogs bool
}

// Defaults applied before flags and environment are read.
var defaults = Config{
	Port:     8080,
	LogLevel: "info",
}

// Load parses configuration from args and the environment. args excludes
// the program name, as with flag.CommandLine.
func Load(name string, args []string) (*Config, error) {
	cfg := defaults

	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.BrokerURL = v
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("config: PORT %q is not a number", v)
		}
		cfg.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.StringVar(&cfg.BrokerURL, "broker-url", cfg.BrokerURL, "AMQP broker URL")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "Listen port")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.BoolVar(&cfg.JSONLogs, "json-logs", cfg.JSONLogs, "Output logs in JSON format")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for mistakes that would otherwise
// surface as confusing runtime failures.
func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("config: BROKER_URL is required")
	}

	u, err := url.Parse(c.BrokerURL)
	if err != nil {
		return fmt.Errorf("config: invalid broker URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return fmt.Errorf("config: broker URL scheme must be amqp or amqps, got %q", u.Scheme)
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range", c.Port)
	}

	if _, err := c.SlogLevel(); err != nil {
		return err
	}

	return nil
}

// SlogLevel maps the configured level name onto slog's levels.
func (c *Config) SlogLevel() (slog.Level, error) {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
}

// Logger builds the process logger from the configuration.
func (c *Config) Logger() *slog.Logger {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if c.JSONLogs {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
