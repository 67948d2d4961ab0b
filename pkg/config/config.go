// Package config loads engine configuration from YAML with sane defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds engine and CLI configuration.
type Config struct {
	LogLevel          string        `yaml:"log_level" default:"info"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"30s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	EnumerationWindow time.Duration `yaml:"enumeration_window" default:"5s"`
	DeviceExpiry      time.Duration `yaml:"device_expiry" default:"30s"`
	OutputFormat      string        `yaml:"output_format" default:"table"`
}

// rawConfig mirrors Config with durations as strings so YAML files can
// say "5s" instead of nanosecond integers.
type rawConfig struct {
	LogLevel          string `yaml:"log_level"`
	ScanTimeout       string `yaml:"scan_timeout"`
	ConnectTimeout    string `yaml:"connect_timeout"`
	EnumerationWindow string `yaml:"enumeration_window"`
	DeviceExpiry      string `yaml:"device_expiry"`
	OutputFormat      string `yaml:"output_format"`
}

// DefaultConfig returns the configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads a YAML configuration file. Missing keys keep their
// defaults; a missing file is an error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration bytes on top of the defaults.
func Parse(data []byte) (*Config, error) {
	var raw rawConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := DefaultConfig()
	if raw.LogLevel != "" {
		cfg.LogLevel = raw.LogLevel
	}
	if raw.OutputFormat != "" {
		cfg.OutputFormat = raw.OutputFormat
	}

	durations := []struct {
		key  string
		src  string
		dest *time.Duration
	}{
		{"scan_timeout", raw.ScanTimeout, &cfg.ScanTimeout},
		{"connect_timeout", raw.ConnectTimeout, &cfg.ConnectTimeout},
		{"enumeration_window", raw.EnumerationWindow, &cfg.EnumerationWindow},
		{"device_expiry", raw.DeviceExpiry, &cfg.DeviceExpiry},
	}
	for _, d := range durations {
		if d.src == "" {
			continue
		}
		v, err := time.ParseDuration(d.src)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.key, d.src, err)
		}
		*d.dest = v
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", c.LogLevel, err)
	}
	switch c.OutputFormat {
	case "table", "json":
	default:
		return fmt.Errorf("invalid output_format %q: want table or json", c.OutputFormat)
	}
	if c.EnumerationWindow <= 0 {
		return fmt.Errorf("enumeration_window must be positive, got %s", c.EnumerationWindow)
	}
	if c.DeviceExpiry <= 0 {
		return fmt.Errorf("device_expiry must be positive, got %s", c.DeviceExpiry)
	}
	return nil
}

// NewLogger creates a logger configured per the LogLevel setting.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
