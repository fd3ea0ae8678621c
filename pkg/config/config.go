package config

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/asyncble/internal/adapter"
	goble "github.com/srg/asyncble/internal/device/go-ble"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	LogLevel     logrus.Level    `json:"log_level" yaml:"log_level"`
	ScanTimeout  time.Duration   `json:"scan_timeout" yaml:"scan_timeout"`
	OpTimeout    time.Duration   `json:"op_timeout" yaml:"op_timeout"`
	OutputFormat string          `json:"output_format" yaml:"output_format"` // text, json
	Adapter      adapter.Options `json:"adapter" yaml:"adapter"`
	Backend      goble.Options   `json:"backend" yaml:"backend"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     logrus.InfoLevel,
		ScanTimeout:  10 * time.Second,
		OpTimeout:    30 * time.Second,
		OutputFormat: "text",
		Adapter:      *adapter.DefaultOptions(),
		Backend:      *goble.DefaultOptions(),
	}
}

// Load reads a YAML file over the defaults. Keys absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.ScanTimeout < 0:
		return fmt.Errorf("scan_timeout must not be negative")
	case c.OpTimeout <= 0:
		return fmt.Errorf("op_timeout must be positive")
	case c.Adapter.ScanBuffer < 0 || c.Adapter.NotificationBuffer < 0:
		return fmt.Errorf("adapter buffers must not be negative")
	case c.OutputFormat != "text" && c.OutputFormat != "json":
		return fmt.Errorf("unknown output_format %q", c.OutputFormat)
	}
	return nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.LogLevel)

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
