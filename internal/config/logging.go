package config

import (
	"fmt"
	"os"
)

// LoggingConfig configures the process logger. Output goes to the console
// and to a size-rotated file under Dir.
type LoggingConfig struct {
	Level    string         `yaml:"level"`  // debug, info, warn, error
	Format   string         `yaml:"format"` // text, json
	Dir      string         `yaml:"dir"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig bounds the rotated log file set.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"max_size"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age"`
	Compress   bool `yaml:"compress"`
}

func (c *LoggingConfig) ApplyDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "text"
	}
	if c.Dir == "" {
		c.Dir = "logs"
	}
	if c.Rotation.MaxSizeMB == 0 {
		c.Rotation.MaxSizeMB = 100
	}
	if c.Rotation.MaxBackups == 0 {
		c.Rotation.MaxBackups = 10
	}
	if c.Rotation.MaxAgeDays == 0 {
		c.Rotation.MaxAgeDays = 30
	}
}

func (c *LoggingConfig) ApplyEnvOverrides() {
	if v := os.Getenv("ATTRIX_LOG_LEVEL"); v != "" {
		c.Level = v
	}
	if v := os.Getenv("ATTRIX_LOG_DIR"); v != "" {
		c.Dir = v
	}
}

func (c *LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level '%s'", c.Level)
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format '%s'", c.Format)
	}
	if c.Dir == "" {
		return fmt.Errorf("log directory is required")
	}
	return nil
}
