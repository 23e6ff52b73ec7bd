// Package config loads the application configuration. Sections follow a
// shared lifecycle: defaults, config.yml, config.local.yml, environment
// overrides, validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"attrix/internal/storage"
)

// Section is the lifecycle every config section implements.
type Section interface {
	// ApplyDefaults fills zero values with sensible defaults
	ApplyDefaults()

	// ApplyEnvOverrides applies environment variable overrides
	ApplyEnvOverrides()

	// Validate returns an error if the configuration is invalid
	Validate() error
}

// Config holds the application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Cache   CacheConfig   `yaml:"cache"`
	PubSub  PubSubConfig  `yaml:"pubsub"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the HTTP admin surface configuration.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

func (c *ServerConfig) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 30 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

func (c *ServerConfig) ApplyEnvOverrides() {
	if v := os.Getenv("ATTRIX_SERVER_ADDR"); v != "" {
		c.Addr = v
	}
}

func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("server addr cannot be empty")
	}
	return nil
}

// StorageConfig selects and configures the partition+sort-key backend.
type StorageConfig struct {
	// Backend is one of "pebble", "mongo" or "memory".
	Backend string              `yaml:"backend"`
	Pebble  PebbleConfig        `yaml:"pebble"`
	Mongo   MongoConfig         `yaml:"mongo"`
	Retry   storage.RetryConfig `yaml:"retry"`
}

// PebbleConfig holds the embedded backend configuration.
type PebbleConfig struct {
	Dir string `yaml:"dir"`
}

// MongoConfig holds the server-backed backend configuration.
type MongoConfig struct {
	URI        string        `yaml:"uri"`
	Database   string        `yaml:"database"`
	Collection string        `yaml:"collection"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c *StorageConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "pebble"
	}
	if c.Pebble.Dir == "" {
		c.Pebble.Dir = "data/index"
	}
	if c.Mongo.URI == "" {
		c.Mongo.URI = "mongodb://localhost:27017"
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "attrix"
	}
	if c.Mongo.Collection == "" {
		c.Mongo.Collection = "rows"
	}
	if c.Mongo.Timeout == 0 {
		c.Mongo.Timeout = 10 * time.Second
	}
	if c.Retry.Attempts == 0 {
		c.Retry = storage.DefaultRetryConfig()
	}
}

func (c *StorageConfig) ApplyEnvOverrides() {
	if v := os.Getenv("ATTRIX_STORAGE_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("ATTRIX_PEBBLE_DIR"); v != "" {
		c.Pebble.Dir = v
	}
	if v := os.Getenv("ATTRIX_MONGO_URI"); v != "" {
		c.Mongo.URI = v
	}
}

func (c *StorageConfig) Validate() error {
	switch c.Backend {
	case "pebble", "mongo", "memory":
	default:
		return fmt.Errorf("invalid storage backend: %s (must be pebble, mongo, or memory)", c.Backend)
	}
	if c.Backend == "pebble" && c.Pebble.Dir == "" {
		return fmt.Errorf("pebble dir cannot be empty")
	}
	if c.Backend == "mongo" && c.Mongo.URI == "" {
		return fmt.Errorf("mongo uri cannot be empty")
	}
	return nil
}

// CacheConfig holds the registry and catalog read-through cache TTLs.
type CacheConfig struct {
	RegistryTTL time.Duration `yaml:"registry_ttl"`
	CatalogTTL  time.Duration `yaml:"catalog_ttl"`
}

func (c *CacheConfig) ApplyDefaults() {
	if c.RegistryTTL == 0 {
		c.RegistryTTL = time.Minute
	}
	if c.CatalogTTL == 0 {
		c.CatalogTTL = time.Minute
	}
}

func (c *CacheConfig) ApplyEnvOverrides() {}

func (c *CacheConfig) Validate() error {
	if c.RegistryTTL < 0 || c.CatalogTTL < 0 {
		return fmt.Errorf("cache TTLs cannot be negative")
	}
	return nil
}

// PubSubConfig selects the cache invalidation bus.
type PubSubConfig struct {
	// Backend is "nats" or "memory".
	Backend string `yaml:"backend"`
	NATS    struct {
		URL string `yaml:"url"`
	} `yaml:"nats"`
}

func (c *PubSubConfig) ApplyDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.NATS.URL == "" {
		c.NATS.URL = "nats://localhost:4222"
	}
}

func (c *PubSubConfig) ApplyEnvOverrides() {
	if v := os.Getenv("ATTRIX_PUBSUB_BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("ATTRIX_NATS_URL"); v != "" {
		c.NATS.URL = v
	}
}

func (c *PubSubConfig) Validate() error {
	switch c.Backend {
	case "nats", "memory":
	default:
		return fmt.Errorf("invalid pubsub backend: %s (must be nats or memory)", c.Backend)
	}
	return nil
}

// Load reads configuration from the config directory and environment.
// Order: defaults -> config.yml -> config.local.yml -> env overrides ->
// validate.
func Load(configDir string) (*Config, error) {
	cfg := &Config{}

	if err := loadFile(configDir+"/config.yml", cfg); err != nil {
		return nil, err
	}
	if err := loadFile(configDir+"/config.local.yml", cfg); err != nil {
		return nil, err
	}

	sections := []Section{&cfg.Server, &cfg.Storage, &cfg.Cache, &cfg.PubSub, &cfg.Logging}
	for _, s := range sections {
		s.ApplyDefaults()
		s.ApplyEnvOverrides()
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("configuration error: %w", err)
		}
	}
	return cfg, nil
}

func loadFile(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading %s: %w", filename, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing %s: %w", filename, err)
	}
	return nil
}
