package config

import (
	"fmt"
	"os"
	"time"

	"github.com/justinbach/migration-pipeline/internal/classifier"
	"github.com/justinbach/migration-pipeline/pkg/database"
	"github.com/justinbach/migration-pipeline/pkg/storage"
	"github.com/pelletier/go-toml/v2"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvPipelineEnv             = "PIPELINE_ENV"
	EnvPipelineShutdownTimeout = "PIPELINE_SHUTDOWN_TIMEOUT"
	EnvPipelineVersion         = "PIPELINE_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "PIPELINE_DB_HOST",
	Port:            "PIPELINE_DB_PORT",
	Name:            "PIPELINE_DB_NAME",
	User:            "PIPELINE_DB_USER",
	Password:        "PIPELINE_DB_PASSWORD",
	SSLMode:         "PIPELINE_DB_SSL_MODE",
	MaxOpenConns:    "PIPELINE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "PIPELINE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "PIPELINE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "PIPELINE_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Backend:          "PIPELINE_STORAGE_BACKEND",
	Root:             "PIPELINE_STORAGE_ROOT",
	ContainerName:    "PIPELINE_STORAGE_CONTAINER_NAME",
	ConnectionString: "PIPELINE_STORAGE_CONNECTION_STRING",
	AccountURL:       "PIPELINE_STORAGE_ACCOUNT_URL",
	MaxListSize:      "PIPELINE_STORAGE_MAX_LIST_SIZE",
}

var classifierEnv = &classifier.Env{
	Provider:          "PIPELINE_CLASSIFIER_PROVIDER",
	APIKey:            "PIPELINE_CLASSIFIER_API_KEY",
	BaseURL:           "PIPELINE_CLASSIFIER_BASE_URL",
	Model:             "PIPELINE_CLASSIFIER_MODEL",
	MaxTokens:         "PIPELINE_CLASSIFIER_MAX_TOKENS",
	Timeout:           "PIPELINE_CLASSIFIER_TIMEOUT",
	RequestsPerMinute: "PIPELINE_CLASSIFIER_REQUESTS_PER_MINUTE",
	Burst:             "PIPELINE_CLASSIFIER_BURST",
}

// Config is the root configuration for the pipeline service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	API             APIConfig         `toml:"api"`
	Classifier      classifier.Config `toml:"classifier"`
	Pipeline        PipelineConfig    `toml:"pipeline"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the PIPELINE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvPipelineEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads the base config (if present), applies any environment overlay,
// and finalizes all values. If no config.toml exists, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg := &Config{}

	if _, err := os.Stat(BaseConfigFile); err == nil {
		loaded, err := load(BaseConfigFile)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	if err := cfg.finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sub-configs.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Classifier.Merge(&overlay.Classifier)
	c.Pipeline.Merge(&overlay.Pipeline)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Server.Finalize(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.API.Finalize(); err != nil {
		return fmt.Errorf("api: %w", err)
	}
	if err := c.Classifier.Finalize(classifierEnv); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	if err := c.Pipeline.Finalize(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvPipelineShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvPipelineVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

func overlayPath() string {
	if env := os.Getenv(EnvPipelineEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
