// Package config loads and finalizes the Collate worker configuration from a
// TOML base file, an optional environment overlay, and COLLATE_* environment
// variables.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/collate-ai/collate/internal/dispatch"
	"github.com/collate-ai/collate/internal/engine"
	"github.com/collate-ai/collate/pkg/database"
	"github.com/collate-ai/collate/pkg/pagination"
	"github.com/collate-ai/collate/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvCollateEnv             = "COLLATE_ENV"
	EnvCollateShutdownTimeout = "COLLATE_SHUTDOWN_TIMEOUT"
	EnvCollateVersion         = "COLLATE_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "COLLATE_DB_HOST",
	Port:            "COLLATE_DB_PORT",
	Name:            "COLLATE_DB_NAME",
	User:            "COLLATE_DB_USER",
	Password:        "COLLATE_DB_PASSWORD",
	SSLMode:         "COLLATE_DB_SSL_MODE",
	MaxOpenConns:    "COLLATE_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "COLLATE_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "COLLATE_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "COLLATE_DB_CONN_TIMEOUT",
}

var storageEnv = &storage.Env{
	Backend:          "COLLATE_STORAGE_BACKEND",
	ContainerName:    "COLLATE_STORAGE_CONTAINER_NAME",
	ConnectionString: "COLLATE_STORAGE_CONNECTION_STRING",
	Root:             "COLLATE_STORAGE_ROOT",
}

var dispatchEnv = &dispatch.Env{
	Workers: "COLLATE_DISPATCH_WORKERS",
	Depth:   "COLLATE_DISPATCH_DEPTH",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "COLLATE_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "COLLATE_MAX_PAGE_SIZE",
}

var engineEnv = &engine.Env{
	PollInterval:      "COLLATE_ENGINE_POLL_INTERVAL",
	StaleClaim:        "COLLATE_ENGINE_STALE_CLAIM",
	ExtractProvider:   "COLLATE_ENGINE_EXTRACT_PROVIDER",
	MarkdownProvider:  "COLLATE_ENGINE_MARKDOWN_PROVIDER",
	ValidateProvider:  "COLLATE_ENGINE_VALIDATE_PROVIDER",
	SynthesisProvider: "COLLATE_ENGINE_SYNTHESIS_PROVIDER",
}

// Config is the root configuration for the Collate worker.
type Config struct {
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	Dispatch        dispatch.Config   `toml:"dispatch"`
	Engine          engine.Config     `toml:"engine"`
	Providers       ProvidersConfig   `toml:"providers"`
	Documents       DocumentsConfig   `toml:"documents"`
	Pagination      pagination.Config `toml:"pagination"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the COLLATE_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvCollateEnv); env != "" {
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
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.Dispatch.Merge(&overlay.Dispatch)
	c.Engine.Merge(&overlay.Engine)
	c.Providers.Merge(&overlay.Providers)
	c.Documents.Merge(&overlay.Documents)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *Config) finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.Database.Finalize(databaseEnv); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Storage.Finalize(storageEnv); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Dispatch.Finalize(dispatchEnv); err != nil {
		return fmt.Errorf("dispatch: %w", err)
	}
	if err := c.Engine.Finalize(engineEnv); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := c.Providers.Finalize(); err != nil {
		return fmt.Errorf("providers: %w", err)
	}
	if err := c.Documents.Finalize(documentsEnv); err != nil {
		return fmt.Errorf("documents: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
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
	if v := os.Getenv(EnvCollateShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvCollateVersion); v != "" {
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
	if env := os.Getenv(EnvCollateEnv); env != "" {
		path := fmt.Sprintf(OverlayConfigPattern, env)
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
