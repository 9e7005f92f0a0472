package dispatch

import (
	"fmt"
	"os"
	"strconv"
)

// Config sizes the per-queue worker pools.
type Config struct {
	Workers int `toml:"workers"`
	Depth   int `toml:"depth"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Workers string
	Depth   string
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Workers != 0 {
		c.Workers = overlay.Workers
	}
	if overlay.Depth != 0 {
		c.Depth = overlay.Depth
	}
}

func (c *Config) loadDefaults() {
	if c.Workers == 0 {
		c.Workers = 4
	}
	if c.Depth == 0 {
		c.Depth = 64
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Workers != "" {
		if v, err := strconv.Atoi(os.Getenv(env.Workers)); err == nil && v > 0 {
			c.Workers = v
		}
	}
	if env.Depth != "" {
		if v, err := strconv.Atoi(os.Getenv(env.Depth)); err == nil && v > 0 {
			c.Depth = v
		}
	}
}

func (c *Config) validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive")
	}
	if c.Depth < 1 {
		return fmt.Errorf("depth must be positive")
	}
	return nil
}
