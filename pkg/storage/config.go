package storage

import (
	"fmt"
	"os"
)

// Supported storage backends.
const (
	BackendAzure = "azure"
	BackendFile  = "file"
)

// Config holds storage backend parameters. ConnectionString and ContainerName
// apply to the azure backend; Root applies to the file backend.
type Config struct {
	Backend          string `toml:"backend"`
	ContainerName    string `toml:"container_name"`
	ConnectionString string `toml:"connection_string"`
	Root             string `toml:"root"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Backend          string
	ContainerName    string
	ConnectionString string
	Root             string
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
	if overlay.Backend != "" {
		c.Backend = overlay.Backend
	}
	if overlay.ContainerName != "" {
		c.ContainerName = overlay.ContainerName
	}
	if overlay.ConnectionString != "" {
		c.ConnectionString = overlay.ConnectionString
	}
	if overlay.Root != "" {
		c.Root = overlay.Root
	}
}

func (c *Config) loadDefaults() {
	if c.Backend == "" {
		c.Backend = BackendFile
	}
	if c.ContainerName == "" {
		c.ContainerName = "documents"
	}
	if c.Root == "" {
		c.Root = "documents"
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Backend != "" {
		if v := os.Getenv(env.Backend); v != "" {
			c.Backend = v
		}
	}
	if env.ContainerName != "" {
		if v := os.Getenv(env.ContainerName); v != "" {
			c.ContainerName = v
		}
	}
	if env.ConnectionString != "" {
		if v := os.Getenv(env.ConnectionString); v != "" {
			c.ConnectionString = v
		}
	}
	if env.Root != "" {
		if v := os.Getenv(env.Root); v != "" {
			c.Root = v
		}
	}
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendAzure:
		if c.ContainerName == "" {
			return fmt.Errorf("container_name required")
		}
		if c.ConnectionString == "" {
			return fmt.Errorf("connection_string required for azure backend")
		}
	case BackendFile:
		if c.Root == "" {
			return fmt.Errorf("root required for file backend")
		}
	default:
		return fmt.Errorf("unknown backend: %q", c.Backend)
	}
	return nil
}
