package providers

import (
	"fmt"
	"os"
	"strconv"

	"github.com/collate-ai/collate/internal/pipeline"
)

// Provider names. These are the dispatch keys used in pipeline definitions,
// queue routing, and submission provider selection.
const (
	Gemini    = "gemini"
	OpenAI    = "openai"
	Azure     = "azure"
	Anthropic = "anthropic"
)

// Config holds the connection parameters for one provider. Which fields are
// required depends on the provider: gemini uses ProjectID/Region, azure uses
// Endpoint and APIVersion, openai and anthropic use APIKey alone.
type Config struct {
	Enabled    bool   `toml:"enabled"`
	APIKey     string `toml:"api_key"`
	Endpoint   string `toml:"endpoint"`
	Model      string `toml:"model"`
	APIVersion string `toml:"api_version"`
	ProjectID  string `toml:"project_id"`
	Region     string `toml:"region"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Enabled    string
	APIKey     string
	Endpoint   string
	Model      string
	APIVersion string
	ProjectID  string
	Region     string
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Enabled {
		c.Enabled = true
	}
	if overlay.APIKey != "" {
		c.APIKey = overlay.APIKey
	}
	if overlay.Endpoint != "" {
		c.Endpoint = overlay.Endpoint
	}
	if overlay.Model != "" {
		c.Model = overlay.Model
	}
	if overlay.APIVersion != "" {
		c.APIVersion = overlay.APIVersion
	}
	if overlay.ProjectID != "" {
		c.ProjectID = overlay.ProjectID
	}
	if overlay.Region != "" {
		c.Region = overlay.Region
	}
}

// Finalize applies name-specific defaults, environment variable overrides,
// and validation. Validation only applies to enabled providers; a disabled
// provider is never constructed.
func (c *Config) Finalize(env *Env, name string) error {
	c.loadDefaults(name)
	if env != nil {
		c.loadEnv(env)
	}
	if !c.Enabled {
		return nil
	}
	return c.validate(name)
}

func (c *Config) loadDefaults(name string) {
	switch name {
	case Gemini:
		if c.Model == "" {
			c.Model = "gemini-2.5-pro"
		}
		if c.Region == "" {
			c.Region = "us-central1"
		}
	case OpenAI:
		if c.Model == "" {
			c.Model = "gpt-4o"
		}
	case Azure:
		if c.APIVersion == "" {
			c.APIVersion = "2024-02-15-preview"
		}
	case Anthropic:
		if c.Model == "" {
			c.Model = "claude-sonnet-4-0"
		}
		if c.Endpoint == "" {
			c.Endpoint = "https://api.anthropic.com/v1/messages"
		}
	}
}

func (c *Config) loadEnv(env *Env) {
	if env.Enabled != "" {
		if v := os.Getenv(env.Enabled); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				c.Enabled = b
			}
		}
	}
	if env.APIKey != "" {
		if v := os.Getenv(env.APIKey); v != "" {
			c.APIKey = v
		}
	}
	if env.Endpoint != "" {
		if v := os.Getenv(env.Endpoint); v != "" {
			c.Endpoint = v
		}
	}
	if env.Model != "" {
		if v := os.Getenv(env.Model); v != "" {
			c.Model = v
		}
	}
	if env.APIVersion != "" {
		if v := os.Getenv(env.APIVersion); v != "" {
			c.APIVersion = v
		}
	}
	if env.ProjectID != "" {
		if v := os.Getenv(env.ProjectID); v != "" {
			c.ProjectID = v
		}
	}
	if env.Region != "" {
		if v := os.Getenv(env.Region); v != "" {
			c.Region = v
		}
	}
}

func (c *Config) validate(name string) error {
	missing := func(field string) error {
		return pipeline.ConfigErr(fmt.Errorf("provider %s: %s required", name, field))
	}

	switch name {
	case Gemini:
		if c.ProjectID == "" {
			return missing("project_id")
		}
		if c.Region == "" {
			return missing("region")
		}
	case OpenAI:
		if c.APIKey == "" {
			return missing("api_key")
		}
	case Azure:
		if c.APIKey == "" {
			return missing("api_key")
		}
		if c.Endpoint == "" {
			return missing("endpoint")
		}
		if c.Model == "" {
			return missing("model")
		}
	case Anthropic:
		if c.APIKey == "" {
			return missing("api_key")
		}
	default:
		return pipeline.ConfigErr(fmt.Errorf("unknown provider: %q", name))
	}

	return nil
}
