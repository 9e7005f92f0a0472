package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/collate-ai/collate/internal/providers"
)

// Config controls the orchestration engine: claim polling, stale-claim
// recovery, and the providers bound to fixed pipeline roles.
type Config struct {
	PollInterval      string `toml:"poll_interval"`
	StaleClaim        string `toml:"stale_claim"`
	ExtractProvider   string `toml:"extract_provider"`
	MarkdownProvider  string `toml:"markdown_provider"`
	ValidateProvider  string `toml:"validate_provider"`
	SynthesisProvider string `toml:"synthesis_provider"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	PollInterval      string
	StaleClaim        string
	ExtractProvider   string
	MarkdownProvider  string
	ValidateProvider  string
	SynthesisProvider string
}

// PollIntervalDuration returns PollInterval as a time.Duration.
func (c *Config) PollIntervalDuration() time.Duration {
	d, _ := time.ParseDuration(c.PollInterval)
	return d
}

// StaleClaimDuration returns StaleClaim as a time.Duration.
func (c *Config) StaleClaimDuration() time.Duration {
	d, _ := time.ParseDuration(c.StaleClaim)
	return d
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
	if overlay.PollInterval != "" {
		c.PollInterval = overlay.PollInterval
	}
	if overlay.StaleClaim != "" {
		c.StaleClaim = overlay.StaleClaim
	}
	if overlay.ExtractProvider != "" {
		c.ExtractProvider = overlay.ExtractProvider
	}
	if overlay.MarkdownProvider != "" {
		c.MarkdownProvider = overlay.MarkdownProvider
	}
	if overlay.ValidateProvider != "" {
		c.ValidateProvider = overlay.ValidateProvider
	}
	if overlay.SynthesisProvider != "" {
		c.SynthesisProvider = overlay.SynthesisProvider
	}
}

func (c *Config) loadDefaults() {
	if c.PollInterval == "" {
		c.PollInterval = "2s"
	}
	if c.StaleClaim == "" {
		c.StaleClaim = "10m"
	}
	if c.ExtractProvider == "" {
		c.ExtractProvider = providers.Gemini
	}
	if c.MarkdownProvider == "" {
		c.MarkdownProvider = providers.Gemini
	}
	if c.ValidateProvider == "" {
		c.ValidateProvider = providers.Azure
	}
	if c.SynthesisProvider == "" {
		c.SynthesisProvider = providers.Anthropic
	}
}

func (c *Config) loadEnv(env *Env) {
	fields := []struct {
		envVar string
		dest   *string
	}{
		{env.PollInterval, &c.PollInterval},
		{env.StaleClaim, &c.StaleClaim},
		{env.ExtractProvider, &c.ExtractProvider},
		{env.MarkdownProvider, &c.MarkdownProvider},
		{env.ValidateProvider, &c.ValidateProvider},
		{env.SynthesisProvider, &c.SynthesisProvider},
	}

	for _, f := range fields {
		if f.envVar == "" {
			continue
		}
		if v := os.Getenv(f.envVar); v != "" {
			*f.dest = v
		}
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.PollInterval); err != nil {
		return fmt.Errorf("invalid poll_interval: %w", err)
	}
	if _, err := time.ParseDuration(c.StaleClaim); err != nil {
		return fmt.Errorf("invalid stale_claim: %w", err)
	}
	return nil
}
