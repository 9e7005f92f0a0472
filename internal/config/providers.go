package config

import (
	"fmt"

	"github.com/collate-ai/collate/internal/providers"
)

var providerEnvs = map[string]*providers.Env{
	providers.Gemini: {
		Enabled:   "COLLATE_GEMINI_ENABLED",
		Model:     "COLLATE_GEMINI_MODEL",
		ProjectID: "COLLATE_GEMINI_PROJECT_ID",
		Region:    "COLLATE_GEMINI_REGION",
	},
	providers.OpenAI: {
		Enabled:  "COLLATE_OPENAI_ENABLED",
		APIKey:   "COLLATE_OPENAI_API_KEY",
		Endpoint: "COLLATE_OPENAI_ENDPOINT",
		Model:    "COLLATE_OPENAI_MODEL",
	},
	providers.Azure: {
		Enabled:    "COLLATE_AZURE_ENABLED",
		APIKey:     "COLLATE_AZURE_API_KEY",
		Endpoint:   "COLLATE_AZURE_ENDPOINT",
		Model:      "COLLATE_AZURE_MODEL",
		APIVersion: "COLLATE_AZURE_API_VERSION",
	},
	providers.Anthropic: {
		Enabled:  "COLLATE_ANTHROPIC_ENABLED",
		APIKey:   "COLLATE_ANTHROPIC_API_KEY",
		Endpoint: "COLLATE_ANTHROPIC_ENDPOINT",
		Model:    "COLLATE_ANTHROPIC_MODEL",
	},
}

// ProvidersConfig holds the per-provider connection blocks.
type ProvidersConfig struct {
	Gemini    providers.Config `toml:"gemini"`
	OpenAI    providers.Config `toml:"openai"`
	Azure     providers.Config `toml:"azure"`
	Anthropic providers.Config `toml:"anthropic"`
}

// Map returns the provider configs keyed by provider name.
func (p *ProvidersConfig) Map() map[string]*providers.Config {
	return map[string]*providers.Config{
		providers.Gemini:    &p.Gemini,
		providers.OpenAI:    &p.OpenAI,
		providers.Azure:     &p.Azure,
		providers.Anthropic: &p.Anthropic,
	}
}

// Merge overwrites non-zero fields from overlay per provider.
func (p *ProvidersConfig) Merge(overlay *ProvidersConfig) {
	p.Gemini.Merge(&overlay.Gemini)
	p.OpenAI.Merge(&overlay.OpenAI)
	p.Azure.Merge(&overlay.Azure)
	p.Anthropic.Merge(&overlay.Anthropic)
}

// Finalize applies defaults, env overrides, and validation to every provider
// block. Validation errors on any enabled provider fail worker startup.
func (p *ProvidersConfig) Finalize() error {
	for name, cfg := range p.Map() {
		if err := cfg.Finalize(providerEnvs[name], name); err != nil {
			return err
		}
	}
	return nil
}

// Enabled returns the names of all enabled providers.
func (p *ProvidersConfig) Enabled() []string {
	var names []string
	for _, name := range []string{
		providers.Gemini, providers.OpenAI, providers.Azure, providers.Anthropic,
	} {
		if p.Map()[name].Enabled {
			names = append(names, name)
		}
	}
	return names
}

// Validate ensures at least one provider is enabled.
func (p *ProvidersConfig) Validate() error {
	if len(p.Enabled()) == 0 {
		return fmt.Errorf("no providers enabled")
	}
	return nil
}
