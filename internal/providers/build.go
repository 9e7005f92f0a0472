package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collate-ai/collate/internal/pipeline"
)

// BuildRegistry constructs adapters for every enabled provider config and
// registers them. Construction failures are fatal: a worker with a broken
// provider config must not start.
func BuildRegistry(ctx context.Context, cfgs map[string]*Config, logger *slog.Logger) (*Registry, error) {
	registry := NewRegistry(logger)

	for name, cfg := range cfgs {
		if cfg == nil || !cfg.Enabled {
			continue
		}

		adapter, err := build(ctx, name, cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}

		registry.Register(adapter)
		logger.Info("provider registered", "provider", name, "model", adapter.Model())
	}

	return registry, nil
}

func build(ctx context.Context, name string, cfg *Config, logger *slog.Logger) (Adapter, error) {
	switch name {
	case Gemini:
		return NewGemini(ctx, cfg, logger)
	case OpenAI:
		return NewOpenAI(cfg, logger)
	case Azure:
		return NewAzureOpenAI(cfg, logger)
	case Anthropic:
		return NewAnthropic(cfg, logger)
	default:
		return nil, pipeline.ConfigErr(fmt.Errorf("unknown provider: %q", name))
	}
}
