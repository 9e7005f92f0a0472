// Package providers implements the provider adapters that execute pipeline
// steps against remote model APIs: Gemini (Vertex AI), OpenAI, Azure OpenAI,
// and Anthropic. Each adapter normalizes its provider's response shapes into
// the common step result variants, degrading gracefully on malformed output.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/collate-ai/collate/internal/pipeline"
)

// Adapter executes one pipeline step against a remote provider.
type Adapter interface {
	Name() string
	Model() string
	Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error)
}

// Registry holds the configured adapters and routes step requests to them by
// provider name. It satisfies pipeline.Executor.
type Registry struct {
	adapters map[string]Adapter
	logger   *slog.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger.With("system", "providers"),
	}
}

// Register adds an adapter under its name, replacing any previous adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Has reports whether a provider is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.adapters[name]
	return ok
}

// Execute routes the request to the adapter named by req.Provider.
// Summarization of empty text short-circuits to a canned result without a
// remote call.
func (r *Registry) Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	adapter, ok := r.adapters[req.Provider]
	if !ok {
		return nil, pipeline.ConfigErr(fmt.Errorf("unknown provider: %q", req.Provider))
	}

	if req.Kind == pipeline.StepSummarize && strings.TrimSpace(req.Text) == "" {
		r.logger.InfoContext(ctx, "skipping summarization of empty text", "provider", req.Provider)
		return &pipeline.StepResult{
			Kind:     req.Kind,
			Provider: adapter.Name(),
			Model:    adapter.Model(),
			Summary: &pipeline.SummaryResult{
				Summary:  MessageNoText,
				Keywords: []string{},
			},
		}, nil
	}

	return adapter.Execute(ctx, req)
}
