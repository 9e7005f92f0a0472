package engine

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
)

// CompositeResult is the aggregated outcome of a completed run. Results keeps
// per-provider attribution even when a consensus text was synthesized;
// Degraded is set when any contributing step degraded to a fallback.
type CompositeResult struct {
	RunID      uuid.UUID                      `json:"run_id"`
	Pipeline   string                         `json:"pipeline"`
	Providers  []string                       `json:"providers"`
	FullText   string                         `json:"full_text,omitempty"`
	Markdown   string                         `json:"markdown,omitempty"`
	Summary    *pipeline.SummaryResult        `json:"summary,omitempty"`
	Validation *pipeline.ValidationResult     `json:"validation,omitempty"`
	Results    map[string]pipeline.StepResult `json:"results,omitempty"`
	Consensus  string                         `json:"consensus,omitempty"`
	Analysis   string                         `json:"analysis,omitempty"`
	Degraded   bool                           `json:"degraded,omitempty"`
}

func newComposite(runID uuid.UUID, pipelineName string, providerNames []string) *CompositeResult {
	return &CompositeResult{
		RunID:     runID,
		Pipeline:  pipelineName,
		Providers: providerNames,
		Results:   make(map[string]pipeline.StepResult),
	}
}

// absorb records a step result under its provider and propagates degradation.
func (c *CompositeResult) absorb(provider string, result pipeline.StepResult) {
	c.Results[provider] = result
	if result.Degraded {
		c.Degraded = true
	}
}

func consensusAnalysis(providerNames []string) string {
	return fmt.Sprintf("Processed with %d AI providers", len(providerNames))
}

func chainAnalysis(providerNames []string) string {
	labels := make([]string, len(providerNames))
	for i, p := range providerNames {
		labels[i] = providerLabel(p)
	}
	return "Sequential processing: " + strings.Join(labels, " → ")
}

func specialistAnalysis(providerNames []string) string {
	return fmt.Sprintf("Specialist analysis with %d AI providers", len(providerNames))
}

var providerLabels = map[string]string{
	providers.Gemini:    "Gemini",
	providers.OpenAI:    "OpenAI",
	providers.Azure:     "Azure",
	providers.Anthropic: "Anthropic",
}

func providerLabel(name string) string {
	if label, ok := providerLabels[name]; ok {
		return label
	}
	if name == "" {
		return name
	}
	return strings.ToUpper(name[:1]) + name[1:]
}
