package engine

import (
	"slices"
	"time"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
)

// Pipeline names accepted at submission.
const (
	PipelineExtract    = "extract"
	PipelineMarkdown   = "markdown"
	PipelineConsensus  = "consensus"
	PipelineChain      = "chain"
	PipelineSpecialist = "specialist"
)

// Pipelines returns the supported pipeline names in sorted order.
func Pipelines() []string {
	return []string{
		PipelineChain,
		PipelineConsensus,
		PipelineExtract,
		PipelineMarkdown,
		PipelineSpecialist,
	}
}

// ValidPipeline reports whether name is a supported pipeline.
func ValidPipeline(name string) bool {
	return slices.Contains(Pipelines(), name)
}

// defaultProviders is the fan-out and chain provider order when the
// submission does not select a subset.
var defaultProviders = []string{providers.Gemini, providers.OpenAI, providers.Anthropic}

// Extraction is the slowest remote call: scanned documents take a while and
// transient provider errors are common, so it backs off from 10s up to a
// minute. Bad input or config never recovers by retrying.
func extractStep(provider string) pipeline.Step {
	return pipeline.Step{
		Kind:     pipeline.StepExtract,
		Provider: provider,
		Timeout:  5 * time.Minute,
		Retry: pipeline.Policy{
			MaxAttempts:     3,
			InitialInterval: 10 * time.Second,
			MaxInterval:     time.Minute,
			NonRetryable:    []pipeline.ErrorKind{pipeline.KindInput, pipeline.KindConfig},
		},
	}
}

func markdownStep(provider string) pipeline.Step {
	s := extractStep(provider)
	s.Kind = pipeline.StepMarkdown
	return s
}

// Text steps operate on already-extracted content: shorter timeout, slower
// backoff since rate limits dominate the failure modes.
func textStep(kind pipeline.StepKind, provider string) pipeline.Step {
	return pipeline.Step{
		Kind:     kind,
		Provider: provider,
		Timeout:  3 * time.Minute,
		Retry: pipeline.Policy{
			MaxAttempts:     3,
			InitialInterval: 15 * time.Second,
			MaxInterval:     2 * time.Minute,
			NonRetryable:    []pipeline.ErrorKind{pipeline.KindConfig},
		},
	}
}

func summarizeStep(provider string) pipeline.Step {
	return textStep(pipeline.StepSummarize, provider)
}

func validateStep(provider string) pipeline.Step {
	s := textStep(pipeline.StepValidate, provider)
	s.Optional = true
	return s
}

func analyzeStep(provider string) pipeline.Step {
	s := textStep(pipeline.StepAnalyze, provider)
	s.Timeout = 5 * time.Minute
	return s
}

func synthesizeStep(provider string) pipeline.Step {
	s := textStep(pipeline.StepSynthesize, provider)
	s.Timeout = 5 * time.Minute
	return s
}
