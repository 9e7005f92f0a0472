package providers

import (
	"encoding/json"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/pkg/formatting"
)

const fallbackSummaryLimit = 500

// normalizeSummary turns a raw summarization response into a SummaryResult.
// The parse ladder (direct JSON, fenced block, brace substring) lives in
// formatting.Parse; on top of that this handles empty responses, missing
// required keys, and one level of double-encoded JSON in the summary field.
// It never fails: unusable responses synthesize a degraded fallback from the
// raw text.
func normalizeSummary(raw string) (*pipeline.SummaryResult, bool) {
	if raw == "" {
		return &pipeline.SummaryResult{
			Summary:  MessageSummarizeFailed,
			Keywords: []string{},
		}, true
	}

	parsed, err := formatting.Parse[pipeline.SummaryResult](raw)
	if err != nil || parsed.Summary == "" {
		return fallbackSummary(raw), true
	}

	// Some providers double-encode: the summary field itself holds the JSON
	// object that was asked for. Unwrap exactly once.
	if nested, ok := unwrapSummary(parsed.Summary); ok {
		parsed = nested
	}

	if parsed.Keywords == nil {
		parsed.Keywords = []string{}
	}

	return &parsed, false
}

func unwrapSummary(s string) (pipeline.SummaryResult, bool) {
	var nested pipeline.SummaryResult
	if err := json.Unmarshal([]byte(s), &nested); err != nil {
		return nested, false
	}
	return nested, nested.Summary != ""
}

func fallbackSummary(raw string) *pipeline.SummaryResult {
	return &pipeline.SummaryResult{
		Summary:  truncate(raw, fallbackSummaryLimit),
		Keywords: []string{},
	}
}

// normalizeValidation turns a raw validation response into a
// ValidationResult, synthesizing a conservative fallback when the response
// is empty or unparseable.
func normalizeValidation(raw string) (*pipeline.ValidationResult, bool) {
	if raw == "" {
		return fallbackValidation(), true
	}

	parsed, err := formatting.Parse[pipeline.ValidationResult](raw)
	if err != nil {
		return fallbackValidation(), true
	}

	if parsed.SuggestedImprovements == nil {
		parsed.SuggestedImprovements = []string{}
	}

	return &parsed, false
}

func fallbackValidation() *pipeline.ValidationResult {
	return &pipeline.ValidationResult{
		IsAccurate:            false,
		SuggestedImprovements: []string{MessageValidateFailed},
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
