package engine

import (
	"fmt"
	"strings"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
)

// defaultAnalysisPrompt is used when a multi-provider run is submitted
// without a prompt.
const defaultAnalysisPrompt = `Analyze this document. Describe its content, purpose, and key information.`

// specialistRoles assigns each provider the perspective it analyzes from in
// the specialist pipeline. Providers without an entry fall back to the
// default analysis prompt.
var specialistRoles = map[string]string{
	providers.Gemini: `You are a visual and creative analyst. Describe the document's layout,
visual structure, and any figures or imagery, and assess how effectively the
document communicates its message.`,
	providers.OpenAI: `You are a technical analyst. Extract the technical substance of this
document: data, methods, specifications, procedures, and quantitative claims.`,
	providers.Anthropic: `You are an analytical reviewer. Assess the document's reasoning,
assumptions, and conclusions, and identify gaps, inconsistencies, or risks.`,
	providers.Azure: `You are a structural analyst. Describe how the document is organized
and how its sections relate, and extract its essential content.`,
}

func specialistPromptFor(provider, userPrompt string) string {
	role, ok := specialistRoles[provider]
	if !ok {
		return promptOrDefault(userPrompt)
	}
	return fmt.Sprintf("%s\n\n%s", role, promptOrDefault(userPrompt))
}

func promptOrDefault(prompt string) string {
	if strings.TrimSpace(prompt) == "" {
		return defaultAnalysisPrompt
	}
	return prompt
}

func refinePrompt(text string) string {
	return fmt.Sprintf(`Review and refine the following analysis. Improve its clarity and
structure, correct any errors, and add anything important it missed. Return
the full refined analysis, not a commentary on it.

Analysis:
%s`, text)
}

func polishPrompt(text string) string {
	return fmt.Sprintf(`Validate the following analysis and produce its final polished form.
Verify that its claims are internally consistent, fix any remaining issues,
and return the complete final text.

Analysis:
%s`, text)
}

// synthesisPrompt labels every provider's output so attribution survives into
// the synthesis step. Providers are iterated in the given order.
func synthesisPrompt(userPrompt string, order []string, results map[string]pipeline.StepResult) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Multiple AI providers analyzed the same document in response to this prompt:

%s

Their responses follow, each labeled with its provider.

`, promptOrDefault(userPrompt))

	for _, provider := range order {
		result, ok := results[provider]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n\n", strings.ToUpper(provider), result.Text())
	}

	b.WriteString(`Synthesize these responses into a single consensus analysis. Note where the
providers agree, reconcile or flag where they disagree, and produce the best
unified answer.`)

	return b.String()
}
