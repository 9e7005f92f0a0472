package pipeline

// StepKind identifies the category of remote operation a step performs.
type StepKind string

// Step kinds supported by the provider adapters.
const (
	StepExtract    StepKind = "extract"
	StepMarkdown   StepKind = "markdown"
	StepSummarize  StepKind = "summarize"
	StepValidate   StepKind = "validate"
	StepAnalyze    StepKind = "analyze"
	StepSynthesize StepKind = "synthesize"
)

// Payload is a normalized document: raw bytes plus mime type, with the page
// count populated for PDF inputs.
type Payload struct {
	Bytes []byte `json:"-"`
	MIME  string `json:"mime"`
	Pages int    `json:"pages,omitempty"`
}

// Request is the typed input for one provider adapter invocation. Extraction
// kinds carry the document payload; text kinds carry the text produced by a
// prior step. Prompt overrides the adapter's default prompt for the kind when
// non-empty.
type Request struct {
	Kind     StepKind
	Provider string
	Document *Payload
	Text     string
	Prompt   string
}

// SummaryResult is the normalized shape of a summarization response.
type SummaryResult struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

// ValidationResult is the normalized shape of a summary validation response.
type ValidationResult struct {
	IsAccurate            bool     `json:"is_accurate"`
	SuggestedImprovements []string `json:"suggested_improvements"`
	ImprovedSummary       *string  `json:"improved_summary,omitempty"`
}

// StepResult is the provider-agnostic outcome of one step. Exactly the
// fields relevant to Kind are populated; Degraded marks results produced via
// a fallback policy rather than a clean provider response.
type StepResult struct {
	Kind       StepKind          `json:"kind"`
	Provider   string            `json:"provider"`
	Model      string            `json:"model,omitempty"`
	FullText   string            `json:"full_text,omitempty"`
	Markdown   string            `json:"markdown,omitempty"`
	Summary    *SummaryResult    `json:"summary,omitempty"`
	Validation *ValidationResult `json:"validation,omitempty"`
	Content    string            `json:"content,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Degraded   bool              `json:"degraded,omitempty"`
}

// Text returns the best textual payload for threading into a downstream
// step: free-form content first, then extracted text, markdown, and finally
// the summary body.
func (r *StepResult) Text() string {
	switch {
	case r.Content != "":
		return r.Content
	case r.FullText != "":
		return r.FullText
	case r.Markdown != "":
		return r.Markdown
	case r.Summary != nil:
		return r.Summary.Summary
	default:
		return ""
	}
}
