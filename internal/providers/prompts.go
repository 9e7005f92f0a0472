package providers

import "fmt"

// Fallback messages recorded when a provider returns nothing usable.
// The exact wording is carried over from the pipeline's observed behavior
// and is not load-bearing.
const (
	MessageNoText          = "No text extracted."
	MessageSummarizeFailed = "Summarization failed."
	MessageMarkdownFailed  = "Failed to generate markdown content."
	MessageSummaryFailed   = "Failed to generate summary."
	MessageValidateFailed  = "Could not validate the summary."
)

const extractPrompt = `Extract all text content from this image.
Preserve the exact formatting, spacing, and structure of the text as it appears in the image.
Include all numbers, punctuation, and special characters exactly as they appear.`

const markdownPrompt = `Convert this document into a complete markdown representation.
Preserve headings, lists, tables, and emphasis. Replace images with short
descriptive text. Preserve all content; do not summarize or omit sections.`

func summarizePrompt(text string) string {
	return fmt.Sprintf(`Analyze the following text and provide a summary and keywords.
Format your response *strictly* as a JSON object with ONLY two top-level fields:
- "summary": A concise summary of the main points.
- "keywords": A list of 3-5 main keywords or key phrases.
Do not include any text before or after the JSON object itself.

Text to analyze:
%s`, text)
}

func markdownSummaryPrompt(markdown string) string {
	return fmt.Sprintf(`Create a comprehensive summary of the following markdown document.
Format your summary as well-structured markdown that captures the essence of
the document and is easy to understand.

Document:
%s`, markdown)
}

func validatePrompt(summary string) string {
	return fmt.Sprintf(`You are evaluating the quality of a document summary. The summary should be comprehensive, accurate, and capture the key points.

Your task is to:
1. Evaluate if the summary appears to be comprehensive and well-structured
2. Suggest specific improvements to make the summary more effective
3. If necessary, provide an improved version of the summary

The summary to evaluate is:

%s

Please provide your evaluation in JSON format with these fields:
- "is_accurate": Boolean indicating if the summary appears to be of good quality (true/false)
- "suggested_improvements": Array of specific improvements (empty array if none)
- "improved_summary": Optional improved version of the summary (only if significant improvements are needed)`, summary)
}
