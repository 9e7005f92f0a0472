package providers

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/collate-ai/collate/internal/pipeline"
)

// client is the raw remote-call surface a provider implements: one prompt,
// an optional document payload, one text response.
type client interface {
	name() string
	model() string
	generate(ctx context.Context, prompt string, doc *pipeline.Payload) (string, error)
}

// adapter wraps a client with the per-kind request composition and response
// normalization shared by every provider.
type adapter struct {
	c      client
	logger *slog.Logger
}

func newAdapter(c client, logger *slog.Logger) *adapter {
	return &adapter{
		c:      c,
		logger: logger.With("provider", c.name()),
	}
}

func (a *adapter) Name() string {
	return a.c.name()
}

func (a *adapter) Model() string {
	return a.c.model()
}

func (a *adapter) Execute(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	switch req.Kind {
	case pipeline.StepExtract:
		return a.extract(ctx, req)
	case pipeline.StepMarkdown:
		return a.markdown(ctx, req)
	case pipeline.StepSummarize:
		return a.summarize(ctx, req)
	case pipeline.StepValidate:
		return a.validate(ctx, req)
	case pipeline.StepAnalyze, pipeline.StepSynthesize:
		return a.analyze(ctx, req)
	default:
		return nil, pipeline.FatalErr(fmt.Errorf("unsupported step kind: %q", req.Kind))
	}
}

func (a *adapter) result(kind pipeline.StepKind) *pipeline.StepResult {
	return &pipeline.StepResult{
		Kind:     kind,
		Provider: a.c.name(),
		Model:    a.c.model(),
	}
}

func (a *adapter) extract(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	if req.Document == nil {
		return nil, pipeline.InputErr(fmt.Errorf("extract requires a document payload"))
	}

	raw, err := a.c.generate(ctx, promptOr(req.Prompt, extractPrompt), req.Document)
	if err != nil {
		return nil, err
	}

	result := a.result(req.Kind)
	result.FullText = raw
	if raw == "" {
		a.logger.WarnContext(ctx, "extraction response was empty")
		result.Degraded = true
	} else {
		a.logger.InfoContext(ctx, "extraction complete", "characters", len(raw))
	}

	return result, nil
}

// markdown performs two remote calls: document to markdown, then markdown to
// a prose summary. Either call producing nothing yields a degraded placeholder
// rather than a failure.
func (a *adapter) markdown(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	if req.Document == nil {
		return nil, pipeline.InputErr(fmt.Errorf("markdown generation requires a document payload"))
	}

	md, err := a.c.generate(ctx, promptOr(req.Prompt, markdownPrompt), req.Document)
	if err != nil {
		return nil, err
	}

	result := a.result(req.Kind)
	if md == "" {
		a.logger.WarnContext(ctx, "markdown response was empty")
		md = MessageMarkdownFailed
		result.Degraded = true
	}
	result.Markdown = md

	summary, err := a.c.generate(ctx, markdownSummaryPrompt(md), nil)
	if err != nil {
		return nil, err
	}
	if summary == "" {
		a.logger.WarnContext(ctx, "markdown summary response was empty")
		summary = MessageSummaryFailed
		result.Degraded = true
	}
	result.Summary = &pipeline.SummaryResult{Summary: summary, Keywords: []string{}}

	return result, nil
}

func (a *adapter) summarize(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	raw, err := a.c.generate(ctx, promptOr(req.Prompt, summarizePrompt(req.Text)), nil)
	if err != nil {
		return nil, err
	}

	result := a.result(req.Kind)
	summary, degraded := normalizeSummary(raw)
	result.Summary = summary
	result.Degraded = degraded
	if degraded {
		a.logger.WarnContext(ctx, "summarization degraded to fallback result")
	}

	return result, nil
}

func (a *adapter) validate(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	raw, err := a.c.generate(ctx, promptOr(req.Prompt, validatePrompt(req.Text)), nil)
	if err != nil {
		return nil, err
	}

	result := a.result(req.Kind)
	validation, degraded := normalizeValidation(raw)
	result.Validation = validation
	result.Degraded = degraded
	if degraded {
		a.logger.WarnContext(ctx, "validation degraded to fallback result")
	}

	return result, nil
}

func (a *adapter) analyze(ctx context.Context, req pipeline.Request) (*pipeline.StepResult, error) {
	prompt := promptOr(req.Prompt, req.Text)
	if prompt == "" {
		return nil, pipeline.InputErr(fmt.Errorf("%s requires a prompt", req.Kind))
	}

	raw, err := a.c.generate(ctx, prompt, req.Document)
	if err != nil {
		return nil, err
	}

	result := a.result(req.Kind)
	result.Content = raw
	if raw == "" {
		a.logger.WarnContext(ctx, "analysis response was empty")
		result.Degraded = true
	}

	return result, nil
}

func promptOr(prompt, fallback string) string {
	if prompt != "" {
		return prompt
	}
	return fallback
}
