package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
	"github.com/collate-ai/collate/internal/runs"
)

// runContext walks one run through its pipeline's stages. Stages already
// present in the run's record log are replayed without re-execution; fresh
// stages persist their record before the walk advances.
type runContext struct {
	e   *Engine
	run *runs.WorkflowRun
	pos int
}

func (rc *runContext) stage(
	ctx context.Context,
	name string,
	fn func(context.Context) (map[string]pipeline.StepResult, error),
) (map[string]pipeline.StepResult, error) {
	if rec := rc.run.Record(rc.pos); rec != nil {
		if rec.Name != name {
			return nil, fmt.Errorf("recorded stage %q at position %d, expected %q", rec.Name, rc.pos, name)
		}
		rc.pos++
		rc.e.logger.InfoContext(ctx, "stage replayed",
			"run", rc.run.ID,
			"stage", name,
		)
		return rec.Results, nil
	}

	results, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	updated, err := rc.e.store.RecordStage(ctx, rc.run.ID, runs.StageRecord{
		Name:    name,
		Results: results,
	})
	if err != nil {
		return nil, fmt.Errorf("persist stage %s: %w", name, err)
	}

	rc.run = updated
	rc.pos++
	return results, nil
}

// single runs one provider-bound step as a stage. Optional steps that fail
// after retries record a degraded placeholder instead of failing the run.
func (rc *runContext) single(
	ctx context.Context,
	name string,
	step pipeline.Step,
	req pipeline.Request,
) (*pipeline.StepResult, error) {
	results, err := rc.stage(ctx, name, func(ctx context.Context) (map[string]pipeline.StepResult, error) {
		result, err := step.Run(ctx, rc.e.exec, req)
		if err != nil {
			if !step.Optional {
				return nil, err
			}
			rc.e.logger.WarnContext(ctx, "optional stage degraded",
				"run", rc.run.ID,
				"stage", name,
				"error", err,
			)
			result = degradedResult(step)
		}
		return map[string]pipeline.StepResult{step.Provider: *result}, nil
	})
	if err != nil {
		return nil, err
	}

	result, ok := results[step.Provider]
	if !ok {
		return nil, fmt.Errorf("stage %s record missing provider %s", name, step.Provider)
	}
	return &result, nil
}

// fanOut runs one step per provider concurrently and joins before returning.
// Individual provider failures degrade to placeholders; only a fan-out in
// which every provider failed fails the stage.
func (rc *runContext) fanOut(
	ctx context.Context,
	name string,
	steps []pipeline.Step,
	requests map[string]pipeline.Request,
) (map[string]pipeline.StepResult, error) {
	return rc.stage(ctx, name, func(ctx context.Context) (map[string]pipeline.StepResult, error) {
		var mu sync.Mutex
		results := make(map[string]pipeline.StepResult, len(steps))
		errs := make(map[string]error, len(steps))

		g, gctx := errgroup.WithContext(ctx)
		for _, step := range steps {
			g.Go(func() error {
				result, err := step.Run(gctx, rc.e.exec, requests[step.Provider])

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs[step.Provider] = err
					results[step.Provider] = *degradedResult(step)
					return nil
				}
				results[step.Provider] = *result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		if len(errs) == len(steps) {
			var first error
			for _, err := range errs {
				first = err
				break
			}
			return nil, fmt.Errorf("all %d providers failed: %w", len(steps), first)
		}

		for provider, err := range errs {
			rc.e.logger.WarnContext(ctx, "provider degraded in fan-out",
				"run", rc.run.ID,
				"stage", name,
				"provider", provider,
				"error", err,
			)
		}
		return results, nil
	})
}

// degradedResult is the placeholder recorded for a step that failed but must
// not fail the run.
func degradedResult(step pipeline.Step) *pipeline.StepResult {
	result := &pipeline.StepResult{
		Kind:     step.Kind,
		Provider: step.Provider,
		Degraded: true,
	}
	if step.Kind == pipeline.StepValidate {
		result.Validation = &pipeline.ValidationResult{
			IsAccurate:            false,
			SuggestedImprovements: []string{providers.MessageValidateFailed},
		}
	}
	return result
}

func (rc *runContext) providerSet() []string {
	if len(rc.run.Providers) > 0 {
		return rc.run.Providers
	}
	return defaultProviders
}

func (e *Engine) runExtract(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	provider := e.cfg.ExtractProvider
	if len(rc.run.Providers) > 0 {
		provider = rc.run.Providers[0]
	}

	payload, err := e.loader.Load(ctx, rc.run.Document)
	if err != nil {
		return nil, err
	}

	ocr, err := rc.single(ctx, "ocr", extractStep(provider), pipeline.Request{
		Document: payload,
	})
	if err != nil {
		return nil, err
	}

	summary, err := rc.single(ctx, "summarize", summarizeStep(provider), pipeline.Request{
		Text: ocr.Text(),
	})
	if err != nil {
		return nil, err
	}

	composite := newComposite(rc.run.ID, PipelineExtract, []string{provider})
	composite.FullText = ocr.FullText
	composite.Summary = summary.Summary
	composite.Degraded = ocr.Degraded || summary.Degraded
	composite.absorb(provider, *summary)
	return composite, nil
}

func (e *Engine) runMarkdown(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	mdProvider := e.cfg.MarkdownProvider
	if len(rc.run.Providers) > 0 {
		mdProvider = rc.run.Providers[0]
	}
	valProvider := e.cfg.ValidateProvider

	payload, err := e.loader.Load(ctx, rc.run.Document)
	if err != nil {
		return nil, err
	}

	md, err := rc.single(ctx, "markdown", markdownStep(mdProvider), pipeline.Request{
		Document: payload,
	})
	if err != nil {
		return nil, err
	}

	summaryText := ""
	if md.Summary != nil {
		summaryText = md.Summary.Summary
	}

	validation, err := rc.single(ctx, "validate", validateStep(valProvider), pipeline.Request{
		Text: summaryText,
	})
	if err != nil {
		return nil, err
	}

	composite := newComposite(rc.run.ID, PipelineMarkdown, []string{mdProvider, valProvider})
	composite.Markdown = md.Markdown
	composite.Summary = md.Summary
	composite.Validation = validation.Validation
	composite.Degraded = md.Degraded || validation.Degraded
	composite.absorb(mdProvider, *md)
	composite.absorb(valProvider, *validation)

	// An improved summary from the validator supersedes the original.
	if v := validation.Validation; v != nil && v.ImprovedSummary != nil && *v.ImprovedSummary != "" {
		keywords := []string{}
		if md.Summary != nil {
			keywords = md.Summary.Keywords
		}
		composite.Summary = &pipeline.SummaryResult{
			Summary:  *v.ImprovedSummary,
			Keywords: keywords,
		}
	}

	return composite, nil
}

func (e *Engine) runConsensus(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	providerNames := rc.providerSet()

	payload, err := e.loader.Load(ctx, rc.run.Document)
	if err != nil {
		return nil, err
	}

	steps := make([]pipeline.Step, len(providerNames))
	requests := make(map[string]pipeline.Request, len(providerNames))
	for i, provider := range providerNames {
		steps[i] = analyzeStep(provider)
		requests[provider] = pipeline.Request{
			Document: payload,
			Prompt:   promptOrDefault(rc.run.Prompt),
		}
	}

	fanned, err := rc.fanOut(ctx, "analyze", steps, requests)
	if err != nil {
		return nil, err
	}

	synthesis, err := rc.single(ctx, "synthesize",
		synthesizeStep(e.cfg.SynthesisProvider),
		pipeline.Request{Prompt: synthesisPrompt(rc.run.Prompt, providerNames, fanned)},
	)
	if err != nil {
		return nil, err
	}

	composite := newComposite(rc.run.ID, PipelineConsensus, providerNames)
	for provider, result := range fanned {
		composite.absorb(provider, result)
	}
	composite.Consensus = synthesis.Content
	composite.Analysis = consensusAnalysis(providerNames)
	composite.Degraded = composite.Degraded || synthesis.Degraded
	return composite, nil
}

func (e *Engine) runChain(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	providerNames := rc.providerSet()

	payload, err := e.loader.Load(ctx, rc.run.Document)
	if err != nil {
		return nil, err
	}

	composite := newComposite(rc.run.ID, PipelineChain, providerNames)

	current, err := rc.single(ctx, "analyze", analyzeStep(providerNames[0]), pipeline.Request{
		Document: payload,
		Prompt:   promptOrDefault(rc.run.Prompt),
	})
	if err != nil {
		return nil, err
	}
	composite.absorb(providerNames[0], *current)

	for i, provider := range providerNames[1:] {
		last := i == len(providerNames)-2

		name := fmt.Sprintf("refine-%d", i+1)
		step := analyzeStep(provider)
		prompt := refinePrompt(current.Text())
		if last {
			name = "polish"
			step = synthesizeStep(provider)
			prompt = polishPrompt(current.Text())
		}

		current, err = rc.single(ctx, name, step, pipeline.Request{Prompt: prompt})
		if err != nil {
			return nil, err
		}
		composite.absorb(provider, *current)
	}

	composite.Consensus = current.Text()
	composite.Analysis = chainAnalysis(providerNames)
	return composite, nil
}

func (e *Engine) runSpecialist(ctx context.Context, rc *runContext) (*CompositeResult, error) {
	providerNames := rc.providerSet()

	payload, err := e.loader.Load(ctx, rc.run.Document)
	if err != nil {
		return nil, err
	}

	steps := make([]pipeline.Step, len(providerNames))
	requests := make(map[string]pipeline.Request, len(providerNames))
	for i, provider := range providerNames {
		steps[i] = analyzeStep(provider)
		requests[provider] = pipeline.Request{
			Document: payload,
			Prompt:   specialistPromptFor(provider, rc.run.Prompt),
		}
	}

	fanned, err := rc.fanOut(ctx, "analyze", steps, requests)
	if err != nil {
		return nil, err
	}

	synthesis, err := rc.single(ctx, "synthesize",
		synthesizeStep(e.cfg.SynthesisProvider),
		pipeline.Request{Prompt: synthesisPrompt(rc.run.Prompt, providerNames, fanned)},
	)
	if err != nil {
		return nil, err
	}

	composite := newComposite(rc.run.ID, PipelineSpecialist, providerNames)
	for provider, result := range fanned {
		composite.absorb(provider, result)
	}
	composite.Consensus = synthesis.Content
	composite.Analysis = specialistAnalysis(providerNames)
	composite.Degraded = composite.Degraded || synthesis.Degraded
	return composite, nil
}
