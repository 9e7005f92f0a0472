package engine_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/engine"
	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/internal/providers"
	"github.com/collate-ai/collate/internal/runs"
)

func claimedRun(t *testing.T, store *memStore, eng *engine.Engine, cmd runs.CreateCommand) *runs.WorkflowRun {
	t.Helper()

	created, err := eng.Submit(context.Background(), cmd)
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	run, err := store.Claim(context.Background(), "test-worker")
	if err != nil {
		t.Fatalf("Claim() error = %v", err)
	}
	if run.ID != created.ID {
		t.Fatalf("claimed %s, submitted %s", run.ID, created.ID)
	}
	return run
}

func completedComposite(t *testing.T, store *memStore, id uuid.UUID) *engine.CompositeResult {
	t.Helper()

	run := store.get(t, id)
	if run.Status != runs.StatusSucceeded {
		message := "<nil>"
		if run.Error != nil {
			message = *run.Error
		}
		t.Fatalf("Status = %q (error %s), want succeeded", run.Status, message)
	}

	var composite engine.CompositeResult
	if err := json.Unmarshal(run.Result, &composite); err != nil {
		t.Fatalf("unmarshal composite: %v", err)
	}
	return &composite
}

func TestExtractPipeline(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepExtract, &pipeline.StepResult{
		FullText: "Quarterly revenue grew 12 percent.",
	})
	exec.on(providers.Gemini, pipeline.StepSummarize, &pipeline.StepResult{
		Summary: &pipeline.SummaryResult{
			Summary:  "Revenue grew.",
			Keywords: []string{"revenue"},
		},
	})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineExtract,
		Document: testDocument(t),
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.FullText != "Quarterly revenue grew 12 percent." {
		t.Errorf("FullText = %q", composite.FullText)
	}
	if composite.Summary == nil || composite.Summary.Summary != "Revenue grew." {
		t.Errorf("Summary = %+v", composite.Summary)
	}
	if composite.Degraded {
		t.Error("Degraded = true for clean run")
	}

	// Summarization threads the extracted text.
	req, ok := exec.request(providers.Gemini, pipeline.StepSummarize)
	if !ok {
		t.Fatal("no summarize request served")
	}
	if req.Text != "Quarterly revenue grew 12 percent." {
		t.Errorf("summarize Text = %q", req.Text)
	}

	stored := store.get(t, run.ID)
	if stored.Cursor != 2 || len(stored.Records) != 2 {
		t.Errorf("Cursor = %d, Records = %d, want 2/2", stored.Cursor, len(stored.Records))
	}
	if stored.Records[0].Name != "ocr" || stored.Records[1].Name != "summarize" {
		t.Errorf("stage names = %q, %q", stored.Records[0].Name, stored.Records[1].Name)
	}
}

func TestMarkdownPipelineValidateDegrades(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepMarkdown, &pipeline.StepResult{
		Markdown: "# Report\n\nBody.",
		Summary:  &pipeline.SummaryResult{Summary: "A report.", Keywords: []string{"report"}},
	})
	exec.failOn("azure", pipeline.StepValidate,
		pipeline.ConfigErr(errors.New("validator deployment missing")))

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineMarkdown,
		Document: testDocument(t),
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.Markdown != "# Report\n\nBody." {
		t.Errorf("Markdown = %q", composite.Markdown)
	}
	if !composite.Degraded {
		t.Error("Degraded = false, want true when validation falls back")
	}
	if composite.Validation == nil || composite.Validation.IsAccurate {
		t.Errorf("Validation = %+v, want degraded placeholder", composite.Validation)
	}
	// The original summary survives when no improved one arrived.
	if composite.Summary == nil || composite.Summary.Summary != "A report." {
		t.Errorf("Summary = %+v", composite.Summary)
	}
}

func TestMarkdownPipelineImprovedSummarySupersedes(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	improved := "A sharper report summary."
	exec.on(providers.Gemini, pipeline.StepMarkdown, &pipeline.StepResult{
		Markdown: "# Report",
		Summary:  &pipeline.SummaryResult{Summary: "A report.", Keywords: []string{"report", "q3"}},
	})
	exec.on("azure", pipeline.StepValidate, &pipeline.StepResult{
		Validation: &pipeline.ValidationResult{
			IsAccurate:            false,
			SuggestedImprovements: []string{"tighten the lead"},
			ImprovedSummary:       &improved,
		},
	})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineMarkdown,
		Document: testDocument(t),
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.Summary == nil || composite.Summary.Summary != improved {
		t.Errorf("Summary = %+v, want improved summary", composite.Summary)
	}
	// Keywords carry over from the original summary.
	if composite.Summary != nil && len(composite.Summary.Keywords) != 2 {
		t.Errorf("Keywords = %v", composite.Summary.Keywords)
	}
}

func TestConsensusPipeline(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepAnalyze, &pipeline.StepResult{Content: "gemini view"})
	exec.on(providers.OpenAI, pipeline.StepAnalyze, &pipeline.StepResult{Content: "openai view"})
	exec.on(providers.Anthropic, pipeline.StepAnalyze, &pipeline.StepResult{Content: "anthropic view"})
	exec.on(providers.Anthropic, pipeline.StepSynthesize, &pipeline.StepResult{Content: "the consensus"})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineConsensus,
		Document: testDocument(t),
		Prompt:   "What changed this quarter?",
		Providers: []string{
			providers.Gemini, providers.OpenAI, providers.Anthropic,
		},
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.Consensus != "the consensus" {
		t.Errorf("Consensus = %q", composite.Consensus)
	}
	if composite.Analysis != "Processed with 3 AI providers" {
		t.Errorf("Analysis = %q", composite.Analysis)
	}
	if len(composite.Results) != 3 {
		t.Errorf("Results has %d providers, want 3", len(composite.Results))
	}
	for _, provider := range run.Providers {
		if _, ok := composite.Results[provider]; !ok {
			t.Errorf("Results missing %s", provider)
		}
	}

	// Synthesis prompt labels every provider's analysis.
	req, ok := exec.request(providers.Anthropic, pipeline.StepSynthesize)
	if !ok {
		t.Fatal("no synthesize request served")
	}
	for _, want := range []string{
		"What changed this quarter?",
		"--- GEMINI ---", "gemini view",
		"--- OPENAI ---", "openai view",
		"--- ANTHROPIC ---", "anthropic view",
	} {
		if !strings.Contains(req.Prompt, want) {
			t.Errorf("synthesis prompt missing %q", want)
		}
	}
}

func TestConsensusPartialFailureDegrades(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepAnalyze, &pipeline.StepResult{Content: "gemini view"})
	exec.failOn(providers.OpenAI, pipeline.StepAnalyze,
		pipeline.ConfigErr(errors.New("missing api key")))
	exec.on(providers.Anthropic, pipeline.StepSynthesize, &pipeline.StepResult{Content: "partial consensus"})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline:  engine.PipelineConsensus,
		Document:  testDocument(t),
		Providers: []string{providers.Gemini, providers.OpenAI},
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if !composite.Degraded {
		t.Error("Degraded = false, want true with one provider down")
	}
	failed, ok := composite.Results[providers.OpenAI]
	if !ok {
		t.Fatal("failed provider missing from results")
	}
	if !failed.Degraded {
		t.Error("failed provider result not marked degraded")
	}
	if composite.Consensus != "partial consensus" {
		t.Errorf("Consensus = %q", composite.Consensus)
	}
}

func TestConsensusAllProvidersFailedFailsRun(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.failOn(providers.Gemini, pipeline.StepAnalyze,
		pipeline.ConfigErr(errors.New("missing credentials")))
	exec.failOn(providers.OpenAI, pipeline.StepAnalyze,
		pipeline.ConfigErr(errors.New("missing credentials")))

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline:  engine.PipelineConsensus,
		Document:  testDocument(t),
		Providers: []string{providers.Gemini, providers.OpenAI},
	})

	eng.Execute(context.Background(), run)

	stored := store.get(t, run.ID)
	if stored.Status != runs.StatusFailed {
		t.Fatalf("Status = %q, want failed", stored.Status)
	}
	if stored.Error == nil || !strings.Contains(*stored.Error, "all 2 providers failed") {
		t.Errorf("Error = %v", stored.Error)
	}
}

func TestChainPipeline(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepAnalyze, &pipeline.StepResult{Content: "first draft"})
	exec.on(providers.OpenAI, pipeline.StepAnalyze, &pipeline.StepResult{Content: "refined draft"})
	exec.on(providers.Anthropic, pipeline.StepSynthesize, &pipeline.StepResult{Content: "polished final"})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineChain,
		Document: testDocument(t),
		Providers: []string{
			providers.Gemini, providers.OpenAI, providers.Anthropic,
		},
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.Consensus != "polished final" {
		t.Errorf("Consensus = %q", composite.Consensus)
	}
	if composite.Analysis != "Sequential processing: Gemini → OpenAI → Anthropic" {
		t.Errorf("Analysis = %q", composite.Analysis)
	}

	stored := store.get(t, run.ID)
	names := make([]string, len(stored.Records))
	for i, rec := range stored.Records {
		names[i] = rec.Name
	}
	want := []string{"analyze", "refine-1", "polish"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("stage names = %v, want %v", names, want)
	}

	// Each link receives the previous link's output.
	refine, ok := exec.request(providers.OpenAI, pipeline.StepAnalyze)
	if !ok {
		t.Fatal("no refine request served")
	}
	if !strings.Contains(refine.Prompt, "first draft") {
		t.Errorf("refine prompt missing upstream text: %q", refine.Prompt)
	}
	polish, ok := exec.request(providers.Anthropic, pipeline.StepSynthesize)
	if !ok {
		t.Fatal("no polish request served")
	}
	if !strings.Contains(polish.Prompt, "refined draft") {
		t.Errorf("polish prompt missing upstream text: %q", polish.Prompt)
	}
}

func TestSpecialistPipelineRolePrompts(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepAnalyze, &pipeline.StepResult{Content: "visual take"})
	exec.on(providers.OpenAI, pipeline.StepAnalyze, &pipeline.StepResult{Content: "technical take"})
	exec.on(providers.Anthropic, pipeline.StepAnalyze, &pipeline.StepResult{Content: "analytical take"})
	exec.on(providers.Anthropic, pipeline.StepSynthesize, &pipeline.StepResult{Content: "specialist consensus"})

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineSpecialist,
		Document: testDocument(t),
		Providers: []string{
			providers.Gemini, providers.OpenAI, providers.Anthropic,
		},
	})

	eng.Execute(context.Background(), run)

	composite := completedComposite(t, store, run.ID)
	if composite.Consensus != "specialist consensus" {
		t.Errorf("Consensus = %q", composite.Consensus)
	}
	if composite.Analysis != "Specialist analysis with 3 AI providers" {
		t.Errorf("Analysis = %q", composite.Analysis)
	}

	// Each provider analyzes from its assigned perspective.
	gemini, _ := exec.request(providers.Gemini, pipeline.StepAnalyze)
	if !strings.Contains(gemini.Prompt, "visual and creative analyst") {
		t.Errorf("gemini prompt missing role: %q", gemini.Prompt)
	}
	openai, _ := exec.request(providers.OpenAI, pipeline.StepAnalyze)
	if !strings.Contains(openai.Prompt, "technical analyst") {
		t.Errorf("openai prompt missing role: %q", openai.Prompt)
	}
}

func TestReplaySkipsCompletedStages(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.on(providers.Gemini, pipeline.StepSummarize, &pipeline.StepResult{
		Summary: &pipeline.SummaryResult{Summary: "Recovered summary.", Keywords: []string{}},
	})

	eng := testEngine(t, store, exec)

	// A run that crashed after the ocr stage persisted.
	id := uuid.New()
	store.put(&runs.WorkflowRun{
		ID:       id,
		Pipeline: engine.PipelineExtract,
		Document: testDocument(t),
		Status:   runs.StatusRunning,
		Cursor:   1,
		Records: []runs.StageRecord{{
			Name: "ocr",
			Results: map[string]pipeline.StepResult{
				providers.Gemini: {
					Kind:     pipeline.StepExtract,
					Provider: providers.Gemini,
					FullText: "recorded text",
				},
			},
		}},
	})
	run, err := store.Find(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}

	eng.Execute(context.Background(), run)

	if served := exec.served(providers.Gemini, pipeline.StepExtract); served != 0 {
		t.Errorf("extract served %d times, want 0 on replay", served)
	}
	req, ok := exec.request(providers.Gemini, pipeline.StepSummarize)
	if !ok {
		t.Fatal("no summarize request served")
	}
	if req.Text != "recorded text" {
		t.Errorf("summarize Text = %q, want replayed ocr output", req.Text)
	}

	composite := completedComposite(t, store, id)
	if composite.FullText != "recorded text" {
		t.Errorf("FullText = %q, want replayed text", composite.FullText)
	}
}

func TestExecuteClassifiesFailure(t *testing.T) {
	store := newMemStore()
	exec := newScriptedExec()
	exec.failOn(providers.Gemini, pipeline.StepExtract,
		pipeline.InputErr(errors.New("unreadable scan")))

	eng := testEngine(t, store, exec)
	run := claimedRun(t, store, eng, runs.CreateCommand{
		Pipeline: engine.PipelineExtract,
		Document: testDocument(t),
	})

	eng.Execute(context.Background(), run)

	stored := store.get(t, run.ID)
	if stored.Status != runs.StatusFailed {
		t.Fatalf("Status = %q, want failed", stored.Status)
	}
	if stored.Error == nil || !strings.HasPrefix(*stored.Error, "input:") {
		t.Errorf("Error = %v, want input-classified message", stored.Error)
	}
}

func TestValidPipeline(t *testing.T) {
	for _, name := range engine.Pipelines() {
		if !engine.ValidPipeline(name) {
			t.Errorf("ValidPipeline(%q) = false", name)
		}
	}
	if engine.ValidPipeline("nonsense") {
		t.Error("ValidPipeline(nonsense) = true")
	}
}
