package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/collate-ai/collate/internal/config"
	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/engine"
	"github.com/collate-ai/collate/internal/infrastructure"
	"github.com/collate-ai/collate/internal/runs"
	"github.com/collate-ai/collate/pkg/pagination"
)

func main() {
	var (
		file         = flag.String("file", "", "Local document path")
		key          = flag.String("key", "", "Blob storage key")
		pipelineName = flag.String("pipeline", engine.PipelineExtract, "Pipeline to run")
		providerList = flag.String("providers", "", "Comma-separated provider subset")
		prompt       = flag.String("prompt", "", "Analysis prompt for multi-provider pipelines")
		wait         = flag.Bool("wait", false, "Block until the run completes and print the result")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Maximum time to wait")
		list         = flag.Bool("list", false, "List recent runs")
		status       = flag.String("status", "", "Filter listed runs by status")
		show         = flag.String("show", "", "Print a run by ID")
	)
	flag.Parse()

	pipelineSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "pipeline" {
			pipelineSet = true
		}
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed:", err)
	}

	infra, err := infrastructure.New(cfg)
	if err != nil {
		log.Fatal("infrastructure init failed:", err)
	}
	if err := infra.Start(); err != nil {
		log.Fatal("infrastructure start failed:", err)
	}
	infra.Lifecycle.WaitForStartup()
	defer infra.Lifecycle.Shutdown(cfg.ShutdownTimeoutDuration())

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store := runs.New(infra.Database.Connection(), infra.Logger, cfg.Pagination)

	switch {
	case *list:
		pipelineFilter := ""
		if pipelineSet {
			pipelineFilter = *pipelineName
		}
		listRuns(ctx, store, *status, pipelineFilter)
	case *show != "":
		showRun(ctx, store, *show)
	default:
		submitRun(ctx, store, submission{
			file:      *file,
			key:       *key,
			pipeline:  *pipelineName,
			providers: *providerList,
			prompt:    *prompt,
			wait:      *wait,
		})
	}
}

type submission struct {
	file      string
	key       string
	pipeline  string
	providers string
	prompt    string
	wait      bool
}

func submitRun(ctx context.Context, store runs.System, sub submission) {
	if sub.file == "" && sub.key == "" {
		log.Fatal("either -file or -key is required")
	}
	if !engine.ValidPipeline(sub.pipeline) {
		log.Fatalf("unknown pipeline %q (supported: %s)",
			sub.pipeline, strings.Join(engine.Pipelines(), ", "))
	}

	var providerNames []string
	if sub.providers != "" {
		for _, p := range strings.Split(sub.providers, ",") {
			providerNames = append(providerNames, strings.TrimSpace(p))
		}
	}

	run, err := store.Create(ctx, runs.CreateCommand{
		Pipeline:  sub.pipeline,
		Document:  documents.Reference{Path: sub.file, Key: sub.key},
		Prompt:    sub.prompt,
		Providers: providerNames,
	})
	if err != nil {
		log.Fatal("submit failed:", err)
	}

	fmt.Printf("submitted run %s (pipeline %s)\n", run.ID, run.Pipeline)

	if !sub.wait {
		return
	}

	final, err := await(ctx, store, run.ID)
	if err != nil {
		log.Fatal(err)
	}
	printRun(final)
}

func await(ctx context.Context, store runs.System, id uuid.UUID) (*runs.WorkflowRun, error) {
	for {
		run, err := store.Find(ctx, id)
		if err != nil {
			return nil, err
		}
		if run.Terminal() {
			return run, nil
		}

		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return nil, fmt.Errorf("wait cancelled: %w", ctx.Err())
		}
	}
}

func listRuns(ctx context.Context, store runs.System, status, pipelineName string) {
	var filters runs.Filters
	if status != "" {
		filters.Status = &status
	}
	if pipelineName != "" {
		filters.Pipeline = &pipelineName
	}

	page, err := store.List(ctx, pagination.PageRequest{}, filters)
	if err != nil {
		log.Fatal("list failed:", err)
	}

	fmt.Printf("%-36s  %-10s  %-9s  %-7s  %s\n", "ID", "PIPELINE", "STATUS", "STAGES", "CREATED")
	for _, run := range page.Data {
		fmt.Printf("%-36s  %-10s  %-9s  %-7d  %s\n",
			run.ID, run.Pipeline, run.Status, run.Cursor,
			run.CreatedAt.Format(time.RFC3339))
	}
	fmt.Printf("\n%d of %d runs\n", len(page.Data), page.Total)
}

func showRun(ctx context.Context, store runs.System, raw string) {
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Fatalf("invalid run id %q: %v", raw, err)
	}

	run, err := store.Find(ctx, id)
	if err != nil {
		log.Fatal("find failed:", err)
	}
	printRun(run)
}

func printRun(run *runs.WorkflowRun) {
	out, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		log.Fatal("encode run:", err)
	}
	os.Stdout.Write(append(out, '\n'))
}
