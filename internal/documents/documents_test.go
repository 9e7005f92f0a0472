package documents_test

import (
	"context"
	"errors"
	"log/slog"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/collate-ai/collate/internal/documents"
	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/pkg/lifecycle"
	"github.com/collate-ai/collate/pkg/storage"
)

func readerOf(s string) io.Reader {
	return strings.NewReader(s)
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}

func TestLoadLocalFile(t *testing.T) {
	loader := documents.NewLoader(nil, 0, slog.Default())
	path := writeTemp(t, "notes.txt", "hello world")

	payload, err := loader.Load(context.Background(), documents.Reference{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(payload.Bytes) != "hello world" {
		t.Errorf("Bytes = %q", payload.Bytes)
	}
	if payload.MIME != "text/plain" {
		t.Errorf("MIME = %q, want text/plain", payload.MIME)
	}
	if payload.Pages != 0 {
		t.Errorf("Pages = %d, want 0 for non-PDF", payload.Pages)
	}
}

func TestLoadUnknownExtensionFallsBackToJPEG(t *testing.T) {
	loader := documents.NewLoader(nil, 0, slog.Default())
	path := writeTemp(t, "scan.unknownext", "binarydata")

	payload, err := loader.Load(context.Background(), documents.Reference{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if payload.MIME != "image/jpeg" {
		t.Errorf("MIME = %q, want image/jpeg", payload.MIME)
	}
}

func TestLoadMissingFileIsInputError(t *testing.T) {
	loader := documents.NewLoader(nil, 0, slog.Default())

	_, err := loader.Load(context.Background(), documents.Reference{Path: "/nonexistent/doc.pdf"})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if pipeline.Classify(err) != pipeline.KindInput {
		t.Errorf("Classify = %s, want %s", pipeline.Classify(err), pipeline.KindInput)
	}
	if !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound in chain", err)
	}
}

func TestLoadEmptyReference(t *testing.T) {
	loader := documents.NewLoader(nil, 0, slog.Default())

	_, err := loader.Load(context.Background(), documents.Reference{})
	if !errors.Is(err, documents.ErrEmptyReference) {
		t.Errorf("error = %v, want ErrEmptyReference", err)
	}
	if pipeline.Classify(err) != pipeline.KindInput {
		t.Errorf("Classify = %s, want %s", pipeline.Classify(err), pipeline.KindInput)
	}
}

func TestLoadSizeLimit(t *testing.T) {
	loader := documents.NewLoader(nil, 4, slog.Default())
	path := writeTemp(t, "big.txt", "more than four bytes")

	_, err := loader.Load(context.Background(), documents.Reference{Path: path})
	if !errors.Is(err, documents.ErrTooLarge) {
		t.Errorf("error = %v, want ErrTooLarge", err)
	}
	if pipeline.Classify(err) != pipeline.KindInput {
		t.Errorf("Classify = %s, want %s", pipeline.Classify(err), pipeline.KindInput)
	}
}

func TestLoadKeyWithoutStorage(t *testing.T) {
	loader := documents.NewLoader(nil, 0, slog.Default())

	_, err := loader.Load(context.Background(), documents.Reference{Key: "docs/a.pdf"})
	if err == nil {
		t.Fatal("expected error")
	}
	if pipeline.Classify(err) != pipeline.KindConfig {
		t.Errorf("Classify = %s, want %s", pipeline.Classify(err), pipeline.KindConfig)
	}
}

func TestLoadFromStorage(t *testing.T) {
	cfg := storage.Config{Backend: storage.BackendFile, Root: t.TempDir()}
	store, err := storage.New(&cfg, slog.Default())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	lc := lifecycle.New()
	if err := store.Start(lc); err != nil {
		t.Fatalf("storage.Start() error = %v", err)
	}
	lc.WaitForStartup()

	ctx := context.Background()
	if err := store.Upload(ctx, "inbox/report.txt", readerOf("stored content"), "text/plain"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	loader := documents.NewLoader(store, 0, slog.Default())
	payload, err := loader.Load(ctx, documents.Reference{Key: "inbox/report.txt"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if string(payload.Bytes) != "stored content" {
		t.Errorf("Bytes = %q", payload.Bytes)
	}

	_, err = loader.Load(ctx, documents.Reference{Key: "inbox/missing.txt"})
	if !errors.Is(err, documents.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestReferenceString(t *testing.T) {
	tests := []struct {
		name string
		ref  documents.Reference
		want string
	}{
		{"path wins", documents.Reference{Path: "/tmp/a.pdf", Key: "b.pdf"}, "/tmp/a.pdf"},
		{"key only", documents.Reference{Key: "b.pdf"}, "b.pdf"},
		{"empty", documents.Reference{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ref.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
