// Package documents normalizes document references into mime-typed byte
// payloads for provider adapters. References resolve against the local
// filesystem or blob storage; PDF inputs additionally carry a page count.
package documents

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/collate-ai/collate/internal/pipeline"
	"github.com/collate-ai/collate/pkg/storage"
)

// Sentinel errors for document loading.
var (
	ErrEmptyReference = errors.New("document reference is empty")
	ErrNotFound       = errors.New("document not found")
	ErrTooLarge       = errors.New("document exceeds size limit")
)

const fallbackMIME = "image/jpeg"

// Reference identifies a document by local path or storage key.
// Exactly one field should be set; Path wins when both are.
type Reference struct {
	Path string `json:"path,omitempty"`
	Key  string `json:"key,omitempty"`
}

func (r Reference) String() string {
	if r.Path != "" {
		return r.Path
	}
	return r.Key
}

// Loader resolves document references into normalized payloads.
type Loader struct {
	store   storage.System
	maxSize int64
	logger  *slog.Logger
}

// NewLoader creates a Loader. store may be nil when only local paths are
// used; maxSize of 0 disables the size limit.
func NewLoader(store storage.System, maxSize int64, logger *slog.Logger) *Loader {
	return &Loader{
		store:   store,
		maxSize: maxSize,
		logger:  logger.With("system", "documents"),
	}
}

// Load reads the referenced document and returns its normalized payload.
// Missing files and unset references are input errors, never retried.
func (l *Loader) Load(ctx context.Context, ref Reference) (*pipeline.Payload, error) {
	data, name, err := l.read(ctx, ref)
	if err != nil {
		return nil, err
	}

	if l.maxSize > 0 && int64(len(data)) > l.maxSize {
		return nil, pipeline.InputErr(
			fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, len(data)),
		)
	}

	payload := &pipeline.Payload{
		Bytes: data,
		MIME:  detectMIME(name),
	}

	if payload.MIME == "application/pdf" {
		pages, err := pageCount(data)
		if err != nil {
			return nil, pipeline.InputErr(fmt.Errorf("read pdf %s: %w", name, err))
		}
		payload.Pages = pages
	}

	l.logger.InfoContext(
		ctx, "document loaded",
		"reference", name,
		"mime", payload.MIME,
		"bytes", len(data),
	)

	return payload, nil
}

func (l *Loader) read(ctx context.Context, ref Reference) ([]byte, string, error) {
	switch {
	case ref.Path != "":
		data, err := os.ReadFile(ref.Path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, "", pipeline.InputErr(fmt.Errorf("%w: %s", ErrNotFound, ref.Path))
			}
			return nil, "", pipeline.InputErr(fmt.Errorf("read document %s: %w", ref.Path, err))
		}
		return data, ref.Path, nil

	case ref.Key != "":
		if l.store == nil {
			return nil, "", pipeline.ConfigErr(
				fmt.Errorf("storage key %s given but no storage configured", ref.Key),
			)
		}

		blob, err := l.store.Download(ctx, ref.Key)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, "", pipeline.InputErr(fmt.Errorf("%w: %s", ErrNotFound, ref.Key))
			}
			return nil, "", fmt.Errorf("download document %s: %w", ref.Key, err)
		}
		defer blob.Close()

		data, err := io.ReadAll(blob)
		if err != nil {
			return nil, "", fmt.Errorf("read document %s: %w", ref.Key, err)
		}
		return data, ref.Key, nil

	default:
		return nil, "", pipeline.InputErr(ErrEmptyReference)
	}
}

// detectMIME resolves the content type from the file extension, defaulting
// to image/jpeg when the extension is unknown.
func detectMIME(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return fallbackMIME
	}

	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return fallbackMIME
	}

	// TypeByExtension may append charset parameters for text types.
	if base, _, err := mime.ParseMediaType(mimeType); err == nil {
		return base
	}
	return mimeType
}

func pageCount(data []byte) (int, error) {
	cfg := model.NewDefaultConfiguration()
	cfg.ValidationMode = model.ValidationRelaxed
	return api.PageCount(bytes.NewReader(data), cfg)
}
