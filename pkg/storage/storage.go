// Package storage provides document blob access behind a backend-neutral
// interface, with Azure Blob Storage and local filesystem implementations.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/collate-ai/collate/pkg/lifecycle"
)

// System manages blob operations and lifecycle coordination.
type System interface {
	// Start registers startup hooks with the lifecycle coordinator.
	Start(lc *lifecycle.Coordinator) error
	// Upload streams data to a blob at the given key with the specified content type.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error
	// Download returns a stream for the blob at the given key. The caller must
	// close the reader. Returns ErrNotFound if the blob does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	// Exists reports whether a blob exists at the given key.
	Exists(ctx context.Context, key string) (bool, error)
}

// New creates a storage system for the configured backend.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	switch cfg.Backend {
	case BackendAzure:
		return newAzure(cfg, logger)
	case BackendFile:
		return newFileStore(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown storage backend: %q", cfg.Backend)
	}
}

func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}
