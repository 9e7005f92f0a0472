package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/collate-ai/collate/pkg/lifecycle"
)

type fileStore struct {
	root   string
	logger *slog.Logger
}

// newFileStore creates a filesystem-backed storage system rooted at cfg.Root.
// The root directory is created on Start if it does not exist.
func newFileStore(cfg *Config, logger *slog.Logger) (System, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}

	return &fileStore{
		root:   root,
		logger: logger.With("system", "storage"),
	}, nil
}

func (f *fileStore) Start(lc *lifecycle.Coordinator) error {
	f.logger.Info("starting storage system", "backend", BackendFile, "root", f.root)

	lc.OnStartup(func() {
		if err := os.MkdirAll(f.root, 0750); err != nil {
			f.logger.Error("storage root initialization failed", "error", err)
			return
		}

		f.logger.Info("storage root ready", "root", f.root)
	})

	return nil
}

func (f *fileStore) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	path := filepath.Join(f.root, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("create blob directory %s: %w", key, err)
	}

	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create blob %s: %w", key, err)
	}

	if _, err := io.Copy(out, reader); err != nil {
		out.Close()
		return fmt.Errorf("write blob %s: %w", key, err)
	}

	return out.Close()
}

func (f *fileStore) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(filepath.Join(f.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob %s: %w", key, err)
	}

	return file, nil
}

func (f *fileStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	_, err := os.Stat(filepath.Join(f.root, filepath.FromSlash(key)))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("check blob existence %s: %w", key, err)
	}

	return true, nil
}
