package config

import (
	"fmt"
	"os"

	"github.com/collate-ai/collate/pkg/formatting"
)

var documentsEnv = &DocumentsEnv{
	MaxSize: "COLLATE_DOCUMENTS_MAX_SIZE",
}

// DocumentsConfig controls document loading limits.
type DocumentsConfig struct {
	MaxSize string `toml:"max_size"`
}

// DocumentsEnv maps config fields to environment variable names.
type DocumentsEnv struct {
	MaxSize string
}

// MaxSizeBytes returns MaxSize parsed into a byte count.
func (c *DocumentsConfig) MaxSizeBytes() int64 {
	n, _ := formatting.ParseBytes(c.MaxSize)
	return n
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *DocumentsConfig) Finalize(env *DocumentsEnv) error {
	if c.MaxSize == "" {
		c.MaxSize = "50MB"
	}
	if env != nil && env.MaxSize != "" {
		if v := os.Getenv(env.MaxSize); v != "" {
			c.MaxSize = v
		}
	}

	if _, err := formatting.ParseBytes(c.MaxSize); err != nil {
		return fmt.Errorf("invalid max_size: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay.
func (c *DocumentsConfig) Merge(overlay *DocumentsConfig) {
	if overlay.MaxSize != "" {
		c.MaxSize = overlay.MaxSize
	}
}
