// Package storage abstracts where uploaded documents live. Both backends
// expose the same capability surface; which one runs is decided once, at
// composition time.
package storage

import (
	"context"

	"github.com/tenderhub/extraction-pipeline/internal/config"
)

type Storage interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	Exists(ctx context.Context, path string) (bool, error)
	Size(ctx context.Context, path string) (int64, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, path string) error
}

// NewFromConfig selects the storage backend.
func NewFromConfig(cfg *config.Config) (Storage, error) {
	switch cfg.Storage.Type {
	case "s3":
		return NewMinioStorage(cfg)
	default:
		return NewLocalStorage(cfg.Storage.LocalRoot), nil
	}
}
