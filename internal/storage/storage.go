// Package storage persists generated artifacts such as tracing reports.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/silq-qms/qmsgo/internal/config"
	"github.com/sirupsen/logrus"
)

// ErrNotFound is returned when an object key does not exist
var ErrNotFound = errors.New("storage: object not found")

// Storage is a flat key/value object store
type Storage interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes an object; a missing key is not an error
	Delete(ctx context.Context, key string) error
	Close() error
}

// New builds the backend selected by cfg.Provider
func New(ctx context.Context, cfg config.StorageConfig, log logrus.FieldLogger) (Storage, error) {
	switch cfg.Provider {
	case "", "local":
		return NewLocal(cfg.LocalDir)
	case "gcs":
		return NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentials, log)
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// cleanKey rejects keys that could escape the store root
func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", errors.New("storage: empty key")
	}
	for _, part := range strings.Split(k, "/") {
		if part == ".." || part == "." {
			return "", fmt.Errorf("storage: invalid key %q", key)
		}
	}
	return k, nil
}
