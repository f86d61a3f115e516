// Package storage provides the durable key-value stores that hold the
// license catalog, the activation record and the cached status string.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"sellerlicense/internal/config"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is a string-keyed byte store. Each Set replaces the whole value.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Open builds the backend selected by cfg. With cfg.Fallback set the
// backend is wrapped so that failures degrade to an in-memory copy.
func Open(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		store Store
		err   error
	)
	switch cfg.Backend {
	case config.BackendMemory, "":
		store = NewMemoryStore()
	case config.BackendFile:
		store, err = NewFileStore(cfg.Dir)
	case config.BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, "license.db")
		}
		store, err = OpenSQLite(ctx, path)
	case config.BackendRedis:
		store, err = OpenRedis(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported storage backend: %s", cfg.Backend)
	}
	if err != nil {
		if !cfg.Fallback {
			return nil, err
		}
		fallback := NewFallbackStore(NewMemoryStore(), logger)
		fallback.degrade("open", cfg.Backend, err)
		return fallback, nil
	}

	logger.Info("storage opened", slog.String("backend", cfg.Backend))
	if cfg.Fallback {
		return NewFallbackStore(store, logger), nil
	}
	return store, nil
}
