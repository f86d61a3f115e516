package storage

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// FallbackStore forwards to a primary store and mirrors every value it
// sees into memory. After the first primary failure it stops using the
// primary and serves the memory copy for the rest of the process.
type FallbackStore struct {
	primary Store
	memory  *MemoryStore
	logger  *slog.Logger

	mu       sync.RWMutex
	degraded bool
}

// NewFallbackStore wraps primary.
func NewFallbackStore(primary Store, logger *slog.Logger) *FallbackStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FallbackStore{
		primary: primary,
		memory:  NewMemoryStore(),
		logger:  logger,
	}
}

// Degraded reports whether the primary store has been abandoned.
func (s *FallbackStore) Degraded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.degraded
}

// IsDegraded reports whether store is a FallbackStore running from memory.
func IsDegraded(store Store) bool {
	fallback, ok := store.(*FallbackStore)
	return ok && fallback.Degraded()
}

func (s *FallbackStore) degrade(op, key string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return
	}
	s.degraded = true
	s.logger.Warn("storage failed, continuing with in-memory copy; changes will not survive restart",
		slog.String("operation", op),
		slog.String("key", key),
		slog.String("error", err.Error()))
}

func (s *FallbackStore) Get(ctx context.Context, key string) ([]byte, error) {
	if !s.Degraded() {
		value, err := s.primary.Get(ctx, key)
		switch {
		case err == nil:
			_ = s.memory.Set(ctx, key, value)
			return value, nil
		case errors.Is(err, ErrNotFound):
			_ = s.memory.Delete(ctx, key)
			return nil, err
		case ctx.Err() != nil:
			return nil, err
		default:
			s.degrade("get", key, err)
		}
	}
	return s.memory.Get(ctx, key)
}

func (s *FallbackStore) Set(ctx context.Context, key string, value []byte) error {
	if !s.Degraded() {
		if err := s.primary.Set(ctx, key, value); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.degrade("set", key, err)
		}
	}
	return s.memory.Set(ctx, key, value)
}

func (s *FallbackStore) Delete(ctx context.Context, key string) error {
	if !s.Degraded() {
		if err := s.primary.Delete(ctx, key); err != nil {
			if ctx.Err() != nil {
				return err
			}
			s.degrade("delete", key, err)
		}
	}
	return s.memory.Delete(ctx, key)
}

// Close closes the primary store.
func (s *FallbackStore) Close() error {
	return s.primary.Close()
}

// Unwrap returns the primary store.
func (s *FallbackStore) Unwrap() Store { return s.primary }
