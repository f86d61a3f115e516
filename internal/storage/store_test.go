package storage

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellerlicense/internal/config"
)

// runStoreContract exercises the behaviour every backend must share.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	_, err := store.Get(ctx, "seller-tools-license-catalog")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "seller-tools-license-catalog", []byte(`[{"code":"A"}]`)))
	value, err := store.Get(ctx, "seller-tools-license-catalog")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"code":"A"}]`, string(value))

	require.NoError(t, store.Set(ctx, "seller-tools-license-catalog", []byte(`[]`)))
	value, err = store.Get(ctx, "seller-tools-license-catalog")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(value))

	require.NoError(t, store.Set(ctx, "seller-tools-license-status", []byte("active")))
	require.NoError(t, store.Delete(ctx, "seller-tools-license-catalog"))
	_, err = store.Get(ctx, "seller-tools-license-catalog")
	assert.ErrorIs(t, err, ErrNotFound)

	value, err = store.Get(ctx, "seller-tools-license-status")
	require.NoError(t, err)
	assert.Equal(t, "active", string(value))

	// deleting a missing key is not an error
	assert.NoError(t, store.Delete(ctx, "missing"))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	runStoreContract(t, store)
	assert.NoError(t, store.Close())
}

func TestMemoryStore_CopiesValues(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	input := []byte("abc")
	require.NoError(t, store.Set(ctx, "k", input))
	input[0] = 'x'

	value, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(value))
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemoryStore().Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	runStoreContract(t, store)
}

func TestFileStore_KeyEscaping(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Set(ctx, "a/b c", []byte("v")))
	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	key, ok := KeyForFile(entries[0].Name())
	require.True(t, ok)
	assert.Equal(t, "a/b c", key)

	_, ok = KeyForFile(".tmp-123")
	assert.False(t, ok)
	_, ok = KeyForFile("notes.txt")
	assert.False(t, ok)
}

func TestNewFileStore_RequiresDir(t *testing.T) {
	_, err := NewFileStore("  ")
	assert.Error(t, err)
}

func TestSQLiteStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "license.db")

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	runStoreContract(t, store)
	require.NoError(t, store.Set(ctx, "persisted", []byte("yes")))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, "yes", string(value))
}

func TestSQLiteStore_NilSafeClose(t *testing.T) {
	var store *SQLiteStore
	assert.NoError(t, store.Close())
}

func TestRedisStore(t *testing.T) {
	url := os.Getenv("LICENSE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LICENSE_TEST_REDIS_URL not set")
	}
	store, err := OpenRedis(context.Background(), url)
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, store)
}

func TestConnectRedis(t *testing.T) {
	client, err := ConnectRedis("redis://localhost:6390/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6390", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	client.Close()

	client, err = ConnectRedis("cache:6379")
	require.NoError(t, err)
	assert.Equal(t, "cache:6379", client.Options().Addr)
	client.Close()

	_, err = ConnectRedis("")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	ctx := context.Background()

	tests := []struct {
		name     string
		cfg      config.StorageConfig
		wantType interface{}
		wantErr  bool
	}{
		{"memory", config.StorageConfig{Backend: config.BackendMemory}, &MemoryStore{}, false},
		{"file", config.StorageConfig{Backend: config.BackendFile, Dir: t.TempDir()}, &FileStore{}, false},
		{"sqlite", config.StorageConfig{Backend: config.BackendSQLite, Dir: t.TempDir()}, &SQLiteStore{}, false},
		{"fallback wraps", config.StorageConfig{Backend: config.BackendMemory, Fallback: true}, &FallbackStore{}, false},
		{"unknown backend", config.StorageConfig{Backend: "etcd"}, nil, true},
		{"redis unreachable", config.StorageConfig{Backend: config.BackendRedis, RedisURL: ""}, nil, true},
		{"redis unreachable with fallback", config.StorageConfig{Backend: config.BackendRedis, Fallback: true}, &FallbackStore{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := Open(ctx, tt.cfg, logger)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer store.Close()
			assert.IsType(t, tt.wantType, store)
		})
	}

	t.Run("unavailable backend reports degraded", func(t *testing.T) {
		store, err := Open(ctx, config.StorageConfig{Backend: config.BackendRedis, Fallback: true}, logger)
		require.NoError(t, err)
		defer store.Close()
		assert.True(t, IsDegraded(store))

		healthy, err := Open(ctx, config.StorageConfig{Backend: config.BackendMemory, Fallback: true}, logger)
		require.NoError(t, err)
		assert.False(t, IsDegraded(healthy))
		assert.False(t, IsDegraded(NewMemoryStore()))
	})
}

type failingStore struct {
	*MemoryStore
	fail error
}

func (s *failingStore) Get(ctx context.Context, key string) ([]byte, error) {
	if s.fail != nil {
		return nil, s.fail
	}
	return s.MemoryStore.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key string, value []byte) error {
	if s.fail != nil {
		return s.fail
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestFallbackStore(t *testing.T) {
	ctx := context.Background()
	primary := &failingStore{MemoryStore: NewMemoryStore()}
	store := NewFallbackStore(primary, slog.New(slog.DiscardHandler))

	runStoreContract(t, store)
	assert.False(t, store.Degraded())

	require.NoError(t, store.Set(ctx, "catalog", []byte("v1")))
	primary.fail = errors.New("disk full")

	// reads of known keys are served from the mirror
	value, err := store.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(value))
	assert.True(t, store.Degraded())

	require.NoError(t, store.Set(ctx, "catalog", []byte("v2")))
	value, err = store.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(value))

	// the primary never saw the degraded write
	primary.fail = nil
	value, err = primary.Get(ctx, "catalog")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(value))
	assert.Same(t, primary, store.Unwrap())
}
