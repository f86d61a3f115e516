package license

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"time"

	apperrors "sellerlicense/internal/errors"
	"sellerlicense/internal/storage"
)

// DefaultKeyPrefix prefixes every persisted key.
const DefaultKeyPrefix = "seller-tools-license"

// Keys names the persisted values.
type Keys struct {
	Catalog    string
	Activation string
	Status     string
}

// NewKeys derives the key names from prefix.
func NewKeys(prefix string) Keys {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{
		Catalog:    prefix + "-catalog",
		Activation: prefix + "-activation",
		Status:     prefix + "-status",
	}
}

// CatalogStore owns the persisted catalog.
type CatalogStore struct {
	store  storage.Store
	key    string
	seed   bool
	logger *slog.Logger
}

// NewCatalogStore returns a store for the catalog under key. When seed is
// set, an absent catalog is replaced by DefaultCatalog on first load.
func NewCatalogStore(store storage.Store, key string, seed bool, logger *slog.Logger) *CatalogStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogStore{store: store, key: key, seed: seed, logger: logger}
}

// Load returns the normalized catalog in stored order. A missing or
// unreadable catalog is seeded with the defaults and persisted.
func (c *CatalogStore) Load(ctx context.Context, now time.Time) ([]LicenseRecord, error) {
	data, err := c.store.Get(ctx, c.key)
	if errors.Is(err, storage.ErrNotFound) {
		return c.bootstrap(ctx, now)
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read license catalog", err)
	}

	// A JSON null decodes to a nil slice; only an array counts as a catalog.
	var rawList []json.RawMessage
	if err := json.Unmarshal(data, &rawList); err != nil || rawList == nil {
		c.logger.WarnContext(ctx, "stored license catalog is unreadable, treating it as absent",
			slog.String("key", c.key),
			slog.Any("error", err))
		return c.bootstrap(ctx, now)
	}

	records := make([]LicenseRecord, 0, len(rawList))
	seen := make(map[string]struct{}, len(rawList))
	repaired := false
	for _, item := range rawList {
		var raw RawEntry
		if err := json.Unmarshal(item, &raw); err != nil || raw == nil {
			repaired = true
			continue
		}
		rec, err := Normalize(raw, now)
		if err != nil {
			repaired = true
			continue
		}
		if _, dup := seen[rec.Code]; dup {
			repaired = true
			continue
		}
		if stringField(raw, "id") == "" || timeField(raw, "createdAt").IsZero() {
			repaired = true
		}
		seen[rec.Code] = struct{}{}
		records = append(records, rec)
	}

	// Persist generated ids and timestamps so they stay stable across loads.
	if repaired {
		c.logger.DebugContext(ctx, "repairing stored license catalog",
			slog.Int("entries", len(rawList)),
			slog.Int("kept", len(records)))
		if err := c.write(ctx, records); err != nil {
			return nil, err
		}
	}
	return records, nil
}

// Save normalizes list, drops invalid entries and duplicate codes (first
// occurrence wins) and persists the result as one value.
func (c *CatalogStore) Save(ctx context.Context, list []LicenseRecord, now time.Time) ([]LicenseRecord, error) {
	normalized, dropped := normalizeList(list, now)
	if dropped > 0 {
		c.logger.DebugContext(ctx, "dropped invalid or duplicate catalog entries",
			slog.Int("dropped", dropped))
	}
	if err := c.write(ctx, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

func (c *CatalogStore) bootstrap(ctx context.Context, now time.Time) ([]LicenseRecord, error) {
	if !c.seed {
		return []LicenseRecord{}, nil
	}
	defaults := DefaultCatalog(now)
	if err := c.write(ctx, defaults); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "seeded default license catalog",
		slog.Int("total", len(defaults)))
	return defaults, nil
}

func (c *CatalogStore) write(ctx context.Context, list []LicenseRecord) error {
	data, err := json.Marshal(list)
	if err != nil {
		return apperrors.NewStorageError("failed to encode license catalog", err)
	}
	if err := c.store.Set(ctx, c.key, data); err != nil {
		return apperrors.NewStorageError("failed to write license catalog", err)
	}
	return nil
}

// SortByUpdated returns copies of list ordered by UpdatedAt, newest first.
func SortByUpdated(list []LicenseRecord) []LicenseRecord {
	out := cloneList(list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// FindByCode returns the index of the record with code, or -1.
func FindByCode(list []LicenseRecord, code string) int {
	code = NormalizeCode(code)
	for i := range list {
		if list[i].Code == code {
			return i
		}
	}
	return -1
}

// FindByID returns the index of the record with id, or -1.
func FindByID(list []LicenseRecord, id string) int {
	if id == "" {
		return -1
	}
	for i := range list {
		if list[i].ID == id {
			return i
		}
	}
	return -1
}
