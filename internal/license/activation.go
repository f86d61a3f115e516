package license

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	apperrors "sellerlicense/internal/errors"
	"sellerlicense/internal/storage"
)

// ActivationManager owns the activation record and the cached status string.
type ActivationManager struct {
	store    storage.Store
	keys     Keys
	deviceID string
	logger   *slog.Logger
}

// NewActivationManager returns a manager persisting under keys. deviceID
// is recorded with every activation.
func NewActivationManager(store storage.Store, keys Keys, deviceID string, logger *slog.Logger) *ActivationManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ActivationManager{store: store, keys: keys, deviceID: deviceID, logger: logger}
}

// Current returns the stored activation, or nil when none exists. An
// unreadable record is treated as no activation.
func (m *ActivationManager) Current(ctx context.Context) (*ActivationRecord, error) {
	data, err := m.store.Get(ctx, m.keys.Activation)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read activation record", err)
	}

	var act ActivationRecord
	if err := json.Unmarshal(data, &act); err != nil {
		m.logger.WarnContext(ctx, "stored activation record is unreadable, ignoring it",
			slog.String("error", err.Error()))
		return nil, nil
	}
	if NormalizeCode(act.Code) == "" {
		return nil, nil
	}
	act.Code = NormalizeCode(act.Code)
	return &act, nil
}

// Activate checks code against catalog and, when it may be used, stores
// a new activation starting at now. The matched record is returned.
func (m *ActivationManager) Activate(ctx context.Context, catalog []LicenseRecord, code string, now time.Time) (ActivationRecord, LicenseRecord, error) {
	code = NormalizeCode(code)
	if code == "" {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewValidationError("license code is required")
	}

	idx := FindByCode(catalog, code)
	if idx < 0 {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewNotFoundError("license code not found").
			WithContext("code", code)
	}
	rec := catalog[idx].Clone()
	if rec.Status != RecordStatusActive {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewValidationError("license is disabled").
			WithContext("code", code)
	}
	if rec.IsTrial() && rec.DurationDays == nil {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewValidationError("trial license has no duration configured").
			WithContext("code", code)
	}

	act := ActivationRecord{
		Code:        rec.Code,
		ActivatedAt: now.UTC(),
		DeviceID:    m.deviceID,
	}
	data, err := json.Marshal(act)
	if err != nil {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewStorageError("failed to encode activation record", err)
	}
	if err := m.store.Set(ctx, m.keys.Activation, data); err != nil {
		return ActivationRecord{}, LicenseRecord{}, apperrors.NewStorageError("failed to write activation record", err)
	}
	return act, rec, nil
}

// Deactivate removes the activation record. It succeeds when none exists.
func (m *ActivationManager) Deactivate(ctx context.Context) error {
	if err := m.store.Delete(ctx, m.keys.Activation); err != nil {
		return apperrors.NewStorageError("failed to clear activation record", err)
	}
	return nil
}

// CacheStatus stores the last evaluated state for other readers of the
// store. Evaluation never reads it back.
func (m *ActivationManager) CacheStatus(ctx context.Context, state EntitlementState) {
	if state == "" {
		state = StateInactive
	}
	if err := m.store.Set(ctx, m.keys.Status, []byte(state)); err != nil {
		m.logger.WarnContext(ctx, "failed to cache license status",
			slog.String("status", string(state)),
			slog.String("error", err.Error()))
	}
}

// CachedStatus returns the last cached state, or inactive.
func (m *ActivationManager) CachedStatus(ctx context.Context) EntitlementState {
	data, err := m.store.Get(ctx, m.keys.Status)
	if err != nil || len(data) == 0 {
		return StateInactive
	}
	return EntitlementState(data)
}
