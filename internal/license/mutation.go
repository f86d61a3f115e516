package license

import (
	"context"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	apperrors "sellerlicense/internal/errors"
)

// SaveLicense creates a record when payload.ID is empty or unknown and
// updates the matching record otherwise.
func (e *Engine) SaveLicense(ctx context.Context, payload LicensePayload) (res SaveResult) {
	ctx, span := e.tracer.Start(ctx, "license.SaveLicense")
	defer func() {
		e.metrics.recordMutation(ctx, "save", res.OK)
		endSpan(span, resultErr(res.Result))
	}()

	code := NormalizeCode(payload.Code)
	if code == "" {
		return SaveResult{Result: fail(apperrors.NewValidationError("license code is required"))}
	}
	licenseType := ParseLicenseType(payload.Type)
	var duration *int
	if payload.DurationDays != nil {
		duration = NormalizeDuration(*payload.DurationDays)
	}
	if licenseType == LicenseTypeTrial && duration == nil {
		return SaveResult{Result: fail(apperrors.NewValidationError("trial license requires a duration of at least 1 day"))}
	}
	label := strings.TrimSpace(payload.Label)
	if label == "" {
		label = code
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	list, err := e.catalog.Load(ctx, now)
	if err != nil {
		return SaveResult{Result: fail(err)}
	}
	if idx := FindByCode(list, code); idx >= 0 && list[idx].ID != payload.ID {
		return SaveResult{Result: fail(apperrors.NewConflictError("license code is already used by another license").
			WithContext("code", code))}
	}

	rec := LicenseRecord{
		Code:         code,
		Label:        label,
		Type:         licenseType,
		Status:       ParseRecordStatus(payload.Status),
		DurationDays: duration,
		Notes:        strings.TrimSpace(payload.Notes),
		UpdatedAt:    now,
	}

	created := false
	if idx := FindByID(list, payload.ID); idx >= 0 {
		rec.ID = list[idx].ID
		rec.CreatedAt = list[idx].CreatedAt
		list[idx] = rec
	} else {
		rec.ID = NewID()
		rec.CreatedAt = now
		list = append(list, rec)
		created = true
	}
	span.SetAttributes(attribute.String("license.code", code), attribute.Bool("license.created", created))

	saved, err := e.commit(ctx, list)
	if err != nil {
		return SaveResult{Result: fail(err)}
	}
	stored := saved[FindByID(saved, rec.ID)]

	message := "license updated"
	if created {
		message = "license created"
	}
	e.logger.InfoContext(ctx, message,
		slog.String("id", stored.ID),
		slog.String("code", stored.Code),
		slog.String("type", string(stored.Type)))
	return SaveResult{Result: succeed(message), License: &stored, Created: created}
}

// DeleteLicense removes the record with id and returns it.
func (e *Engine) DeleteLicense(ctx context.Context, id string) (res LicenseResult) {
	ctx, span := e.tracer.Start(ctx, "license.DeleteLicense")
	defer func() {
		e.metrics.recordMutation(ctx, "delete", res.OK)
		endSpan(span, resultErr(res.Result))
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return LicenseResult{Result: fail(apperrors.NewNotFoundError("license id is required"))}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return LicenseResult{Result: fail(err)}
	}
	idx := FindByID(list, id)
	if idx < 0 {
		return LicenseResult{Result: fail(apperrors.NewNotFoundError("license not found").WithContext("id", id))}
	}
	removed := list[idx].Clone()
	list = append(list[:idx], list[idx+1:]...)

	if _, err := e.commit(ctx, list); err != nil {
		return LicenseResult{Result: fail(err)}
	}

	e.logger.InfoContext(ctx, "license deleted",
		slog.String("id", removed.ID),
		slog.String("code", removed.Code))
	return LicenseResult{Result: succeed("license deleted"), License: &removed}
}

// SetLicenseStatus switches a record on or off. Setting the status it
// already has succeeds without writing or broadcasting.
func (e *Engine) SetLicenseStatus(ctx context.Context, id string, status RecordStatus) (res LicenseResult) {
	ctx, span := e.tracer.Start(ctx, "license.SetLicenseStatus")
	defer func() {
		e.metrics.recordMutation(ctx, "set_status", res.OK)
		endSpan(span, resultErr(res.Result))
	}()

	id = strings.TrimSpace(id)
	if id == "" {
		return LicenseResult{Result: fail(apperrors.NewNotFoundError("license id is required"))}
	}
	status = ParseRecordStatus(string(status))

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	list, err := e.catalog.Load(ctx, now)
	if err != nil {
		return LicenseResult{Result: fail(err)}
	}
	idx := FindByID(list, id)
	if idx < 0 {
		return LicenseResult{Result: fail(apperrors.NewNotFoundError("license not found").WithContext("id", id))}
	}
	if list[idx].Status == status {
		unchanged := list[idx].Clone()
		return LicenseResult{Result: succeed("license status unchanged"), License: &unchanged}
	}

	list[idx].Status = status
	list[idx].UpdatedAt = now
	saved, err := e.commit(ctx, list)
	if err != nil {
		return LicenseResult{Result: fail(err)}
	}
	updated := saved[FindByID(saved, id)]

	e.logger.InfoContext(ctx, "license status changed",
		slog.String("id", id),
		slog.String("code", updated.Code),
		slog.String("status", string(status)))
	return LicenseResult{Result: succeed("license status updated"), License: &updated}
}
