package license

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	apperrors "sellerlicense/internal/errors"
)

// ExportCatalog encodes the whole catalog in stored order.
func (e *Engine) ExportCatalog(ctx context.Context, format ExportFormat) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list, err := e.catalog.Load(ctx, e.now())
	if err != nil {
		return "", err
	}
	return Export(list, format)
}

// ImportCatalog decodes text and combines it with the catalog according
// to mode. Entries that fail normalization are dropped; when a code
// appears more than once in text the last entry wins.
//
// In replace mode the imported list becomes the catalog. In merge mode
// an imported entry whose code already exists overwrites that record but
// keeps its id, and new codes are appended.
func (e *Engine) ImportCatalog(ctx context.Context, text string, mode ImportMode) (res ImportResult) {
	ctx, span := e.tracer.Start(ctx, "license.ImportCatalog")
	span.SetAttributes(attribute.String("license.import_mode", string(mode)))
	defer func() {
		e.metrics.recordImport(ctx, mode, res.OK)
		endSpan(span, resultErr(res.Result))
	}()

	if mode != ImportModeReplace && mode != ImportModeMerge {
		return ImportResult{Result: fail(apperrors.NewValidationError(fmt.Sprintf("unknown import mode %q", mode)))}
	}
	entries, err := Decode(text)
	if err != nil {
		return ImportResult{Result: fail(err)}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	imported := e.normalizeImport(ctx, entries, now)
	if len(imported) == 0 {
		return ImportResult{Result: fail(apperrors.NewDecodeError("no valid licenses found in import text", nil))}
	}

	current, err := e.catalog.Load(ctx, now)
	if err != nil {
		return ImportResult{Result: fail(err)}
	}

	var next []LicenseRecord
	switch mode {
	case ImportModeReplace:
		next = cloneList(imported)
	case ImportModeMerge:
		next = mergeCatalog(current, imported)
	}

	saved, err := e.commit(ctx, next)
	if err != nil {
		return ImportResult{Result: fail(err)}
	}

	stored := make([]LicenseRecord, 0, len(imported))
	for _, rec := range imported {
		if idx := FindByCode(saved, rec.Code); idx >= 0 {
			stored = append(stored, saved[idx].Clone())
		}
	}

	message := fmt.Sprintf("imported %d licenses (%s)", len(stored), mode)
	e.logger.InfoContext(ctx, "license catalog imported",
		slog.String("mode", string(mode)),
		slog.Int("imported", len(stored)),
		slog.Int("previous_total", len(current)),
		slog.Int("total", len(saved)))
	return ImportResult{
		Result:        succeed(message),
		Imported:      stored,
		Total:         len(saved),
		PreviousTotal: len(current),
	}
}

// normalizeImport keeps valid entries, last one per code, and gives
// entries that share an id with an earlier entry a fresh id.
func (e *Engine) normalizeImport(ctx context.Context, entries []RawEntry, now time.Time) []LicenseRecord {
	out := make([]LicenseRecord, 0, len(entries))
	byCode := make(map[string]int, len(entries))
	dropped := 0
	for _, raw := range entries {
		rec, err := Normalize(raw, now)
		if err != nil {
			dropped++
			continue
		}
		if idx, dup := byCode[rec.Code]; dup {
			out[idx] = rec
			continue
		}
		byCode[rec.Code] = len(out)
		out = append(out, rec)
	}
	if dropped > 0 {
		e.logger.DebugContext(ctx, "dropped invalid import entries", slog.Int("dropped", dropped))
	}

	ids := make(map[string]struct{}, len(out))
	for i := range out {
		if _, dup := ids[out[i].ID]; dup {
			out[i].ID = NewID()
		}
		ids[out[i].ID] = struct{}{}
	}
	return out
}

// mergeCatalog upserts imported into current by code.
func mergeCatalog(current, imported []LicenseRecord) []LicenseRecord {
	next := cloneList(current)
	ids := make(map[string]struct{}, len(next))
	for _, rec := range next {
		ids[rec.ID] = struct{}{}
	}

	for _, rec := range imported {
		rec = rec.Clone()
		if idx := FindByCode(next, rec.Code); idx >= 0 {
			rec.ID = next[idx].ID
			next[idx] = rec
			continue
		}
		if _, taken := ids[rec.ID]; taken {
			rec.ID = NewID()
		}
		ids[rec.ID] = struct{}{}
		next = append(next, rec)
	}
	return next
}
