package license

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "sellerlicense/internal/errors"
)

// Day is the length of one license day.
const Day = 24 * time.Hour

// MaxDurationDays is the longest duration kept, the span of the
// ECMAScript date range. Longer values normalize to unlimited.
const MaxDurationDays = 100_000_000

// RawEntry is a catalog entry as found in storage or an import, before
// normalization.
type RawEntry map[string]any

// NewID returns a fresh record id of the form LIC-XXXXXXXXXXXX.
func NewID() string {
	u := uuid.New()
	var v uint64
	for _, b := range u[:8] {
		v = v<<8 | uint64(b)
	}
	return "LIC-" + strings.ToUpper(strconv.FormatUint(v, 36))
}

// NormalizeCode trims and uppercases a license code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Normalize converts an arbitrary entry into a LicenseRecord. It fails
// only when the code is blank; every other field falls back to a default.
func Normalize(raw RawEntry, now time.Time) (LicenseRecord, error) {
	if raw == nil {
		return LicenseRecord{}, apperrors.NewValidationError("license entry is empty")
	}
	rec := LicenseRecord{
		ID:           stringField(raw, "id"),
		Code:         stringField(raw, "code"),
		Label:        stringField(raw, "label"),
		Type:         LicenseType(stringField(raw, "type")),
		Status:       RecordStatus(stringField(raw, "status")),
		DurationDays: NormalizeDuration(raw["durationDays"]),
		Notes:        stringField(raw, "notes"),
		CreatedAt:    timeField(raw, "createdAt"),
		UpdatedAt:    timeField(raw, "updatedAt"),
	}
	return NormalizeRecord(rec, now)
}

// NormalizeRecord applies the catalog rules to an already typed record.
func NormalizeRecord(rec LicenseRecord, now time.Time) (LicenseRecord, error) {
	rec.Code = NormalizeCode(rec.Code)
	if rec.Code == "" {
		return LicenseRecord{}, apperrors.NewValidationError("license code is required")
	}

	rec.ID = strings.TrimSpace(rec.ID)
	if rec.ID == "" {
		rec.ID = NewID()
	}
	rec.Label = strings.TrimSpace(rec.Label)
	if rec.Label == "" {
		rec.Label = rec.Code
	}
	rec.Type = ParseLicenseType(string(rec.Type))
	rec.Status = ParseRecordStatus(string(rec.Status))
	if rec.DurationDays != nil {
		rec.DurationDays = NormalizeDuration(*rec.DurationDays)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = rec.CreatedAt
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.UpdatedAt = rec.UpdatedAt.UTC()
	return rec, nil
}

// NormalizeDuration accepts numbers and numeric strings. Anything that is
// not a finite positive number yields nil; positive values are rounded
// half up and a result below one day also yields nil.
func NormalizeDuration(v any) *int {
	var f float64
	switch n := v.(type) {
	case nil:
		return nil
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return nil
	}
	rounded := math.Floor(f + 0.5)
	if rounded < 1 || rounded > MaxDurationDays {
		return nil
	}
	return intPtr(int(rounded))
}

func stringField(raw RawEntry, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func timeField(raw RawEntry, key string) time.Time {
	switch v := raw[key].(type) {
	case time.Time:
		return v
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return time.Time{}
		}
		return t
	}
	return time.Time{}
}

// normalizeList normalizes every entry, dropping failures and later
// duplicates of a code. It reports how many entries were dropped.
func normalizeList(list []LicenseRecord, now time.Time) ([]LicenseRecord, int) {
	out := make([]LicenseRecord, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	dropped := 0
	for _, rec := range list {
		normalized, err := NormalizeRecord(rec.Clone(), now)
		if err != nil {
			dropped++
			continue
		}
		if _, dup := seen[normalized.Code]; dup {
			dropped++
			continue
		}
		seen[normalized.Code] = struct{}{}
		out = append(out, normalized)
	}
	return out, dropped
}
