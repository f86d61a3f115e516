package license

import (
	"fmt"
	"strings"
	"time"

	apperrors "sellerlicense/internal/errors"
)

// LicenseType distinguishes time-boxed trials from premium licenses.
type LicenseType string

const (
	LicenseTypeTrial   LicenseType = "trial"
	LicenseTypePremium LicenseType = "premium"
)

// Valid reports whether t is one of the known license types.
func (t LicenseType) Valid() bool {
	return t == LicenseTypeTrial || t == LicenseTypePremium
}

// ParseLicenseType maps anything other than "trial" to premium.
func ParseLicenseType(s string) LicenseType {
	if strings.EqualFold(strings.TrimSpace(s), string(LicenseTypeTrial)) {
		return LicenseTypeTrial
	}
	return LicenseTypePremium
}

// RecordStatus is the admin-controlled on/off switch of a catalog record.
type RecordStatus string

const (
	RecordStatusActive   RecordStatus = "active"
	RecordStatusInactive RecordStatus = "inactive"
)

// Valid reports whether s is one of the known record statuses.
func (s RecordStatus) Valid() bool {
	return s == RecordStatusActive || s == RecordStatusInactive
}

// ParseRecordStatus maps anything other than "inactive" to active.
func ParseRecordStatus(s string) RecordStatus {
	if strings.EqualFold(strings.TrimSpace(s), string(RecordStatusInactive)) {
		return RecordStatusInactive
	}
	return RecordStatusActive
}

// EntitlementState is the outcome of evaluating an activation against the catalog.
type EntitlementState string

const (
	StateInactive EntitlementState = "inactive"
	StateActive   EntitlementState = "active"
	StateExpired  EntitlementState = "expired"
	StateDisabled EntitlementState = "disabled"
	StateInvalid  EntitlementState = "invalid"
)

// ImportMode selects how an imported catalog is combined with the local one.
type ImportMode string

const (
	ImportModeReplace ImportMode = "replace"
	ImportModeMerge   ImportMode = "merge"
)

// ParseImportMode accepts "replace" or "merge" in any case. A blank
// mode means merge.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case ImportModeReplace:
		return ImportModeReplace, nil
	case ImportModeMerge, "":
		return ImportModeMerge, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown import mode %q", s))
	}
}

// ExportFormat selects the encoding of an exported catalog.
type ExportFormat string

const (
	ExportFormatBase64 ExportFormat = "base64"
	ExportFormatJSON   ExportFormat = "json"
)

// ParseExportFormat accepts "base64" or "json"; blank means base64.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case ExportFormatBase64, "":
		return ExportFormatBase64, nil
	case ExportFormatJSON:
		return ExportFormatJSON, nil
	default:
		return "", apperrors.NewValidationError(fmt.Sprintf("unknown export format %q", s))
	}
}

// LicenseRecord is one catalog entry.
type LicenseRecord struct {
	ID           string       `json:"id"`
	Code         string       `json:"code"`
	Label        string       `json:"label"`
	Type         LicenseType  `json:"type"`
	Status       RecordStatus `json:"status"`
	DurationDays *int         `json:"durationDays"`
	Notes        string       `json:"notes"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// Clone returns a deep copy.
func (r LicenseRecord) Clone() LicenseRecord {
	if r.DurationDays != nil {
		d := *r.DurationDays
		r.DurationDays = &d
	}
	return r
}

// IsTrial reports whether the record is a trial license.
func (r LicenseRecord) IsTrial() bool { return r.Type == LicenseTypeTrial }

// ExpiresAt returns when an activation of r made at activatedAt ends,
// or nil for unlimited licenses.
func (r LicenseRecord) ExpiresAt(activatedAt time.Time) *time.Time {
	if r.DurationDays == nil || *r.DurationDays <= 0 || activatedAt.IsZero() {
		return nil
	}
	// AddDate in UTC counts whole 24h days without overflowing
	// time.Duration for multi-century licenses.
	expires := activatedAt.UTC().AddDate(0, 0, *r.DurationDays)
	return &expires
}

// ActivationRecord is the single per-installation activation.
type ActivationRecord struct {
	Code        string    `json:"code"`
	ActivatedAt time.Time `json:"activatedAt"`
	DeviceID    string    `json:"deviceId,omitempty"`
}

// EntitlementStatus is derived from the catalog, the activation record
// and the clock. It is never authoritative when stored.
type EntitlementStatus struct {
	State         EntitlementState `json:"status"`
	Active        bool             `json:"active"`
	Code          string           `json:"code,omitempty"`
	ActivatedAt   *time.Time       `json:"activatedAt"`
	ExpiresAt     *time.Time       `json:"expiresAt"`
	DaysRemaining *int             `json:"daysRemaining"`
	LicenseType   LicenseType      `json:"licenseType,omitempty"`
	LicenseLabel  string           `json:"licenseLabel,omitempty"`
	DurationDays  *int             `json:"durationDays"`
	Notes         string           `json:"notes"`
	IsTrial       bool             `json:"isTrial"`
}

// Summary counts catalog records by type and status.
type Summary struct {
	Total         int `json:"total"`
	Active        int `json:"active"`
	Inactive      int `json:"inactive"`
	Trial         int `json:"trial"`
	TrialActive   int `json:"trialActive"`
	Premium       int `json:"premium"`
	PremiumActive int `json:"premiumActive"`
}

// Summarize counts the records in list.
func Summarize(list []LicenseRecord) Summary {
	var s Summary
	for _, r := range list {
		s.Total++
		active := r.Status == RecordStatusActive
		if active {
			s.Active++
		} else {
			s.Inactive++
		}
		if r.Type == LicenseTypeTrial {
			s.Trial++
			if active {
				s.TrialActive++
			}
		} else {
			s.Premium++
			if active {
				s.PremiumActive++
			}
		}
	}
	return s
}

// LicensePayload is the input of SaveLicense. An empty ID creates a record.
type LicensePayload struct {
	ID           string `json:"id,omitempty"`
	Code         string `json:"code" validate:"required,max=64"`
	Label        string `json:"label,omitempty" validate:"max=120"`
	Type         string `json:"type,omitempty" validate:"omitempty,oneof=trial premium"`
	Status       string `json:"status,omitempty" validate:"omitempty,oneof=active inactive"`
	DurationDays *int   `json:"durationDays,omitempty" validate:"omitempty,min=0"`
	Notes        string `json:"notes,omitempty" validate:"max=1000"`
}

// Result is the outcome of an operation that returns nothing else.
type Result struct {
	OK      bool                `json:"ok"`
	Message string              `json:"message,omitempty"`
	Err     *apperrors.AppError `json:"-"`
}

// SaveResult is the outcome of SaveLicense.
type SaveResult struct {
	Result
	License *LicenseRecord `json:"license,omitempty"`
	Created bool           `json:"created"`
}

// LicenseResult is the outcome of DeleteLicense and SetLicenseStatus.
type LicenseResult struct {
	Result
	License *LicenseRecord `json:"license,omitempty"`
}

// ActivationResult is the outcome of Activate.
type ActivationResult struct {
	Result
	Code      string      `json:"code,omitempty"`
	ExpiresAt *time.Time  `json:"expiresAt,omitempty"`
	Type      LicenseType `json:"type,omitempty"`
}

// ImportResult is the outcome of ImportCatalog.
type ImportResult struct {
	Result
	Imported      []LicenseRecord `json:"imported,omitempty"`
	Total         int             `json:"total"`
	PreviousTotal int             `json:"previousTotal"`
}

func succeed(message string) Result {
	return Result{OK: true, Message: message}
}

func fail(err error) Result {
	appErr := apperrors.AsAppError(err)
	return Result{OK: false, Message: appErr.Message, Err: appErr}
}

func cloneList(list []LicenseRecord) []LicenseRecord {
	out := make([]LicenseRecord, len(list))
	for i, r := range list {
		out[i] = r.Clone()
	}
	return out
}

func intPtr(v int) *int { return &v }
