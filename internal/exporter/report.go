package exporter

import (
	"strconv"
	"time"

	"sellerlicense/internal/license"
)

// Report is a point-in-time view of the catalog.
type Report struct {
	Licenses    []license.LicenseRecord
	Summary     license.Summary
	Status      license.EntitlementStatus
	GeneratedAt time.Time
}

// NewReport bundles the inputs of a catalog report.
func NewReport(licenses []license.LicenseRecord, summary license.Summary, status license.EntitlementStatus, generatedAt time.Time) Report {
	return Report{
		Licenses:    licenses,
		Summary:     summary,
		Status:      status,
		GeneratedAt: generatedAt.UTC(),
	}
}

// Headers are the catalog columns shared by every format.
var Headers = []string{
	"ID", "Code", "Label", "Type", "Status", "Duration (days)",
	"Activated", "Notes", "Created At", "Updated At",
}

// Rows returns one string row per license, in catalog order.
func (r Report) Rows() [][]string {
	rows := make([][]string, 0, len(r.Licenses))
	for _, rec := range r.Licenses {
		rows = append(rows, []string{
			rec.ID,
			rec.Code,
			rec.Label,
			string(rec.Type),
			string(rec.Status),
			formatDuration(rec.DurationDays),
			formatBool(r.Status.Code != "" && r.Status.Code == rec.Code),
			rec.Notes,
			formatTime(rec.CreatedAt),
			formatTime(rec.UpdatedAt),
		})
	}
	return rows
}

// SummaryRows returns label/value pairs describing the catalog and the
// current entitlement.
func (r Report) SummaryRows() [][]string {
	rows := [][]string{
		{"Generated At", formatTime(r.GeneratedAt)},
		{"Total", strconv.Itoa(r.Summary.Total)},
		{"Active", strconv.Itoa(r.Summary.Active)},
		{"Inactive", strconv.Itoa(r.Summary.Inactive)},
		{"Trial", strconv.Itoa(r.Summary.Trial)},
		{"Trial Active", strconv.Itoa(r.Summary.TrialActive)},
		{"Premium", strconv.Itoa(r.Summary.Premium)},
		{"Premium Active", strconv.Itoa(r.Summary.PremiumActive)},
		{"Entitlement", string(r.Status.State)},
	}
	if r.Status.Code != "" {
		rows = append(rows, []string{"Activated Code", r.Status.Code})
	}
	if r.Status.ExpiresAt != nil {
		rows = append(rows, []string{"Expires At", formatTime(*r.Status.ExpiresAt)})
	}
	if r.Status.DaysRemaining != nil {
		rows = append(rows, []string{"Days Remaining", strconv.Itoa(*r.Status.DaysRemaining)})
	}
	return rows
}

func formatDuration(days *int) string {
	if days == nil {
		return "unlimited"
	}
	return strconv.Itoa(*days)
}

func formatBool(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
