package http

import (
	"context"

	"sellerlicense/internal/license"
)

// LicenseService is the subset of *license.Engine used by the handlers.
type LicenseService interface {
	GetCatalog(ctx context.Context) ([]license.LicenseRecord, error)
	GetStatus(ctx context.Context) (license.EntitlementStatus, error)
	SaveLicense(ctx context.Context, payload license.LicensePayload) license.SaveResult
	DeleteLicense(ctx context.Context, id string) license.LicenseResult
	SetLicenseStatus(ctx context.Context, id string, status license.RecordStatus) license.LicenseResult
	Activate(ctx context.Context, code string) license.ActivationResult
	Deactivate(ctx context.Context) license.Result
	ExportCatalog(ctx context.Context, format license.ExportFormat) (string, error)
	ImportCatalog(ctx context.Context, text string, mode license.ImportMode) license.ImportResult
}

var _ LicenseService = (*license.Engine)(nil)
