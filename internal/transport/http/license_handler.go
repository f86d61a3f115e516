package http

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apierrors "sellerlicense/internal/errors"
	"sellerlicense/internal/exporter"
	"sellerlicense/internal/license"
	"sellerlicense/internal/middleware"
)

// CatalogResponse is the body of GET /catalog.
type CatalogResponse struct {
	Licenses []license.LicenseRecord `json:"licenses"`
	Summary  license.Summary         `json:"summary"`
}

// StatusRequest is the body of PUT /catalog/{id}/status.
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// ActivateRequest is the body of POST /activate.
type ActivateRequest struct {
	Code string `json:"code" validate:"required,max=64"`
}

// ImportRequest is the body of POST /import.
type ImportRequest struct {
	Text string `json:"text" validate:"required"`
	Mode string `json:"mode,omitempty"`
}

// ExportResponse is the body of GET /export.
type ExportResponse struct {
	Format license.ExportFormat `json:"format"`
	Data   string               `json:"data"`
}

// LicenseHandler handles license catalog and entitlement requests.
type LicenseHandler struct {
	service      LicenseService
	validator    *middleware.Validator
	errorHandler *apierrors.ErrorHandler
	limiter      *middleware.RateLimiter
	logger       *slog.Logger
}

// NewLicenseHandler creates a license handler. limiter may be nil to
// leave activation unthrottled.
func NewLicenseHandler(service LicenseService, errorHandler *apierrors.ErrorHandler, limiter *middleware.RateLimiter, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		service:      service,
		validator:    middleware.NewValidator(),
		errorHandler: errorHandler,
		limiter:      limiter,
		logger:       logger.With(slog.String("handler", "license")),
	}
}

// Routes returns a chi router for license endpoints
func (h *LicenseHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/catalog", h.GetCatalog)
	r.Post("/catalog", h.SaveLicense)
	r.Delete("/catalog/{id}", h.DeleteLicense)
	r.Put("/catalog/{id}/status", h.SetLicenseStatus)

	r.Get("/status", h.GetStatus)
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(h.limiter.Handler)
		}
		r.Post("/activate", h.Activate)
	})
	r.Post("/deactivate", h.Deactivate)

	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
	r.Get("/export.xlsx", h.ExportWorkbook)
	r.Get("/export.csv", h.ExportCSV)

	return r
}

// GetCatalog handles GET /api/license/catalog
func (h *LicenseHandler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.GetCatalog(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, CatalogResponse{Licenses: list, Summary: license.Summarize(list)})
}

// SaveLicense handles POST /api/license/catalog
func (h *LicenseHandler) SaveLicense(w http.ResponseWriter, r *http.Request) {
	var payload license.LicensePayload
	if err := h.validator.DecodeJSON(r, &payload); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	res := h.service.SaveLicense(r.Context(), payload)
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "license saved",
		slog.String("id", res.License.ID),
		slog.String("code", res.License.Code),
		slog.Bool("created", res.Created))

	if res.Created {
		render.Status(r, http.StatusCreated)
	}
	render.JSON(w, r, res)
}

// DeleteLicense handles DELETE /api/license/catalog/{id}
func (h *LicenseHandler) DeleteLicense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res := h.service.DeleteLicense(r.Context(), id)
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "license deleted", slog.String("id", id))
	render.JSON(w, r, res)
}

// SetLicenseStatus handles PUT /api/license/catalog/{id}/status
func (h *LicenseHandler) SetLicenseStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	id := chi.URLParam(r, "id")
	res := h.service.SetLicenseStatus(r.Context(), id, license.RecordStatus(req.Status))
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "license status changed",
		slog.String("id", id),
		slog.String("status", req.Status))
	render.JSON(w, r, res)
}

// GetStatus handles GET /api/license/status
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.GetStatus(r.Context())
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, status)
}

// Activate handles POST /api/license/activate
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	res := h.service.Activate(r.Context(), req.Code)
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "license activated",
		slog.String("code", res.Code),
		slog.String("type", string(res.Type)))
	render.JSON(w, r, res)
}

// Deactivate handles POST /api/license/deactivate
func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	res := h.service.Deactivate(r.Context())
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}
	render.JSON(w, r, res)
}

// Export handles GET /api/license/export
func (h *LicenseHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := license.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	data, err := h.service.ExportCatalog(r.Context(), format)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, ExportResponse{Format: format, Data: data})
}

// Import handles POST /api/license/import
func (h *LicenseHandler) Import(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := h.validator.DecodeJSON(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	mode, err := license.ParseImportMode(req.Mode)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	res := h.service.ImportCatalog(r.Context(), req.Text, mode)
	if !res.OK {
		h.errorHandler.HandleError(w, r, res.Err)
		return
	}

	h.logger.InfoContext(r.Context(), "catalog imported",
		slog.String("mode", string(mode)),
		slog.Int("imported", len(res.Imported)),
		slog.Int("total", res.Total))
	render.JSON(w, r, res)
}

// ExportWorkbook handles GET /api/license/export.xlsx
func (h *LicenseHandler) ExportWorkbook(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, "xlsx",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		exporter.WriteWorkbook)
}

// ExportCSV handles GET /api/license/export.csv
func (h *LicenseHandler) ExportCSV(w http.ResponseWriter, r *http.Request) {
	h.writeReport(w, r, "csv", "text/csv; charset=utf-8",
		func(out io.Writer, report exporter.Report) error {
			return exporter.WriteCSV(out, report, true)
		})
}

func (h *LicenseHandler) writeReport(w http.ResponseWriter, r *http.Request, ext, contentType string, write func(io.Writer, exporter.Report) error) {
	ctx := r.Context()

	list, err := h.service.GetCatalog(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	status, err := h.service.GetStatus(ctx)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	now := time.Now().UTC()
	report := exporter.NewReport(list, license.Summarize(list), status, now)

	// Buffer so a failed render can still produce a problem response
	var buf bytes.Buffer
	if err := write(&buf, report); err != nil {
		h.errorHandler.HandleError(w, r, apierrors.NewStorageError("failed to render catalog report", err))
		return
	}

	filename := fmt.Sprintf("license-catalog-%s.%s", now.Format("20060102-150405"), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}
