package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	apierrors "sellerlicense/internal/errors"
	"sellerlicense/internal/license"
	"sellerlicense/internal/middleware"
	"sellerlicense/internal/storage"
)

var testNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestEngine(t *testing.T) *license.Engine {
	t.Helper()
	engine, err := license.NewEngine(license.Options{
		Store:    storage.NewMemoryStore(),
		DeviceID: "device-1",
		Clock:    func() time.Time { return testNow },
		Logger:   discardLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, engine.Start(context.Background()))
	return engine
}

func newTestRouter(service LicenseService, limiter *middleware.RateLimiter) http.Handler {
	handler := NewLicenseHandler(service, apierrors.NewErrorHandler(discardLogger(), false), limiter, discardLogger())
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Mount("/api/license", handler.Routes())
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestLicenseHandler_Endpoints(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name: "get catalog", method: http.MethodGet, path: "/api/license/catalog",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Len(t, body["licenses"], 3)
				summary := body["summary"].(map[string]any)
				assert.Equal(t, float64(3), summary["total"])
				assert.Equal(t, float64(1), summary["trialActive"])
			},
		},
		{
			name: "create license", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"code":" promo-30 ","type":"trial","durationDays":30}`,
			wantStatus: http.StatusCreated,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["ok"])
				assert.Equal(t, true, body["created"])
				rec := body["license"].(map[string]any)
				assert.Equal(t, "PROMO-30", rec["code"])
				assert.Equal(t, "PROMO-30", rec["label"])
				assert.Equal(t, float64(30), rec["durationDays"])
			},
		},
		{
			name: "update license", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"id":"lic-default-1","code":"SELLERPRO-2025","label":"Annual","durationDays":400}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, false, body["created"])
				assert.Equal(t, "lic-default-1", body["license"].(map[string]any)["id"])
			},
		},
		{
			name: "duplicate code", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"code":"sellerpro-2025"}`,
			wantStatus: http.StatusConflict,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, apierrors.TypeConflict, body["type"])
				assert.Equal(t, "SELLERPRO-2025", body["code"])
			},
		},
		{
			name: "trial without duration", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"code":"TRIAL-X","type":"trial"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "missing code", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"label":"no code"}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Contains(t, body["detail"], "code is required")
			},
		},
		{
			name: "malformed body", method: http.MethodPost, path: "/api/license/catalog",
			body:       `{"code":`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "delete unknown", method: http.MethodDelete, path: "/api/license/catalog/LIC-NOPE",
			wantStatus: http.StatusNotFound,
		},
		{
			name: "delete", method: http.MethodDelete, path: "/api/license/catalog/lic-default-3",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "PREMIUM-999", body["license"].(map[string]any)["code"])
			},
		},
		{
			name: "enable license", method: http.MethodPut, path: "/api/license/catalog/lic-default-3/status",
			body:       `{"status":"active"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "active", body["license"].(map[string]any)["status"])
			},
		},
		{
			name: "invalid status", method: http.MethodPut, path: "/api/license/catalog/lic-default-3/status",
			body:       `{"status":"paused"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "status without activation", method: http.MethodGet, path: "/api/license/status",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "inactive", body["status"])
				assert.Equal(t, false, body["active"])
			},
		},
		{
			name: "activate unknown code", method: http.MethodPost, path: "/api/license/activate",
			body:       `{"code":"NOPE"}`,
			wantStatus: http.StatusNotFound,
		},
		{
			name: "activate disabled code", method: http.MethodPost, path: "/api/license/activate",
			body:       `{"code":"PREMIUM-999"}`,
			wantStatus: http.StatusBadRequest,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "license is disabled", body["detail"])
			},
		},
		{
			name: "activate", method: http.MethodPost, path: "/api/license/activate",
			body:       `{"code":"seller-trial-7"}`,
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "SELLER-TRIAL-7", body["code"])
				assert.Equal(t, "trial", body["type"])
				assert.Equal(t, "2025-03-08T10:00:00Z", body["expiresAt"])
			},
		},
		{
			name: "deactivate", method: http.MethodPost, path: "/api/license/deactivate",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, true, body["ok"])
			},
		},
		{
			name: "export json", method: http.MethodGet, path: "/api/license/export?format=json",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "json", body["format"])
				assert.True(t, strings.HasPrefix(body["data"].(string), "["))
			},
		},
		{
			name: "export unknown format", method: http.MethodGet, path: "/api/license/export?format=yaml",
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "import garbage", method: http.MethodPost, path: "/api/license/import",
			body:       `{"text":"%%%","mode":"merge"}`,
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body map[string]any) {
				assert.Equal(t, apierrors.TypeDecode, body["type"])
			},
		},
		{
			name: "import unknown mode", method: http.MethodPost, path: "/api/license/import",
			body:       `{"text":"[]","mode":"append"}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "import without text", method: http.MethodPost, path: "/api/license/import",
			body:       `{"mode":"merge"}`,
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(newTestEngine(t), nil)
			rec := do(t, router, tt.method, tt.path, tt.body)
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if rec.Code >= http.StatusBadRequest {
				assert.Contains(t, rec.Header().Get("Content-Type"), "application/problem+json")
			}
			if tt.check != nil {
				tt.check(t, decode(t, rec))
			}
		})
	}
}

func TestLicenseHandler_ActivationFlow(t *testing.T) {
	router := newTestRouter(newTestEngine(t), nil)

	rec := do(t, router, http.MethodPost, "/api/license/activate", `{"code":"sellerpro-2025"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	status := decode(t, do(t, router, http.MethodGet, "/api/license/status", ""))
	assert.Equal(t, "active", status["status"])
	assert.Equal(t, float64(365), status["daysRemaining"])

	// disabling the activated record disables the entitlement
	rec = do(t, router, http.MethodPut, "/api/license/catalog/lic-default-1/status", `{"status":"inactive"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	status = decode(t, do(t, router, http.MethodGet, "/api/license/status", ""))
	assert.Equal(t, "disabled", status["status"])
	assert.Equal(t, "SELLERPRO-2025", status["code"])
}

func TestLicenseHandler_ExportImportRoundTrip(t *testing.T) {
	source := newTestRouter(newTestEngine(t), nil)
	exported := decode(t, do(t, source, http.MethodGet, "/api/license/export", ""))
	assert.Equal(t, "base64", exported["format"])

	target := newTestRouter(newTestEngine(t), nil)
	require.Equal(t, http.StatusOK, do(t, target, http.MethodDelete, "/api/license/catalog/lic-default-2", "").Code)

	body, err := json.Marshal(ImportRequest{Text: exported["data"].(string), Mode: "replace"})
	require.NoError(t, err)
	rec := do(t, target, http.MethodPost, "/api/license/import", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	result := decode(t, rec)
	assert.Equal(t, float64(3), result["total"])
	assert.Equal(t, float64(2), result["previousTotal"])
}

func TestLicenseHandler_Reports(t *testing.T) {
	router := newTestRouter(newTestEngine(t), nil)

	rec := do(t, router, http.MethodGet, "/api/license/export.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Catalog")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	rec = do(t, router, http.MethodGet, "/api/license/export.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "SELLER-TRIAL-7")
}

func TestLicenseHandler_ActivateRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(0.01, 1, discardLogger())
	router := newTestRouter(newTestEngine(t), limiter)

	assert.Equal(t, http.StatusNotFound, do(t, router, http.MethodPost, "/api/license/activate", `{"code":"NOPE"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, router, http.MethodPost, "/api/license/activate", `{"code":"NOPE"}`).Code)

	// other routes are not throttled
	assert.Equal(t, http.StatusOK, do(t, router, http.MethodGet, "/api/license/status", "").Code)
}

type MockLicenseService struct {
	mock.Mock
}

func (m *MockLicenseService) GetCatalog(ctx context.Context) ([]license.LicenseRecord, error) {
	args := m.Called(ctx)
	list, _ := args.Get(0).([]license.LicenseRecord)
	return list, args.Error(1)
}

func (m *MockLicenseService) GetStatus(ctx context.Context) (license.EntitlementStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(license.EntitlementStatus), args.Error(1)
}

func (m *MockLicenseService) SaveLicense(ctx context.Context, payload license.LicensePayload) license.SaveResult {
	return m.Called(ctx, payload).Get(0).(license.SaveResult)
}

func (m *MockLicenseService) DeleteLicense(ctx context.Context, id string) license.LicenseResult {
	return m.Called(ctx, id).Get(0).(license.LicenseResult)
}

func (m *MockLicenseService) SetLicenseStatus(ctx context.Context, id string, status license.RecordStatus) license.LicenseResult {
	return m.Called(ctx, id, status).Get(0).(license.LicenseResult)
}

func (m *MockLicenseService) Activate(ctx context.Context, code string) license.ActivationResult {
	return m.Called(ctx, code).Get(0).(license.ActivationResult)
}

func (m *MockLicenseService) Deactivate(ctx context.Context) license.Result {
	return m.Called(ctx).Get(0).(license.Result)
}

func (m *MockLicenseService) ExportCatalog(ctx context.Context, format license.ExportFormat) (string, error) {
	args := m.Called(ctx, format)
	return args.String(0), args.Error(1)
}

func (m *MockLicenseService) ImportCatalog(ctx context.Context, text string, mode license.ImportMode) license.ImportResult {
	return m.Called(ctx, text, mode).Get(0).(license.ImportResult)
}

func TestLicenseHandler_StorageFailures(t *testing.T) {
	storageErr := apierrors.NewStorageError("failed to read license catalog", assert.AnError)

	service := new(MockLicenseService)
	service.On("GetCatalog", mock.Anything).Return(nil, storageErr)
	service.On("Deactivate", mock.Anything).Return(license.Result{Message: storageErr.Message, Err: storageErr})
	service.On("SetLicenseStatus", mock.Anything, "lic-1", license.RecordStatusInactive).
		Return(license.LicenseResult{Result: license.Result{Message: storageErr.Message, Err: storageErr}})

	router := newTestRouter(service, nil)

	for _, req := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/license/catalog", ""},
		{http.MethodPost, "/api/license/deactivate", ""},
		{http.MethodPut, "/api/license/catalog/lic-1/status", `{"status":"inactive"}`},
		{http.MethodGet, "/api/license/export.xlsx", ""},
	} {
		rec := do(t, router, req.method, req.path, req.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, req.path)

		body := decode(t, rec)
		assert.Equal(t, apierrors.TypeInternal, body["type"])
		assert.NotContains(t, body["detail"], "catalog", "storage details stay server side")
	}

	service.AssertExpectations(t)
}
