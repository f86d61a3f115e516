package errors

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHandler() *ErrorHandler {
	return NewErrorHandler(slog.New(slog.DiscardHandler), false)
}

func TestErrorHandler_HandleError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedType   string
		expectedDetail string
	}{
		{
			name:           "validation error",
			err:            NewValidationError("trial requires duration"),
			expectedStatus: http.StatusBadRequest,
			expectedType:   TypeValidation,
			expectedDetail: "trial requires duration",
		},
		{
			name:           "not found error",
			err:            NewNotFoundError("license not found"),
			expectedStatus: http.StatusNotFound,
			expectedType:   TypeNotFound,
			expectedDetail: "license not found",
		},
		{
			name:           "conflict error",
			err:            NewConflictError("license code already used"),
			expectedStatus: http.StatusConflict,
			expectedType:   TypeConflict,
			expectedDetail: "license code already used",
		},
		{
			name:           "decode error",
			err:            NewDecodeError("import payload could not be decoded", nil),
			expectedStatus: http.StatusUnprocessableEntity,
			expectedType:   TypeDecode,
			expectedDetail: "import payload could not be decoded",
		},
		{
			name:           "storage error hides detail",
			err:            NewStorageError("write catalog", errors.New("disk full")),
			expectedStatus: http.StatusInternalServerError,
			expectedType:   TypeInternal,
			expectedDetail: "An unexpected error occurred while processing your request",
		},
		{
			name:           "context deadline",
			err:            context.DeadlineExceeded,
			expectedStatus: http.StatusGatewayTimeout,
			expectedType:   TypeTimeout,
		},
		{
			name:           "plain error",
			err:            errors.New("boom"),
			expectedStatus: http.StatusInternalServerError,
			expectedType:   TypeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler()
			req := httptest.NewRequest(http.MethodPost, "/api/license/catalog", nil)
			rec := httptest.NewRecorder()

			h.HandleError(rec, req, tt.err)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.expectedType, body["type"])
			assert.Equal(t, float64(tt.expectedStatus), body["status"])
			assert.Equal(t, "/api/license/catalog", body["instance"])
			if tt.expectedDetail != "" {
				assert.Equal(t, tt.expectedDetail, body["detail"])
			}
		})
	}
}

func TestErrorHandler_HandleErrorNil(t *testing.T) {
	h := newTestHandler()
	rec := httptest.NewRecorder()
	h.HandleError(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestErrorHandler_ContextBecomesExtensions(t *testing.T) {
	h := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/license/catalog", nil)
	rec := httptest.NewRecorder()

	h.HandleError(rec, req, NewConflictError("duplicate").WithContext("code", "PREMIUM-999"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "PREMIUM-999", body["code"])
	assert.Equal(t, "CONFLICT", body["error_code"])
}

func TestErrorHandler_StandardResponses(t *testing.T) {
	h := newTestHandler()

	t.Run("not found", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.NotFound(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.MethodNotAllowed(rec, httptest.NewRequest(http.MethodPatch, "/api/license/status", nil))
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		assert.Contains(t, rec.Body.String(), "PATCH")
	})

	t.Run("bad request", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.BadRequest(rec, httptest.NewRequest(http.MethodPost, "/api/license/import", nil), "invalid JSON body")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid JSON body")
	})

	t.Run("panic", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.HandlePanic(rec, httptest.NewRequest(http.MethodGet, "/", nil), "nil map")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestErrorHandler_ProblemContentType(t *testing.T) {
	h := newTestHandler()

	responders := map[string]func(w http.ResponseWriter, r *http.Request){
		"handle error": func(w http.ResponseWriter, r *http.Request) {
			h.HandleError(w, r, NewNotFoundError("license not found"))
		},
		"not found":          h.NotFound,
		"method not allowed": h.MethodNotAllowed,
		"bad request": func(w http.ResponseWriter, r *http.Request) {
			h.BadRequest(w, r, "invalid JSON body")
		},
		"panic": func(w http.ResponseWriter, r *http.Request) {
			h.HandlePanic(w, r, "nil map")
		},
	}

	for name, respond := range responders {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			respond(rec, httptest.NewRequest(http.MethodGet, "/api/license/status", nil))

			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, float64(rec.Code), body["status"])
		})
	}
}

func TestProblemDetails_MarshalJSON(t *testing.T) {
	pd := NewProblemDetails(http.StatusConflict, TypeConflict, "Conflict", "", "").
		WithExtension("trace_id", "abc")

	data, err := json.Marshal(pd)
	require.NoError(t, err)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, "abc", body["trace_id"])
	assert.NotContains(t, body, "detail")
	assert.NotContains(t, body, "instance")
}
