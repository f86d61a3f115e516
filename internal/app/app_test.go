package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellerlicense/internal/config"
	"sellerlicense/internal/license"
	ws "sellerlicense/internal/websocket"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Storage.Backend = config.BackendMemory
	cfg.Storage.Watch = false
	cfg.Security.AllowedOrigins = nil
	cfg.Telemetry.Environment = "test"
	return cfg
}

func newTestApplication(t *testing.T, cfg *config.Config) (*Application, *httptest.Server) {
	t.Helper()
	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	a.WebSocketHub.Start()
	require.NoError(t, a.Engine.Start(context.Background()))

	srv := httptest.NewServer(a.Router)
	t.Cleanup(func() {
		srv.Close()
		a.Stop(context.Background())
	})
	return a, srv
}

func getJSON(t *testing.T, url string, dst any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	return resp
}

func TestNew(t *testing.T) {
	a, _ := newTestApplication(t, testConfig(t))

	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.WebSocketHub)
	assert.NotNil(t, a.Router)
	assert.Equal(t, ":0", a.Server.Addr)
	assert.Equal(t, "seller-tools-license-catalog", a.Engine.Keys().Catalog)
}

func TestNewApplication_FromConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "server:\n  port: 18080\nstorage:\n  backend: memory\nlicense:\n  key_prefix: acme\n  seed_default: false\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	a, err := NewApplication(path)
	require.NoError(t, err)
	defer a.Stop(context.Background())

	assert.Equal(t, "acme-catalog", a.Engine.Keys().Catalog)
	catalog, err := a.Engine.GetCatalog(context.Background())
	require.NoError(t, err)
	assert.Empty(t, catalog)
}

func TestRouter_HealthAndCatalog(t *testing.T) {
	_, srv := newTestApplication(t, testConfig(t))

	var health map[string]any
	resp := getJSON(t, srv.URL+"/healthz", &health)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, Version, health["version"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var catalog map[string]any
	resp = getJSON(t, srv.URL+"/api/license/catalog", &catalog)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, catalog["licenses"])

	var problem map[string]any
	resp = getJSON(t, srv.URL+"/api/license/missing", &problem)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
}

func TestRouter_Metrics(t *testing.T) {
	_, srv := newTestApplication(t, testConfig(t))

	resp, err := http.Get(srv.URL + "/api/license/status")
	require.NoError(t, err)
	resp.Body.Close()

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "http_requests_total")
}

func TestWebSocket_ReceivesEngineEvents(t *testing.T) {
	_, srv := newTestApplication(t, testConfig(t))

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))

	// connection frame, then the cached catalog and status
	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, ws.TypeConnection, env.Type)
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(license.EventCatalogChanged), env.Type)
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(license.EventStatusChanged), env.Type)

	resp, err := http.Post(srv.URL+"/api/license/activate", "application/json",
		strings.NewReader(`{"code":"SELLERPRO-2025"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	seen := map[string]bool{}
	for !seen[string(license.EventStatusChanged)] {
		require.NoError(t, conn.ReadJSON(&env))
		seen[env.Type] = true
	}
	data, ok := env.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "active", data["status"])
	assert.Equal(t, "SELLERPRO-2025", data["code"])
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRefreshOnChange_IgnoresUnrelatedKeys(t *testing.T) {
	a, _ := newTestApplication(t, testConfig(t))

	var events []license.Event
	unsubscribe := a.Engine.Bus().Subscribe(func(e license.Event) {
		events = append(events, e)
	})
	defer unsubscribe()

	refresh := a.refreshOnChange(context.Background())
	refresh([]string{"unrelated"})
	refresh([]string{a.Engine.Keys().Catalog})

	// Nothing changed in the store, so refresh has nothing to publish.
	assert.Empty(t, events)
}
