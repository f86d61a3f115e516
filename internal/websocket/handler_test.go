package websocket

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sellerlicense/internal/config"
	"sellerlicense/internal/license"
)

func newTestServer(t *testing.T, origins []string) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(slog.New(slog.DiscardHandler), nil)
	hub.Start()

	handler := NewHandler(hub, config.WebSocketConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		PingPeriod:      time.Second,
		PongWait:        2 * time.Second,
	}, origins, slog.New(slog.DiscardHandler))

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return hub, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHandler_StreamsLicenseEvents(t *testing.T) {
	hub, srv := newTestServer(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, TypeConnection, env.Type)

	hub.BroadcastEvent(statusEvent("SELLERPRO-2025"))

	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, string(license.EventStatusChanged), env.Type)
	assert.Equal(t, "SELLERPRO-2025", env.Data.(map[string]any)["code"])
}

func TestHandler_Origin(t *testing.T) {
	_, srv := newTestServer(t, []string{"http://localhost:8080"})

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{"no origin", "", true},
		{"allowed origin", "http://localhost:8080", true},
		{"foreign origin", "http://evil.example", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			if tt.allowed {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestHandler_WildcardOrigin(t *testing.T) {
	_, srv := newTestServer(t, []string{"*"})

	header := http.Header{}
	header.Set("Origin", "http://anywhere.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
	require.NoError(t, err)
	conn.Close()
}

func TestHandler_RejectsPlainHTTP(t *testing.T) {
	_, srv := newTestServer(t, nil)

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
