package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hectormc-main/casa-playgroundServer/broadcast"
	"github.com/hectormc-main/casa-playgroundServer/feature"
	"github.com/hectormc-main/casa-playgroundServer/game"
	"github.com/hectormc-main/casa-playgroundServer/models"
	"github.com/hectormc-main/casa-playgroundServer/monitor"
	"github.com/hectormc-main/casa-playgroundServer/network"
	"github.com/hectormc-main/casa-playgroundServer/persistence"
	"github.com/hectormc-main/casa-playgroundServer/session"
	"github.com/hectormc-main/casa-playgroundServer/state"
)

type testEnv struct {
	server  *httptest.Server
	manager *state.Manager
	monitor *monitor.Monitor
}

func newTestEnv(t *testing.T, load bool) *testEnv {
	t.Helper()

	store, err := persistence.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	mon, err := monitor.NewMonitor("test")
	require.NoError(t, err)

	hub := broadcast.NewHub(session.NewManager())
	manager, err := state.NewManager(state.Options{
		Store:     store,
		Monitor:   mon,
		Publisher: hub,
	})
	require.NoError(t, err)
	if load {
		manager.Load(context.Background())
	}
	t.Cleanup(manager.Close)

	srv, err := NewStateServer(Options{State: manager, Hub: hub, Monitor: mon, WatchQueue: 8})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.CloseAll()
		ts.Close()
	})
	return &testEnv{server: ts, manager: manager, monitor: mon}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	resp, err := e.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestFeatureRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodGet, "/features", "")
	require.Equal(t, http.StatusOK, status)
	var all map[string]feature.State
	require.NoError(t, json.Unmarshal(body, &all))
	assert.Len(t, all, len(feature.DefaultCatalog()))

	status, _ = env.do(t, http.MethodGet, "/features/teleport", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodPut, "/features/chat", `{"enabled":false}`)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = env.do(t, http.MethodGet, "/features/chat", "")
	require.Equal(t, http.StatusOK, status)
	var chat feature.State
	require.NoError(t, json.Unmarshal(body, &chat))
	assert.False(t, chat.Enabled)

	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"unknown feature", "/features/teleport", `{"enabled":true}`, http.StatusNotFound},
		{"unknown feature with malformed body", "/features/teleport", `{"enabled":`, http.StatusNotFound},
		{"out of range option", "/features/leaderboard", `{"enabled":true,"options":{"size":500}}`, http.StatusBadRequest},
		{"unknown option", "/features/chat", `{"enabled":true,"options":{"colour":"red"}}`, http.StatusBadRequest},
		{"malformed body", "/features/chat", `{"enabled":`, http.StatusBadRequest},
		{"unknown body field", "/features/chat", `{"enabled":true,"extra":1}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, http.MethodPut, tt.path, tt.body)
			assert.Equal(t, tt.status, status, string(body))
		})
	}

	status, _ = env.do(t, http.MethodPost, "/features/reset", "")
	assert.Equal(t, http.StatusNoContent, status)
	got, _ := env.manager.GetFeature(feature.Chat)
	assert.True(t, got.Enabled)
}

func TestGameRoutes(t *testing.T) {
	env := newTestEnv(t, true)

	status, _ := env.do(t, http.MethodGet, "/game", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = env.do(t, http.MethodDelete, "/game", "")
	assert.Equal(t, http.StatusConflict, status)

	status, body := env.do(t, http.MethodPost, "/game", `{"name":"g1","settings":{"x":1}}`)
	require.Equal(t, http.StatusCreated, status, string(body))
	var started game.Game
	require.NoError(t, json.Unmarshal(body, &started))
	assert.Equal(t, "g1", started.Name)
	assert.NotEmpty(t, started.ID)

	status, _ = env.do(t, http.MethodPost, "/game", `{"name":"g2"}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPut, "/game", `{"name":"g1","settings":{"x":2}}`)
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodPut, "/game", `{"name":"g2","settings":{}}`)
	assert.Equal(t, http.StatusConflict, status)

	status, _ = env.do(t, http.MethodPut, "/game", `{"name":"g1","settings":[1]}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = env.do(t, http.MethodGet, "/game", "")
	require.Equal(t, http.StatusOK, status)
	var current game.Game
	require.NoError(t, json.Unmarshal(body, &current))
	assert.Equal(t, started.ID, current.ID)
	assert.Equal(t, json.Number("2"), current.Settings["x"])

	status, _ = env.do(t, http.MethodDelete, "/game", "")
	assert.Equal(t, http.StatusNoContent, status)

	status, _ = env.do(t, http.MethodGet, "/game", "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestStartGame_Invalid(t *testing.T) {
	env := newTestEnv(t, true)

	for _, body := range []string{`{"name":""}`, `{"name":"g","settings":"x"}`, `not json`} {
		status, _ := env.do(t, http.MethodPost, "/game", body)
		assert.Equal(t, http.StatusBadRequest, status, body)
	}
	_, ok := env.manager.CurrentGame()
	assert.False(t, ok)
}

func TestNotReady(t *testing.T) {
	env := newTestEnv(t, false)

	status, _ := env.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, status)

	status, _ = env.do(t, http.MethodPut, "/features/chat", `{"enabled":false}`)
	assert.Equal(t, http.StatusServiceUnavailable, status)

	// reads serve defaults before load
	status, _ = env.do(t, http.MethodGet, "/features/chat", "")
	assert.Equal(t, http.StatusOK, status)
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, true)

	status, body := env.do(t, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, status)
	var health state.Health
	require.NoError(t, json.Unmarshal(body, &health))
	assert.True(t, health.Ready)
	assert.False(t, health.Dirty)

	env.do(t, http.MethodPost, "/features/reset", "")

	status, body = env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `test_operations_total{operation="reset_features",result="applied"} 1`)
}

func TestWebSocket_HelloAndEvents(t *testing.T) {
	env := newTestEnv(t, true)

	url := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	read := func() network.Envelope {
		t.Helper()
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, data, err := conn.ReadMessage()
		require.NoError(t, err)
		var msg network.Envelope
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	}

	first := read()
	require.Equal(t, network.MsgTypeHello, first.Type)
	var greeting hello
	require.NoError(t, json.Unmarshal(first.Data, &greeting))
	assert.NotEmpty(t, greeting.Session)
	assert.Len(t, greeting.Features, len(feature.DefaultCatalog()))
	assert.Nil(t, greeting.Game)

	status, _ := env.do(t, http.MethodPost, "/game", `{"name":"g1"}`)
	require.Equal(t, http.StatusCreated, status)

	next := read()
	require.Equal(t, network.MsgTypeEvent, next.Type)
	var event models.Event
	require.NoError(t, json.Unmarshal(next.Data, &event))
	assert.Equal(t, models.EventGameStarted, event.Type)
	require.NotNil(t, event.Game)
	assert.Equal(t, "g1", event.Game.Name)
}
