package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/danmuck/scopectl/internal/debugger"
	"github.com/danmuck/scopectl/internal/protocol/schema"
	"github.com/danmuck/scopectl/internal/protocol/session"
	"github.com/danmuck/scopectl/internal/testutil/testlog"
	"github.com/danmuck/scopectl/internal/windows"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type offlineDispatcher struct{}

func (offlineDispatcher) Send(context.Context, schema.Command, []byte, time.Duration) ([]byte, error) {
	return nil, session.ErrConnClosed
}

func newTestAdmin(t *testing.T) (*Admin, *debugger.Debugger) {
	t.Helper()
	testlog.Start(t)
	gin.SetMode(gin.TestMode)

	wm := windows.NewManager(offlineDispatcher{}, time.Second)
	wm.AddWindow(session.WindowInfo{WindowID: 1, Title: "main", WindowType: "normal"})
	wm.AddWindow(session.WindowInfo{WindowID: 2, Title: "other", WindowType: "normal"})
	wm.SetActive(1)

	dbg, err := debugger.New(offlineDispatcher{}, wm, debugger.DefaultConfig())
	require.NoError(t, err)
	dbg.Registry().UpsertAll([]session.RuntimeInfo{
		{RuntimeID: 1, WindowID: 1, FramePath: "_top", URI: "http://example.test/"},
		{RuntimeID: 2, WindowID: 1, FramePath: "_top/frame"},
		{RuntimeID: 5, WindowID: 2, FramePath: "_top"},
	})
	return New("scopectl-test", "127.0.0.1:0", nil, dbg, wm), dbg
}

func do(t *testing.T, a *Admin, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)

	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func TestHealthAndReady(t *testing.T) {
	a, dbg := newTestAdmin(t)

	code, body := do(t, a, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "ok", body["status"])
	require.Equal(t, dbg.SessionID(), body["session"])

	code, body = do(t, a, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, false, body["ready"])

	_, err := dbg.ChangeRuntime("")
	require.NoError(t, err)
	code, _ = do(t, a, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, code)
}

func TestRuntimesAndFrames(t *testing.T) {
	a, _ := newTestAdmin(t)

	code, body := do(t, a, http.MethodGet, "/runtimes", "")
	require.Equal(t, http.StatusOK, code)
	require.Nil(t, body["active"])
	require.Len(t, body["runtimes"], 3)

	code, body = do(t, a, http.MethodGet, "/frames", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["window_id"])
	require.Equal(t, []any{"_top", "_top/frame"}, body["frames"])
}

func TestSelectRuntime(t *testing.T) {
	a, dbg := newTestAdmin(t)

	code, body := do(t, a, http.MethodPost, "/runtime", `{"frame_path":"frame"}`)
	require.Equal(t, http.StatusOK, code)
	active := body["active"].(map[string]any)
	require.Equal(t, float64(2), active["runtime_id"])
	require.Equal(t, uint32(2), dbg.RuntimeID())

	code, _ = do(t, a, http.MethodPost, "/runtime", `{"index":0}`)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, uint32(1), dbg.RuntimeID())

	code, body = do(t, a, http.MethodPost, "/runtime", `{"frame_path":"missing"}`)
	require.Equal(t, http.StatusNotFound, code)
	require.Contains(t, body["error"], "missing")
	require.Equal(t, uint32(1), dbg.RuntimeID())

	code, _ = do(t, a, http.MethodPost, "/runtime", `{"index":9}`)
	require.Equal(t, http.StatusNotFound, code)

	code, _ = do(t, a, http.MethodPost, "/runtime", `not json`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestWindows(t *testing.T) {
	a, _ := newTestAdmin(t)

	code, body := do(t, a, http.MethodGet, "/windows", "")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["active_window"])
	list := body["windows"].([]any)
	require.Len(t, list, 2)
	first := list[0].(map[string]any)
	require.Equal(t, "main", first["title"])
	require.Equal(t, true, first["active"])
}

func TestMetricsEndpoint(t *testing.T) {
	a, _ := newTestAdmin(t)
	do(t, a, http.MethodGet, "/health", "")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "scopectl_http_requests_total")
}

func TestServeStopsOnCancel(t *testing.T) {
	a, _ := newTestAdmin(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not stop")
	}
}
