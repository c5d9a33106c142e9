package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/smart-mirror/internal/component"
	"github.com/kingrea/smart-mirror/internal/dispatch"
	"github.com/kingrea/smart-mirror/internal/registry"
	"github.com/kingrea/smart-mirror/internal/stream"
	"github.com/kingrea/smart-mirror/internal/userconfig"
)

type memBackend struct {
	mu   sync.Mutex
	data []byte
	fail bool
}

func (m *memBackend) Read(context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return nil, userconfig.ErrNotFound
	}
	return m.data, nil
}

func (m *memBackend) Write(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("disk full")
	}
	m.data = append([]byte(nil), data...)
	return nil
}

func (m *memBackend) setFail(fail bool) {
	m.mu.Lock()
	m.fail = fail
	m.mu.Unlock()
}

const weatherManifest = `{"id": "weather", "name": "Weather", "version": "1.0.0", "description": "",
 "config": {"title": "Weather", "description": "", "fields": [
  {"key": "apiKey", "type": "password", "label": "API key", "description": ""},
  {"key": "units", "type": "select", "label": "Units", "description": "", "options": [{"value": "metric", "label": "Metric"}]}
 ]}}`

func manifestJSON(id string) []byte {
	return []byte(fmt.Sprintf(`{"id": %q, "name": %q, "version": "1.0.0", "description": "", "config": {"title": "", "description": "", "fields": []}}`, id, id))
}

type fixture struct {
	server  *Server
	http    *httptest.Server
	backend *memBackend
	hub     *stream.Hub
	prom    *prometheus.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	handlers := map[string]component.Handler{
		"weather": func(_ context.Context, s component.Settings, r *http.Request) (any, error) {
			return map[string]any{"temp": 21, "units": s.String("units"), "method": r.Method}, nil
		},
		"calendar": func(context.Context, component.Settings, *http.Request) (any, error) {
			return component.Fail(component.AuthRequiredMessage), nil
		},
		"boom": func(context.Context, component.Settings, *http.Request) (any, error) {
			return nil, errors.New("boom")
		},
	}
	fsys := fstest.MapFS{
		"clock/manifest.json":    {Data: manifestJSON("clock")},
		"weather/manifest.json":  {Data: []byte(weatherManifest)},
		"calendar/manifest.json": {Data: manifestJSON("calendar")},
		"boom/manifest.json":     {Data: manifestJSON("boom")},
	}
	reg := registry.New(registry.WithSource(registry.Source{
		Kind: component.SourceBuiltin,
		FS:   fsys,
		Resolver: registry.ResolverFunc(func(_ fs.FS, _ string, id string) (component.Handler, error) {
			return handlers[id], nil
		}),
	}))
	backend := &memBackend{data: []byte(`{"dashboard": {"components": [{"id": "clock", "enabled": true, "area": "top-left"}]}, "components": {"weather": {"units": "metric"}}}`)}
	store := userconfig.NewStore(backend, reg)
	hub := stream.NewHub()
	prom := prometheus.NewRegistry()
	srv := New(Settings{Host: "127.0.0.1", MaxBodyBytes: 4096}, Deps{
		Registry: reg,
		Store:    store,
		Proxy:    dispatch.New(reg, store),
		Hub:      hub,
		Version:  "test",
	}, WithMetrics(prom, prom))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hub.Close()
		ts.Close()
	})
	return &fixture{server: srv, http: ts, backend: backend, hub: hub, prom: prom}
}

func (f *fixture) do(t *testing.T, method, path string, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, f.http.URL+path, reader)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestServerLifecycle(t *testing.T) {
	fixed := time.Unix(1730000000, 0).UTC()
	srv := New(Settings{Host: "127.0.0.1", Port: 0}, Deps{Registry: registry.New(), Version: "1.2.3"},
		WithClock(func() time.Time { return fixed }))
	assert.Equal(t, StatusStarting, srv.Status())
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	assert.Equal(t, StatusReady, srv.Status())
	assert.NotEmpty(t, srv.Addr())
	require.Error(t, srv.Start(context.Background()))

	resp, err := http.Get(srv.BaseURL() + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", health.Status)
	assert.Equal(t, "1.2.3", health.Version)

	require.NoError(t, srv.Shutdown(context.Background()))
	assert.Equal(t, StatusDraining, srv.Status())
	assert.Empty(t, srv.Addr())
}

func TestManifestsOmitHandlers(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/components/manifests", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed struct {
		Components []map[string]json.RawMessage `json:"components"`
	}
	require.NoError(t, json.Unmarshal(body, &parsed))
	var ids []string
	for _, c := range parsed.Components {
		var id string
		require.NoError(t, json.Unmarshal(c["id"], &id))
		ids = append(ids, id)
		assert.Contains(t, c, "manifest")
		assert.NotContains(t, c, "handler")
	}
	assert.Equal(t, []string{"boom", "calendar", "clock", "weather"}, ids)
}

func TestComponentDispatch(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		method string
		id     string
		status int
		body   string
	}{
		{http.MethodGet, "weather", http.StatusOK, `{"temp":21,"units":"metric","method":"GET"}`},
		{http.MethodPost, "weather", http.StatusOK, `{"temp":21,"units":"metric","method":"POST"}`},
		{http.MethodDelete, "weather", http.StatusOK, `{"temp":21,"units":"metric","method":"DELETE"}`},
		{http.MethodGet, "nonexistent", http.StatusNotFound, ""},
		{http.MethodGet, "clock", http.StatusNotFound, ""},
		{http.MethodGet, "calendar", http.StatusUnauthorized, `{"error":"Not authenticated"}`},
		{http.MethodPut, "boom", http.StatusInternalServerError, `{"error":"boom"}`},
	}
	for _, tc := range cases {
		t.Run(tc.method+" "+tc.id, func(t *testing.T) {
			resp, body := f.do(t, tc.method, "/api/components/"+tc.id, "")
			assert.Equal(t, tc.status, resp.StatusCode)
			assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
			if tc.body != "" {
				assert.JSONEq(t, tc.body, string(body))
			}
		})
	}
}

func TestGetConfigIsReconciled(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/api/config", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg userconfig.UserConfig
	require.NoError(t, json.Unmarshal(body, &cfg))
	var ids []string
	for _, entry := range cfg.Dashboard.Components {
		ids = append(ids, entry.ID)
	}
	assert.Equal(t, []string{"clock", "boom", "calendar", "weather"}, ids)
	assert.Contains(t, string(f.backend.data), `"boom"`, "reconciliation should be written back")
}

func TestPutConfigMergesSavesAndBroadcasts(t *testing.T) {
	f := newFixture(t)
	sub := f.hub.Subscribe()
	defer sub.Close()

	resp, body := f.do(t, http.MethodPut, "/api/config", `{"components": {"clock": {"format": "24h"}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var saved saveResponse
	require.NoError(t, json.Unmarshal(body, &saved))
	assert.True(t, saved.Success)
	assert.Equal(t, "24h", saved.Config.Components["clock"]["format"])
	assert.Equal(t, "metric", saved.Config.Components["weather"]["units"], "other settings are preserved")
	assert.Len(t, saved.Config.Dashboard.Components, 4)

	select {
	case event := <-sub.Events:
		assert.Equal(t, stream.TypeConfigChanged, event.Type)
	case <-time.After(time.Second):
		t.Fatal("expected config-changed notification")
	}

	var onDisk userconfig.UserConfig
	require.NoError(t, json.Unmarshal(f.backend.data, &onDisk))
	assert.Equal(t, "24h", onDisk.Components["clock"]["format"])
}

func TestPutConfigErrors(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodPut, "/api/config", `{not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/config", `{"dashboard": {"components": [{"id": "clock", "enabled": true, "area": "ceiling"}]}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodPut, "/api/config", strings.Repeat(" ", 5000)+`{}`)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)

	f.backend.setFail(true)
	resp, body := f.do(t, http.MethodPut, "/api/config", `{"components": {"clock": {"format": "12h"}}}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"Failed to save config"}`, string(body))
}

func TestValidateEndpoint(t *testing.T) {
	f := newFixture(t)

	resp, _ := f.do(t, http.MethodGet, "/api/config/validate", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = f.do(t, http.MethodGet, "/api/config/validate?component=nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := f.do(t, http.MethodGet, "/api/config/validate?component=weather", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"valid":true}`, string(body))

	resp, _ = f.do(t, http.MethodPut, "/api/config", `{"components": {"weather": {"units": "kelvin", "apiKey": 42}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body = f.do(t, http.MethodGet, "/api/config/validate?component=weather", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result validateResponse
	require.NoError(t, json.Unmarshal(body, &result))
	assert.False(t, result.Valid)
	require.Len(t, result.Problems, 2)
	assert.Equal(t, "apiKey", result.Problems[0].Key)
	assert.Equal(t, "units", result.Problems[1].Key)
}

func TestStreamDeliversNotifications(t *testing.T) {
	f := newFixture(t)
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/api/config/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	var first stream.Event
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, stream.TypeConnected, first.Type)

	require.Eventually(t, func() bool { return f.hub.Len() == 1 }, time.Second, 10*time.Millisecond)
	f.hub.Publish(stream.TypeComponentsReloaded)

	var next stream.Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, stream.TypeComponentsReloaded, next.Type)
	assert.NotEmpty(t, next.ID)

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.Eventually(t, func() bool { return f.hub.Len() == 0 }, time.Second, 10*time.Millisecond)
}

func TestRequestIDAndMetrics(t *testing.T) {
	f := newFixture(t)
	req, err := http.NewRequest(http.MethodGet, f.http.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "abc-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "abc-123", resp.Header.Get(RequestIDHeader))

	resp, _ = f.do(t, http.MethodGet, "/health", "")
	assert.Len(t, resp.Header.Get(RequestIDHeader), 36)

	f.do(t, http.MethodGet, "/api/components/weather", "")
	resp, body := f.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `mirror_http_requests_total{method="GET",route="/api/components/{id}",status="200"} 1`)
}

func TestRecovererReturnsJSON(t *testing.T) {
	srv := New(Settings{}, Deps{})
	handler := srv.recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"kaboom"}`, rec.Body.String())
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)
	resp, body := f.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte("not found")))
}
