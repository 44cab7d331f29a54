// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/xray/internal/tracing"
	"github.com/tombee/xray/pkg/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, opts ...ServerOption) (*httptest.Server, Store) {
	t.Helper()
	store := NewMemoryStore()
	opts = append([]ServerOption{WithLogger(quietLogger())}, opts...)
	srv := httptest.NewServer(NewServer(store, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func doRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestServer_PutAndGetSession(t *testing.T) {
	srv, _ := newTestServer(t)
	started := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	resp := postJSON(t, srv.URL+"/sessions", testSession("s1", "pipeline", started, testStep("st1", "s1", "filter")))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "s1", body["id"])

	resp = doRequest(t, http.MethodGet, srv.URL+"/sessions/s1")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	got := decode[telemetry.Session](t, resp)
	assert.Equal(t, "pipeline", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "filter", got.Steps[0].Name)
}

func TestServer_ListSessionsNewestFirst(t *testing.T) {
	srv, _ := newTestServer(t)
	base := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	postJSON(t, srv.URL+"/sessions", testSession("a", "first", base))
	postJSON(t, srv.URL+"/sessions", testSession("b", "second", base.Add(2*time.Minute)))
	postJSON(t, srv.URL+"/sessions", testSession("c", "third", base.Add(time.Minute)))

	resp := doRequest(t, http.MethodGet, srv.URL+"/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]telemetry.SessionSummary](t, resp)
	require.Len(t, list, 3)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, "c", list[1].ID)
	assert.Equal(t, "a", list[2].ID)
}

func TestServer_ListSessionsEmptyIsArray(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/sessions")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestServer_GetMissingSession(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/sessions/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := decode[ErrorResponse](t, resp)
	assert.Contains(t, body.Error, "missing")
}

func TestServer_PutSessionValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "invalid json", body: "{not json", field: "body"},
		{name: "missing id", body: `{"name":"x"}`, field: "id"},
		{name: "missing name", body: `{"id":"x"}`, field: "name"},
		{name: "null step", body: `{"id":"a","name":"b","steps":[null]}`, field: "steps"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/sessions", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body := decode[ErrorResponse](t, resp)
			assert.Equal(t, tt.field, body.Field)
		})
	}
}

func TestServer_Observations(t *testing.T) {
	srv, store := newTestServer(t)

	resp := postJSON(t, srv.URL+"/observations", telemetry.ObservationRecord{
		SessionID:   "s1",
		SessionName: "router",
		Step:        testStep("st1", "s1", "route"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/observations", telemetry.ObservationRecord{
		SessionID:   "s1",
		SessionName: "router",
		Step:        testStep("st1", "s1", "route-updated"),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, err := store.GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "router", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "route-updated", got.Steps[0].Name)

	resp = postJSON(t, srv.URL+"/observations", map[string]any{"sessionId": "s1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_DeleteSessions(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, store.PutSession(ctx, testSession("a", "a", time.Now())))
	require.NoError(t, store.PutSession(ctx, testSession("b", "b", time.Now())))
	require.NoError(t, store.PutSession(ctx, testSession("c", "c", time.Now())))

	resp := doRequest(t, http.MethodDelete, srv.URL+"/sessions/a")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/sessions/a")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = doRequest(t, http.MethodDelete, srv.URL+"/sessions")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, float64(2), body["deleted"])

	n, err := store.SessionCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodPut, srv.URL+"/sessions")
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_Health(t *testing.T) {
	srv, store := newTestServer(t)
	require.NoError(t, store.PutSession(context.Background(), testSession("a", "a", time.Now())))

	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "ok", health.Checks["store"])
	assert.Equal(t, "1", health.Checks["sessions"])
}

func TestServer_HealthUnhealthyStore(t *testing.T) {
	store, err := NewSQLiteStore(SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	srv := httptest.NewServer(NewServer(store, WithLogger(quietLogger())).Handler())
	defer srv.Close()

	resp := doRequest(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	health := decode[HealthResponse](t, resp)
	assert.Equal(t, "unhealthy", health.Status)
}

func TestServer_RateLimit(t *testing.T) {
	srv, _ := newTestServer(t, WithRateLimit(0.001, 1))

	resp := doRequest(t, http.MethodGet, srv.URL+"/sessions")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = doRequest(t, http.MethodGet, srv.URL+"/sessions")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	resp = doRequest(t, http.MethodGet, srv.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_CORS(t *testing.T) {
	srv, _ := newTestServer(t, WithCORS(CORSConfig{AllowedOrigins: []string{"*.example.com"}}))

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://ui.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://ui.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Headers"), tracing.SessionHeader)
	assert.Equal(t, "86400", resp.Header.Get("Access-Control-Max-Age"))

	req, err = http.NewRequest(http.MethodGet, srv.URL+"/sessions", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.test")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()

	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Empty(t, resp2.Header.Get("Access-Control-Allow-Origin"))
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		origin  string
		allowed []string
		want    bool
	}{
		{"http://localhost:3000", []string{"*"}, true},
		{"http://localhost:3000", []string{"http://localhost:3000"}, true},
		{"https://a.example.com", []string{"*.example.com"}, true},
		{"https://example.org", []string{"*.example.com"}, false},
		{"http://localhost:3000", nil, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, isOriginAllowed(tt.origin, tt.allowed), tt.origin)
	}
}

func TestServer_Metrics(t *testing.T) {
	provider, err := tracing.NewOTelProvider("xray-collector-test", "dev")
	require.NoError(t, err)
	t.Cleanup(func() { provider.Shutdown(context.Background()) })

	srv, store := newTestServer(t, WithMetrics(provider.MetricsCollector(), provider.MetricsHandler()))
	require.NoError(t, store.PutSession(context.Background(), testSession("a", "a", time.Now())))

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "xray_collector_sessions")
}

func TestServer_NoMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := doRequest(t, http.MethodGet, srv.URL+"/metrics")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	s := NewServer(NewMemoryStore(), WithLogger(quietLogger()))

	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
