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

package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/xray/internal/tracing"
	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/telemetry"
)

type received struct {
	method  string
	path    string
	session string
	body    []byte
}

type collectorStub struct {
	mu       sync.Mutex
	requests []received
	status   int
	release  chan struct{}
}

func (c *collectorStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if c.release != nil {
		<-c.release
	}
	body, _ := io.ReadAll(r.Body)
	c.mu.Lock()
	c.requests = append(c.requests, received{
		method:  r.Method,
		path:    r.URL.Path,
		session: r.Header.Get(tracing.SessionHeader),
		body:    body,
	})
	c.mu.Unlock()

	status := c.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"success":true}`))
}

func (c *collectorStub) snapshot() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.requests...)
}

func newRecorderSession(t *testing.T) (*telemetry.Recorder, *telemetry.Step) {
	t.Helper()
	rec := telemetry.NewRecorder()
	rec.StartSession("pipeline", map[string]any{"env": "test"})
	step, err := rec.StartStep("filter", "llm")
	require.NoError(t, err)
	step.SetInput(map[string]any{"prompt": "hi"})
	rec.EndStep(step)
	return rec, step
}

func waitFor(t *testing.T, e *Exporter) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Wait(ctx))
}

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(Config{})
	var cfgErr *pkgerrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "collector.url", cfgErr.Key)
}

func TestExporter_ExportSession(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	e, err := New(Config{URL: srv.URL + "/"})
	require.NoError(t, err)

	rec, _ := newRecorderSession(t)
	session := rec.CurrentSession().Clone()
	e.ExportSession(context.Background(), session)
	waitFor(t, e)

	reqs := stub.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodPost, reqs[0].method)
	assert.Equal(t, "/sessions", reqs[0].path)
	assert.Equal(t, session.ID, reqs[0].session)

	var got telemetry.Session
	require.NoError(t, json.Unmarshal(reqs[0].body, &got))
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, "pipeline", got.Name)
	require.Len(t, got.Steps, 1)
	assert.Equal(t, "filter", got.Steps[0].Name)
}

func TestExporter_ExportObservation(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	e, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	rec, step := newRecorderSession(t)
	e.ExportObservation(context.Background(), telemetry.ObservationRecord{
		SessionID:   step.SessionID,
		SessionName: "pipeline",
		Step:        step.Clone(),
	})
	waitFor(t, e)

	reqs := stub.snapshot()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/observations", reqs[0].path)

	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].body, &body))
	assert.Equal(t, rec.CurrentSession().ID, body["sessionId"])
	assert.Equal(t, "pipeline", body["sessionName"])
	stepBody, ok := body["step"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, step.ID, stepBody["id"])
}

func TestExporter_DoesNotBlockCaller(t *testing.T) {
	stub := &collectorStub{release: make(chan struct{})}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	e, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	rec, _ := newRecorderSession(t)

	done := make(chan struct{})
	go func() {
		e.ExportSession(context.Background(), rec.CurrentSession().Clone())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("ExportSession blocked on the network")
	}

	close(stub.release)
	waitFor(t, e)
	assert.Len(t, stub.snapshot(), 1)
}

func TestExporter_FailuresAreLoggedAndDropped(t *testing.T) {
	stub := &collectorStub{status: http.StatusInternalServerError}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	var logs bytes.Buffer
	var mu sync.Mutex
	logger := slog.New(slog.NewTextHandler(&lockedWriter{w: &logs, mu: &mu}, nil))

	e, err := New(Config{URL: srv.URL}, WithLogger(logger))
	require.NoError(t, err)

	rec, _ := newRecorderSession(t)
	e.ExportSession(context.Background(), rec.CurrentSession().Clone())
	waitFor(t, e)

	assert.Len(t, stub.snapshot(), 1, "POST is not retried")
	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, logs.String(), "export failed")
	assert.Contains(t, logs.String(), "collector returned 500")
}

func TestExporter_UnreachableCollector(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e, err := New(Config{URL: url, Timeout: time.Second})
	require.NoError(t, err)

	rec, _ := newRecorderSession(t)
	assert.NotPanics(t, func() {
		e.ExportSession(context.Background(), rec.CurrentSession().Clone())
	})
	waitFor(t, e)
}

func TestExporter_CanceledCallerContext(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	e, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	rec, _ := newRecorderSession(t)
	e.ExportSession(ctx, rec.CurrentSession().Clone())
	cancel()
	waitFor(t, e)

	assert.Len(t, stub.snapshot(), 1)
}

func TestExporter_WithRecorder(t *testing.T) {
	stub := &collectorStub{}
	srv := httptest.NewServer(stub)
	defer srv.Close()

	e, err := New(Config{URL: srv.URL})
	require.NoError(t, err)

	rec := telemetry.NewRecorder(telemetry.WithExporter(e))
	rec.StartSession("pipeline", nil)
	step, err := rec.StartStep("route", "llm")
	require.NoError(t, err)
	rec.EndStep(step)

	assert.True(t, rec.ExportObservation(context.Background(), step))
	assert.True(t, rec.EndSession(telemetry.StatusCompleted))
	assert.True(t, rec.ExportSession(context.Background()))
	waitFor(t, e)

	paths := map[string]int{}
	for _, r := range stub.snapshot() {
		paths[r.path]++
	}
	assert.Equal(t, map[string]int{"/sessions": 1, "/observations": 1}, paths)
}

type lockedWriter struct {
	w  io.Writer
	mu *sync.Mutex
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
