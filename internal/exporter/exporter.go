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

// Package exporter pushes sessions and per-step observations to the
// collector over HTTP. Every push runs in its own goroutine; failures are
// logged and dropped, never retried or queued.
package exporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tombee/xray/internal/tracing"
	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/httpclient"
	"github.com/tombee/xray/pkg/telemetry"
)

// Export kinds, used in logs and metrics.
const (
	KindSession     = "session"
	KindObservation = "observation"
)

// Config configures the collector exporter.
type Config struct {
	// URL is the collector base URL, e.g. "http://localhost:3001".
	URL string

	// Timeout bounds a single push (default: 10s).
	Timeout time.Duration

	// UserAgent overrides the HTTP User-Agent header.
	UserAgent string
}

// Exporter implements telemetry.Exporter against the collector API.
type Exporter struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
	metrics atomic.Pointer[tracing.MetricsCollector]

	wg sync.WaitGroup
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Exporter) {
		e.client = c
	}
}

// WithLogger sets the logger for export failures.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exporter) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records every export attempt.
func WithMetrics(mc *tracing.MetricsCollector) Option {
	return func(e *Exporter) {
		e.metrics.Store(mc)
	}
}

// New creates an exporter for the collector at cfg.URL.
func New(cfg Config, opts ...Option) (*Exporter, error) {
	if cfg.URL == "" {
		return nil, &pkgerrors.ConfigError{Key: "collector.url", Reason: "collector URL is required"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	e := &Exporter{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		timeout: cfg.Timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "exporter")

	if e.client == nil {
		hc := httpclient.DefaultConfig()
		hc.Timeout = cfg.Timeout
		hc.RetryAttempts = 0
		hc.Logger = e.logger
		if cfg.UserAgent != "" {
			hc.UserAgent = cfg.UserAgent
		}
		client, err := httpclient.New(hc)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		e.client = client
	}
	return e, nil
}

// SetMetrics sets the metrics collector after construction.
func (e *Exporter) SetMetrics(mc *tracing.MetricsCollector) {
	e.metrics.Store(mc)
}

// ExportSession posts the full session to /sessions.
func (e *Exporter) ExportSession(ctx context.Context, s *telemetry.Session) {
	if s == nil {
		return
	}
	e.send(ctx, KindSession, "/sessions", s.ID, s)
}

// ExportObservation posts one step with its session context to /observations.
func (e *Exporter) ExportObservation(ctx context.Context, rec telemetry.ObservationRecord) {
	e.send(ctx, KindObservation, "/observations", rec.SessionID, rec)
}

// Wait blocks until in-flight pushes finish or ctx is done.
func (e *Exporter) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Exporter) send(ctx context.Context, kind, path, sessionID string, body any) {
	// Payloads are detached snapshots, but encoding here keeps the caller's
	// view at call time.
	data, err := json.Marshal(body)
	if err != nil {
		e.logger.Warn("export dropped: encode failed", "kind", kind, "session_id", sessionID, "error", err)
		e.record(ctx, kind, "error")
		return
	}

	// The push outlives the caller's context.
	ctx = tracing.ContextWithSessionID(context.WithoutCancel(ctx), sessionID)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.post(ctx, path, data); err != nil {
			e.logger.Warn("export failed", "kind", kind, "session_id", sessionID, "error", err)
			e.record(ctx, kind, "error")
			return
		}
		e.logger.Debug("exported", "kind", kind, "session_id", sessionID, "bytes", len(data))
		e.record(ctx, kind, "success")
	}()
}

func (e *Exporter) post(ctx context.Context, path string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collector returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (e *Exporter) record(ctx context.Context, kind, status string) {
	e.metrics.Load().RecordExport(ctx, kind, status)
}

var _ telemetry.Exporter = (*Exporter)(nil)
