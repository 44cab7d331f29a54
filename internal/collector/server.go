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
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/xray/internal/tracing"
	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/telemetry"
)

// maxBodyBytes bounds ingestion request bodies.
const maxBodyBytes = 10 << 20

// Server serves the collector API over a Store.
type Server struct {
	store          Store
	logger         *slog.Logger
	metrics        *tracing.MetricsCollector
	metricsHandler http.Handler
	limiter        *rate.Limiter
	cors           CORSConfig
	startTime      time.Time
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records rate-limit rejections and exposes h at /metrics.
func WithMetrics(mc *tracing.MetricsCollector, h http.Handler) ServerOption {
	return func(s *Server) {
		s.metrics = mc
		s.metricsHandler = h
	}
}

// WithRateLimit limits API requests to rps per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) ServerOption {
	return func(s *Server) {
		if rps <= 0 {
			s.limiter = nil
			return
		}
		if burst <= 0 {
			burst = int(rps)
			if burst < 1 {
				burst = 1
			}
		}
		s.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithCORS enables CORS for the given configuration.
func WithCORS(cfg CORSConfig) ServerOption {
	return func(s *Server) {
		s.cors = cfg
	}
}

// NewServer creates a collector server backed by store.
func NewServer(store Store, opts ...ServerOption) *Server {
	s := &Server{
		store:     store,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "collector")
	s.metrics.SetSessionCounter(store)
	return s
}

// RegisterRoutes registers the collector API routes on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions", s.handlePutSession)
	mux.HandleFunc("DELETE /sessions/{id}", s.handleDeleteSession)
	mux.HandleFunc("DELETE /sessions", s.handleDeleteAllSessions)
	mux.HandleFunc("POST /observations", s.handlePutObservation)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
}

// Handler returns the full middleware chain around the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	var h http.Handler = mux
	h = rateLimitMiddleware(s.limiter, s.metrics)(h)
	h = corsMiddleware(s.cors)(h)
	h = accessLogMiddleware(s.logger)(h)
	return tracing.HTTPMiddleware(h)
}

// ListenAndServe serves on addr until ctx is canceled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("collector listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("collector shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

func (s *Server) handlePutSession(w http.ResponseWriter, r *http.Request) {
	var sess telemetry.Session
	if err := decodeBody(w, r, &sess); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	if err := s.store.PutSession(r.Context(), &sess); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	s.logger.Debug("session stored", "session_id", sess.ID, "steps", len(sess.Steps))
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "id": sess.ID})
}

func (s *Server) handlePutObservation(w http.ResponseWriter, r *http.Request) {
	var rec telemetry.ObservationRecord
	if err := decodeBody(w, r, &rec); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	if err := s.store.PutObservation(r.Context(), rec); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	s.logger.Debug("observation stored", "session_id", rec.SessionID, "step_id", rec.Step.ID)
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleDeleteAllSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.DeleteAllSessions(r.Context())
	if err != nil {
		writeStoreError(w, s.logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

// HealthResponse is the response format for /healthz.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Uptime    string            `json:"uptime,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{"runtime": runtime.Version()}
	status, code := "healthy", http.StatusOK

	if n, err := s.store.SessionCount(r.Context()); err != nil {
		checks["store"] = err.Error()
		status, code = "unhealthy", http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
		checks["sessions"] = strconv.Itoa(n)
	}

	WriteJSON(w, code, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &pkgerrors.ValidationError{Field: "body", Message: "invalid JSON: " + err.Error()}
	}
	return nil
}
