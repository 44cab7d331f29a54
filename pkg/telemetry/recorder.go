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

package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

// ErrNoSession is matched (via errors.Is) by the error StartStep returns
// when no session is current.
var ErrNoSession = errors.New("no current session")

// Recorder is the single-slot holder for the current Session.
// It is safe for concurrent use.
type Recorder struct {
	mu       sync.Mutex
	current  *Session
	exporter Exporter
	logger   *slog.Logger
	clock    func() time.Time
	ids      func() string
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithExporter sets the exporter used by ExportSession and ExportObservation.
func WithExporter(e Exporter) Option {
	return func(r *Recorder) {
		if e != nil {
			r.exporter = e
		}
	}
}

// WithLogger sets the logger for reported no-ops.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		if now != nil {
			r.clock = now
		}
	}
}

// WithIDGenerator overrides uuid generation for sessions, steps and observations.
func WithIDGenerator(gen func() string) Option {
	return func(r *Recorder) {
		if gen != nil {
			r.ids = gen
		}
	}
}

// NewRecorder creates a Recorder with no current session.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		exporter: NopExporter{},
		logger:   slog.Default(),
		clock:    time.Now,
		ids:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "telemetry")
	return r
}

// StartSession creates a running session and makes it current, replacing
// any previous current session.
func (r *Recorder) StartSession(name string, metadata map[string]any) *Session {
	s := &Session{
		ID:        r.ids(),
		Name:      name,
		StartedAt: r.clock(),
		Status:    StatusRunning,
		Metadata:  cloneMap(metadata),
		Steps:     []*Step{},
		mu:        &sync.Mutex{},
	}
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}

	r.mu.Lock()
	prev := r.current
	r.current = s
	r.mu.Unlock()

	if prev != nil {
		r.logger.Debug("replaced current session", "previous_session_id", prev.ID, "session_id", s.ID)
	}
	return s
}

// CurrentSession returns the live current session, or nil. Its ID and Name
// never change; read anything else through Clone.
func (r *Recorder) CurrentSession() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// ClearSession drops the current session without ending it.
func (r *Recorder) ClearSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = nil
}

// EndSession sets the end time and terminal status of the current session.
// It reports false, and logs, when there is no current session or the
// session has already ended.
func (r *Recorder) EndSession(status Status) bool {
	s := r.CurrentSession()
	if s == nil {
		r.logger.Warn("end session ignored: no current session")
		return false
	}
	if !status.Terminal() {
		status = StatusCompleted
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.EndedAt != nil {
		r.logger.Warn("end session ignored: already ended", "session_id", s.ID, "status", s.Status)
		return false
	}
	now := r.clock()
	s.EndedAt = &now
	s.Status = status
	return true
}

// StartStep appends a new step to the current session, started now.
func (r *Recorder) StartStep(name, typ string) (*Step, error) {
	return r.StartStepAt(name, typ, r.clock())
}

// StartStepAt appends a new step with an explicit start time. It fails with
// a *errors.PreconditionError wrapping ErrNoSession when no session is current.
func (r *Recorder) StartStepAt(name, typ string, start time.Time) (*Step, error) {
	s := r.CurrentSession()
	if s == nil {
		return nil, &pkgerrors.PreconditionError{
			Operation: "start step " + name,
			Reason:    "a session must be started first",
			Cause:     ErrNoSession,
		}
	}

	st := &Step{
		ID:           r.ids(),
		SessionID:    s.ID,
		Name:         name,
		Type:         typ,
		StartedAt:    start,
		Observations: []Observation{},
		Events:       []Event{},
		Metrics:      map[string]float64{},
		mu:           s.mu,
		session:      s,
		clock:        r.clock,
		ids:          r.ids,
	}

	s.mu.Lock()
	s.Steps = append(s.Steps, st)
	s.mu.Unlock()
	return st, nil
}

// EndStep ends the step now, freezing its duration.
func (r *Recorder) EndStep(st *Step) {
	r.EndStepAt(st, r.clock())
}

// EndStepAt ends the step at an explicit time. Ending twice is a logged no-op.
func (r *Recorder) EndStepAt(st *Step, end time.Time) {
	if st == nil {
		return
	}
	st.lock()
	ok := st.end(end)
	st.unlock()
	if !ok {
		r.logger.Warn("end step ignored: already ended", "step_id", st.ID, "session_id", st.SessionID)
	}
}

// ExportSession hands a snapshot of the current session to the exporter.
// It reports false, and logs, when there is no current session.
func (r *Recorder) ExportSession(ctx context.Context) bool {
	s := r.CurrentSession()
	if s == nil {
		r.logger.Warn("export session ignored: no current session")
		return false
	}
	r.exporter.ExportSession(ctx, s.Clone())
	return true
}

// ExportObservation hands a snapshot of one step, with its session context,
// to the exporter. A step started by this recorder is exported under the
// session it was started in, even if another session is current by now.
func (r *Recorder) ExportObservation(ctx context.Context, st *Step) bool {
	if st == nil {
		r.logger.Warn("export observation ignored: no step")
		return false
	}
	s := st.session
	if s == nil {
		s = r.CurrentSession()
	}
	if s == nil {
		r.logger.Warn("export observation ignored: no current session", "step_id", st.ID)
		return false
	}
	r.exporter.ExportObservation(ctx, ObservationRecord{
		SessionID:   s.ID,
		SessionName: s.Name,
		Step:        st.Clone(),
	})
	return true
}

// PrintSession renders the current session to w. It reports false, and
// logs, when there is no current session.
func (r *Recorder) PrintSession(w io.Writer) bool {
	s := r.CurrentSession()
	if s == nil {
		r.logger.Warn("print session ignored: no current session")
		return false
	}
	if err := WriteSession(w, s.Clone()); err != nil {
		r.logger.Warn("print session failed", "session_id", s.ID, "error", err)
		return false
	}
	return true
}
