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
	"fmt"
	"sort"
	"strings"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/telemetry"
)

// Store persists sessions for the collector. Implementations must be safe
// for concurrent use and must not retain caller-owned sessions.
type Store interface {
	// ListSessions returns summaries sorted by start time, newest first.
	ListSessions(ctx context.Context) ([]telemetry.SessionSummary, error)

	// GetSession returns the session or a *errors.NotFoundError.
	GetSession(ctx context.Context, id string) (*telemetry.Session, error)

	// PutSession inserts or replaces a session by id.
	PutSession(ctx context.Context, s *telemetry.Session) error

	// PutObservation upserts one step into its session, creating a running
	// session shell when the id is unknown.
	PutObservation(ctx context.Context, rec telemetry.ObservationRecord) error

	// DeleteSession removes a session or returns a *errors.NotFoundError.
	DeleteSession(ctx context.Context, id string) error

	// DeleteAllSessions removes every session and reports how many there were.
	DeleteAllSessions(ctx context.Context) (int, error)

	// SessionCount reports how many sessions are stored.
	SessionCount(ctx context.Context) (int, error)

	// Close releases resources held by the store.
	Close() error
}

// ValidateSession checks the fields the collector keys and lists by.
func ValidateSession(s *telemetry.Session) error {
	if s == nil {
		return &pkgerrors.ValidationError{Field: "body", Message: "session is required"}
	}
	if strings.TrimSpace(s.ID) == "" {
		return &pkgerrors.ValidationError{Field: "id", Message: "session id is required"}
	}
	if strings.TrimSpace(s.Name) == "" {
		return &pkgerrors.ValidationError{Field: "name", Message: "session name is required"}
	}
	for i, st := range s.Steps {
		if st == nil {
			return &pkgerrors.ValidationError{Field: "steps", Message: fmt.Sprintf("step %d is null", i)}
		}
	}
	return nil
}

// ValidateObservation checks an incremental step upload.
func ValidateObservation(rec telemetry.ObservationRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return &pkgerrors.ValidationError{Field: "sessionId", Message: "session id is required"}
	}
	if rec.Step == nil {
		return &pkgerrors.ValidationError{Field: "step", Message: "step is required"}
	}
	if strings.TrimSpace(rec.Step.ID) == "" {
		return &pkgerrors.ValidationError{Field: "step.id", Message: "step id is required"}
	}
	return nil
}

func notFound(id string) error {
	return &pkgerrors.NotFoundError{Resource: "session", ID: id}
}

// mergeObservation applies rec to s, which may be nil. The step replaces an
// existing step with the same id, otherwise it is appended.
func mergeObservation(s *telemetry.Session, rec telemetry.ObservationRecord) *telemetry.Session {
	step := rec.Step.Clone()
	step.SessionID = rec.SessionID

	if s == nil {
		name := rec.SessionName
		if name == "" {
			name = rec.SessionID
		}
		return &telemetry.Session{
			ID:        rec.SessionID,
			Name:      name,
			StartedAt: step.StartedAt,
			Status:    telemetry.StatusRunning,
			Metadata:  map[string]any{},
			Steps:     []*telemetry.Step{step},
		}
	}

	for i, existing := range s.Steps {
		if existing != nil && existing.ID == step.ID {
			s.Steps[i] = step
			return s
		}
	}
	s.Steps = append(s.Steps, step)
	if s.Name == "" && rec.SessionName != "" {
		s.Name = rec.SessionName
	}
	return s
}

func sortSummaries(out []telemetry.SessionSummary) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
}
