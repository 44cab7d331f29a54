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
	"sync"
	"time"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether s ends a session.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// EventType classifies a Step event.
type EventType string

const (
	EventInfo     EventType = "info"
	EventWarning  EventType = "warning"
	EventError    EventType = "error"
	EventDecision EventType = "decision"
)

// Session is one telemetry run. It owns its Steps.
type Session struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	StartedAt time.Time      `json:"startedAt"`
	EndedAt   *time.Time     `json:"endedAt"`
	Status    Status         `json:"status"`
	Metadata  map[string]any `json:"metadata"`
	Steps     []*Step        `json:"steps"`

	mu *sync.Mutex
}

// Step is one unit of work inside a Session.
type Step struct {
	ID           string             `json:"id"`
	SessionID    string             `json:"sessionId"`
	Name         string             `json:"name"`
	Type         string             `json:"type"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      *time.Time         `json:"endedAt"`
	DurationMs   *float64           `json:"durationMs"`
	Input        any                `json:"input"`
	Output       any                `json:"output"`
	Reasoning    *string            `json:"reasoning"`
	Observations []Observation      `json:"observations"`
	Events       []Event            `json:"events"`
	Metrics      map[string]float64 `json:"metrics"`

	// mu is the owning session's lock; nil for detached copies.
	mu      *sync.Mutex
	session *Session
	clock   func() time.Time
	ids     func() string
}

// Observation is something examined or decided during a Step. Children
// are held by value, so an observation tree cannot contain cycles.
type Observation struct {
	ID       string        `json:"id"`
	Type     string        `json:"type"`
	Label    string        `json:"label"`
	Data     any           `json:"data"`
	Result   *string       `json:"result"`
	Reason   *string       `json:"reason"`
	Score    *float64      `json:"score"`
	Children []Observation `json:"children"`
}

// Event is a timestamped note attached to a Step.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
}

// ObservationRecord is the body of an incremental per-step export.
type ObservationRecord struct {
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
	Step        *Step  `json:"step"`
}

// SessionSummary is the list view of a Session.
type SessionSummary struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	StartedAt time.Time  `json:"startedAt"`
	EndedAt   *time.Time `json:"endedAt"`
	Status    Status     `json:"status"`
	StepCount int        `json:"stepCount"`
}

// Summary returns the list view of s.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		EndedAt:   s.EndedAt,
		Status:    s.Status,
		StepCount: len(s.Steps),
	}
}

// Clone returns a deep copy of the session that shares no mutable state
// with s. The copy is detached: recording on its steps does not lock.
func (s *Session) Clone() *Session {
	if s.mu != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return s.cloneLocked()
}

func (s *Session) cloneLocked() *Session {
	c := &Session{
		ID:        s.ID,
		Name:      s.Name,
		StartedAt: s.StartedAt,
		EndedAt:   cloneTime(s.EndedAt),
		Status:    s.Status,
		Metadata:  cloneMap(s.Metadata),
	}
	if s.Steps != nil {
		c.Steps = make([]*Step, len(s.Steps))
		for i, st := range s.Steps {
			c.Steps[i] = st.cloneLocked()
		}
	}
	return c
}

// Clone returns a detached deep copy of the step. A nil step clones to nil.
func (st *Step) Clone() *Step {
	if st == nil {
		return nil
	}
	st.lock()
	defer st.unlock()
	return st.cloneLocked()
}

func (st *Step) cloneLocked() *Step {
	if st == nil {
		return nil
	}
	c := &Step{
		ID:         st.ID,
		SessionID:  st.SessionID,
		Name:       st.Name,
		Type:       st.Type,
		StartedAt:  st.StartedAt,
		EndedAt:    cloneTime(st.EndedAt),
		DurationMs: clonePtr(st.DurationMs),
		Input:      cloneValue(st.Input),
		Output:     cloneValue(st.Output),
		Reasoning:  clonePtr(st.Reasoning),
	}
	if st.Observations != nil {
		c.Observations = make([]Observation, len(st.Observations))
		for i := range st.Observations {
			c.Observations[i] = st.Observations[i].Clone()
		}
	}
	if st.Events != nil {
		c.Events = make([]Event, len(st.Events))
		for i, e := range st.Events {
			e.Data = cloneValue(e.Data)
			c.Events[i] = e
		}
	}
	if st.Metrics != nil {
		c.Metrics = make(map[string]float64, len(st.Metrics))
		for k, v := range st.Metrics {
			c.Metrics[k] = v
		}
	}
	return c
}

// Clone returns a deep copy of the observation tree rooted at o.
func (o Observation) Clone() Observation {
	c := o
	c.Data = cloneValue(o.Data)
	c.Result = clonePtr(o.Result)
	c.Reason = clonePtr(o.Reason)
	c.Score = clonePtr(o.Score)
	if o.Children != nil {
		c.Children = make([]Observation, len(o.Children))
		for i := range o.Children {
			c.Children[i] = o.Children[i].Clone()
		}
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	return clonePtr(t)
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	c := make(map[string]any, len(m))
	for k, v := range m {
		c[k] = cloneValue(v)
	}
	return c
}

// cloneValue copies the JSON-shaped containers (maps and slices) of a
// payload. Other values are treated as immutable.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		c := make([]any, len(val))
		for i, e := range val {
			c[i] = cloneValue(e)
		}
		return c
	case []string:
		return append([]string(nil), val...)
	default:
		return v
	}
}
