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
	"time"

	"github.com/google/uuid"
)

func (st *Step) lock() {
	if st.mu != nil {
		st.mu.Lock()
	}
}

func (st *Step) unlock() {
	if st.mu != nil {
		st.mu.Unlock()
	}
}

func (st *Step) now() time.Time {
	if st.clock != nil {
		return st.clock()
	}
	return time.Now()
}

func (st *Step) newID() string {
	if st.ids != nil {
		return st.ids()
	}
	return uuid.NewString()
}

// SetInput replaces the step input.
func (st *Step) SetInput(v any) {
	st.lock()
	defer st.unlock()
	st.Input = v
}

// SetOutput replaces the step output.
func (st *Step) SetOutput(v any) {
	st.lock()
	defer st.unlock()
	st.Output = v
}

// SetReasoning sets the human-readable reasoning for the step.
func (st *Step) SetReasoning(reasoning string) {
	st.lock()
	defer st.unlock()
	st.Reasoning = &reasoning
}

// AddObservation appends o to the step. A missing ID is generated and
// empty child lists are normalized to nil. Observations with duplicate IDs
// are kept as separate entries.
func (st *Step) AddObservation(o Observation) {
	st.lock()
	defer st.unlock()
	st.Observations = append(st.Observations, st.normalize(o))
}

func (st *Step) normalize(o Observation) Observation {
	if o.ID == "" {
		o.ID = st.newID()
	}
	if len(o.Children) == 0 {
		o.Children = nil
		return o
	}
	children := make([]Observation, len(o.Children))
	for i := range o.Children {
		children[i] = st.normalize(o.Children[i])
	}
	o.Children = children
	return o
}

// AddEvent appends a timestamped event.
func (st *Step) AddEvent(typ EventType, message string, data any) {
	st.lock()
	defer st.unlock()
	st.Events = append(st.Events, Event{
		Timestamp: st.now(),
		Type:      typ,
		Message:   message,
		Data:      data,
	})
}

// LogInfo appends an info event.
func (st *Step) LogInfo(message string) {
	st.AddEvent(EventInfo, message, nil)
}

// LogWarning appends a warning event.
func (st *Step) LogWarning(message string) {
	st.AddEvent(EventWarning, message, nil)
}

// LogError appends an error event carrying err's message.
func (st *Step) LogError(message string, err error) {
	var data any
	if err != nil {
		data = map[string]any{"error": err.Error()}
	}
	st.AddEvent(EventError, message, data)
}

// LogDecision appends a decision event.
func (st *Step) LogDecision(message string, data any) {
	st.AddEvent(EventDecision, message, data)
}

// AddMetric sets a named metric; the last write for a name wins.
func (st *Step) AddMetric(name string, value float64) {
	st.lock()
	defer st.unlock()
	if st.Metrics == nil {
		st.Metrics = make(map[string]float64)
	}
	st.Metrics[name] = value
}

// Ended reports whether the step has been ended.
func (st *Step) Ended() bool {
	st.lock()
	defer st.unlock()
	return st.EndedAt != nil
}

// end freezes the duration. The caller holds the lock.
func (st *Step) end(at time.Time) bool {
	if st.EndedAt != nil {
		return false
	}
	st.EndedAt = &at
	ms := float64(at.Sub(st.StartedAt).Nanoseconds()) / 1e6
	st.DurationMs = &ms
	return true
}
