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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

type captureExporter struct {
	mu           sync.Mutex
	sessions     []*Session
	observations []ObservationRecord
}

func (c *captureExporter) ExportSession(_ context.Context, s *Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, s)
}

func (c *captureExporter) ExportObservation(_ context.Context, rec ObservationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observations = append(c.observations, rec)
}

// fakeClock advances by step on every call.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.now
	f.now = f.now.Add(f.step)
	return t
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func newTestRecorder(t *testing.T) (*Recorder, *captureExporter, *bytes.Buffer) {
	t.Helper()
	exp := &captureExporter{}
	logs := &bytes.Buffer{}
	clock := &fakeClock{now: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), step: time.Second}
	rec := NewRecorder(
		WithExporter(exp),
		WithLogger(slog.New(slog.NewTextHandler(logs, nil))),
		WithClock(clock.Now),
		WithIDGenerator(sequentialIDs()),
	)
	return rec, exp, logs
}

func TestStartStep_RequiresSession(t *testing.T) {
	rec, _, _ := newTestRecorder(t)

	step, err := rec.StartStep("classify", "llm")
	require.Error(t, err)
	assert.Nil(t, step)
	assert.True(t, errors.Is(err, ErrNoSession))

	var pre *pkgerrors.PreconditionError
	require.True(t, errors.As(err, &pre))
	assert.Contains(t, pre.Operation, "classify")
}

func TestStartSession_ReplacesCurrent(t *testing.T) {
	rec, _, _ := newTestRecorder(t)

	first := rec.StartSession("first", map[string]any{"env": "test"})
	second := rec.StartSession("second", nil)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Same(t, second, rec.CurrentSession())
	assert.Equal(t, StatusRunning, second.Status)
	assert.NotNil(t, second.Metadata)
	assert.Nil(t, first.EndedAt, "replacing a session does not end it")

	rec.ClearSession()
	assert.Nil(t, rec.CurrentSession())
}

func TestEndSession_Twice(t *testing.T) {
	rec, exp, logs := newTestRecorder(t)
	rec.StartSession("run", nil)

	require.True(t, rec.EndSession(StatusCompleted))
	firstEnd := *rec.CurrentSession().Clone().EndedAt

	assert.False(t, rec.EndSession(StatusFailed))
	snap := rec.CurrentSession().Clone()
	assert.Equal(t, firstEnd, *snap.EndedAt)
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Contains(t, logs.String(), "already ended")

	require.True(t, rec.ExportSession(context.Background()))
	require.Len(t, exp.sessions, 1)

	data, err := json.Marshal(exp.sessions[0])
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "completed", decoded["status"])
}

func TestEndSession_NoSession(t *testing.T) {
	rec, _, logs := newTestRecorder(t)

	assert.False(t, rec.EndSession(StatusCompleted))
	assert.False(t, rec.ExportSession(context.Background()))
	assert.False(t, rec.PrintSession(&bytes.Buffer{}))
	assert.Contains(t, logs.String(), "no current session")
}

func TestEndSession_NonTerminalStatusDefaultsToCompleted(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)

	require.True(t, rec.EndSession(StatusRunning))
	assert.Equal(t, StatusCompleted, rec.CurrentSession().Clone().Status)
}

func TestEndStepAt_FreezesDuration(t *testing.T) {
	rec, _, logs := newTestRecorder(t)
	rec.StartSession("run", nil)

	start := time.Unix(0, 1_000_000_100)
	end := time.Unix(0, 1_000_000_900)

	step, err := rec.StartStepAt("span", "auto_instrumented", start)
	require.NoError(t, err)
	assert.Nil(t, step.DurationMs, "duration undefined before end")

	rec.EndStepAt(step, end)
	require.NotNil(t, step.DurationMs)
	assert.Equal(t, 0.0008, *step.DurationMs)

	rec.EndStepAt(step, end.Add(time.Hour))
	assert.Equal(t, 0.0008, *step.DurationMs)
	assert.Equal(t, end, *step.EndedAt)
	assert.Contains(t, logs.String(), "already ended")
}

func TestSteps_AppendInOrder(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	s := rec.StartSession("run", nil)

	for _, name := range []string{"a", "b", "c"} {
		st, err := rec.StartStep(name, "filter")
		require.NoError(t, err)
		assert.Equal(t, s.ID, st.SessionID)
	}

	snap := s.Clone()
	require.Len(t, snap.Steps, 3)
	assert.Equal(t, "a", snap.Steps[0].Name)
	assert.Equal(t, "c", snap.Steps[2].Name)
}

func TestAddObservation_DuplicateIDsKept(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)
	step, err := rec.StartStep("filter", "filter")
	require.NoError(t, err)

	step.AddObservation(Observation{ID: "obs-1", Type: "candidate", Label: "first"})
	step.AddObservation(Observation{ID: "obs-1", Type: "candidate", Label: "second"})

	require.Len(t, step.Observations, 2)
	assert.Equal(t, "first", step.Observations[0].Label)
	assert.Equal(t, "second", step.Observations[1].Label)
}

func TestAddObservation_Normalizes(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)
	step, err := rec.StartStep("filter", "filter")
	require.NoError(t, err)

	step.AddObservation(Observation{
		Type:     "group",
		Children: []Observation{{Type: "leaf", Children: []Observation{}}},
	})

	o := step.Observations[0]
	assert.NotEmpty(t, o.ID)
	require.Len(t, o.Children, 1)
	assert.NotEmpty(t, o.Children[0].ID)
	assert.Nil(t, o.Children[0].Children)

	data, err := json.Marshal(o)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"result":null`)
	assert.Contains(t, string(data), `"score":null`)
}

func TestAddMetric_LastWriteWins(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)
	step, err := rec.StartStep("score", "llm")
	require.NoError(t, err)

	step.AddMetric("tokens", 10)
	step.AddMetric("tokens", 42)
	step.AddMetric("latency", 1.5)

	assert.Equal(t, map[string]float64{"tokens": 42, "latency": 1.5}, step.Metrics)
}

func TestEvents(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)
	step, err := rec.StartStep("route", "llm")
	require.NoError(t, err)

	step.LogInfo("started")
	step.LogWarning("slow")
	step.LogError("failed", errors.New("boom"))
	step.LogDecision("picked", map[string]any{"agent": "email"})

	require.Len(t, step.Events, 4)
	types := []EventType{step.Events[0].Type, step.Events[1].Type, step.Events[2].Type, step.Events[3].Type}
	assert.Equal(t, []EventType{EventInfo, EventWarning, EventError, EventDecision}, types)
	assert.Equal(t, map[string]any{"error": "boom"}, step.Events[2].Data)
	assert.False(t, step.Events[0].Timestamp.IsZero())
}

func TestSetters(t *testing.T) {
	rec, _, _ := newTestRecorder(t)
	rec.StartSession("run", nil)
	step, err := rec.StartStep("route", "llm")
	require.NoError(t, err)

	step.SetInput(map[string]any{"prompt": "hi"})
	step.SetOutput("answer")
	step.SetReasoning("because")

	assert.Equal(t, map[string]any{"prompt": "hi"}, step.Input)
	assert.Equal(t, "answer", step.Output)
	require.NotNil(t, step.Reasoning)
	assert.Equal(t, "because", *step.Reasoning)
}

func TestExportObservation(t *testing.T) {
	rec, exp, _ := newTestRecorder(t)
	s := rec.StartSession("pipeline", nil)
	step, err := rec.StartStep("route", "llm")
	require.NoError(t, err)
	rec.EndStep(step)

	require.True(t, rec.ExportObservation(context.Background(), step))
	require.Len(t, exp.observations, 1)

	got := exp.observations[0]
	assert.Equal(t, s.ID, got.SessionID)
	assert.Equal(t, "pipeline", got.SessionName)
	assert.Equal(t, step.ID, got.Step.ID)
	assert.NotSame(t, step, got.Step, "exporter receives a snapshot")
}

func TestExportObservation_UsesOwningSession(t *testing.T) {
	rec, exp, _ := newTestRecorder(t)
	first := rec.StartSession("first", nil)
	step, err := rec.StartStep("route", "llm")
	require.NoError(t, err)

	rec.StartSession("second", nil)
	rec.EndStep(step)

	require.True(t, rec.ExportObservation(context.Background(), step))
	require.Len(t, exp.observations, 1)
	assert.Equal(t, first.ID, exp.observations[0].SessionID)
	assert.Equal(t, "first", exp.observations[0].SessionName)
}

func TestConcurrentRecording(t *testing.T) {
	rec := NewRecorder()
	rec.StartSession("concurrent", nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			step, err := rec.StartStep(fmt.Sprintf("step-%d", i), "llm")
			if err != nil {
				t.Error(err)
				return
			}
			for j := 0; j < 10; j++ {
				step.LogInfo("tick")
				step.AddMetric("j", float64(j))
				step.AddObservation(Observation{Type: "tick"})
			}
			_ = rec.CurrentSession().Clone()
			rec.EndStep(step)
		}(i)
	}
	wg.Wait()

	snap := rec.CurrentSession().Clone()
	require.Len(t, snap.Steps, 20)
	for _, st := range snap.Steps {
		assert.Len(t, st.Events, 10)
		assert.Len(t, st.Observations, 10)
		assert.NotNil(t, st.DurationMs)
	}
}
