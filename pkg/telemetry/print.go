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
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

const maxPayloadWidth = 120

type sessionStyles struct {
	header, muted, ok, warn, fail, info, decision lipgloss.Style
}

func newSessionStyles(r *lipgloss.Renderer) sessionStyles {
	return sessionStyles{
		header:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("39")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("245")),
		ok:       r.NewStyle().Foreground(lipgloss.Color("42")),
		warn:     r.NewStyle().Foreground(lipgloss.Color("214")),
		fail:     r.NewStyle().Foreground(lipgloss.Color("196")),
		info:     r.NewStyle().Foreground(lipgloss.Color("39")),
		decision: r.NewStyle().Bold(true).Foreground(lipgloss.Color("170")),
	}
}

// WriteSession renders s as a tree of steps to w. Colors are used only
// when w is a terminal that supports them.
func WriteSession(w io.Writer, s *Session) error {
	st := newSessionStyles(lipgloss.NewRenderer(w))
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s %s %s\n",
		st.header.Render("Session "+s.Name),
		st.muted.Render(s.ID),
		st.status(s.Status),
		st.muted.Render(sessionDuration(s)),
	)
	if len(s.Metadata) > 0 {
		fmt.Fprintf(&b, "  %s %s\n", st.muted.Render("metadata:"), compact(s.Metadata))
	}

	for i, step := range s.Steps {
		branch, indent := "├─", "│  "
		if i == len(s.Steps)-1 {
			branch, indent = "└─", "   "
		}
		writeStep(&b, st, step, branch, indent)
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeStep(b *strings.Builder, st sessionStyles, step *Step, branch, indent string) {
	dur := "running"
	if step.DurationMs != nil {
		dur = formatMs(*step.DurationMs)
	}
	fmt.Fprintf(b, "%s %s %s %s\n", branch, st.header.Render(step.Name), st.muted.Render(step.Type), st.muted.Render(dur))

	if step.Input != nil {
		fmt.Fprintf(b, "%s%s %s\n", indent, st.muted.Render("input:"), compact(step.Input))
	}
	if step.Output != nil {
		fmt.Fprintf(b, "%s%s %s\n", indent, st.muted.Render("output:"), compact(step.Output))
	}
	if step.Reasoning != nil {
		fmt.Fprintf(b, "%s%s %s\n", indent, st.muted.Render("reasoning:"), *step.Reasoning)
	}
	for _, o := range step.Observations {
		writeObservation(b, st, o, indent+"  ")
	}
	for _, e := range step.Events {
		fmt.Fprintf(b, "%s  %s %s %s\n", indent, st.muted.Render(e.Timestamp.Format(time.TimeOnly)), st.event(e.Type), e.Message)
	}
	if len(step.Metrics) > 0 {
		names := make([]string, 0, len(step.Metrics))
		for name := range step.Metrics {
			names = append(names, name)
		}
		sort.Strings(names)
		parts := make([]string, len(names))
		for i, name := range names {
			parts[i] = fmt.Sprintf("%s=%g", name, step.Metrics[name])
		}
		fmt.Fprintf(b, "%s%s %s\n", indent, st.muted.Render("metrics:"), strings.Join(parts, " "))
	}
}

func writeObservation(b *strings.Builder, st sessionStyles, o Observation, indent string) {
	line := "• " + o.Type
	if o.Label != "" {
		line += " " + o.Label
	}
	if o.Result != nil {
		line += " result=" + *o.Result
	}
	if o.Score != nil {
		line += fmt.Sprintf(" score=%.2f", *o.Score)
	}
	fmt.Fprintf(b, "%s%s\n", indent, st.info.Render(line))
	if o.Reason != nil {
		fmt.Fprintf(b, "%s  %s %s\n", indent, st.muted.Render("reason:"), *o.Reason)
	}
	for _, c := range o.Children {
		writeObservation(b, st, c, indent+"  ")
	}
}

// RenderSession returns the rendering of s without color.
func RenderSession(s *Session) string {
	var b strings.Builder
	_ = WriteSession(&b, s)
	return b.String()
}

func (st sessionStyles) status(s Status) string {
	switch s {
	case StatusCompleted:
		return st.ok.Render("[" + string(s) + "]")
	case StatusFailed:
		return st.fail.Render("[" + string(s) + "]")
	default:
		return st.warn.Render("[" + string(s) + "]")
	}
}

func (st sessionStyles) event(t EventType) string {
	label := strings.ToUpper(string(t))
	switch t {
	case EventWarning:
		return st.warn.Render(label)
	case EventError:
		return st.fail.Render(label)
	case EventDecision:
		return st.decision.Render(label)
	default:
		return st.info.Render(label)
	}
}

func sessionDuration(s *Session) string {
	if s.EndedAt == nil {
		return "in progress"
	}
	return formatMs(float64(s.EndedAt.Sub(s.StartedAt).Nanoseconds()) / 1e6)
}

func formatMs(ms float64) string {
	if ms >= 1000 {
		return fmt.Sprintf("%.2fs", ms/1000)
	}
	return fmt.Sprintf("%.3gms", ms)
}

func compact(v any) string {
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else if data, err := json.Marshal(v); err == nil {
		s = string(data)
	} else {
		s = fmt.Sprint(v)
	}
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > maxPayloadWidth {
		s = string(r[:maxPayloadWidth-3]) + "..."
	}
	return s
}
