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

package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/tombee/xray/pkg/telemetry"
)

var sessionHeaders = []string{"ID", "NAME", "STATUS", "STEPS", "STARTED", "DURATION"}

// WriteSessionTable writes session summaries as a table. Terminals get a
// bordered, colored table; anything else gets tab-aligned columns.
func WriteSessionTable(w io.Writer, sessions []telemetry.SessionSummary, tty bool) error {
	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		rows = append(rows, []string{
			s.ID,
			s.Name,
			string(s.Status),
			fmt.Sprintf("%d", s.StepCount),
			s.StartedAt.Local().Format(time.DateTime),
			summaryDuration(s),
		})
	}

	if !tty {
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for i, h := range sessionHeaders {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, h)
		}
		fmt.Fprintln(tw)
		for _, r := range rows {
			for i, col := range r {
				if i > 0 {
					fmt.Fprint(tw, "\t")
				}
				fmt.Fprint(tw, col)
			}
			fmt.Fprintln(tw)
		}
		return tw.Flush()
	}

	re := lipgloss.NewRenderer(w)
	header := re.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	cell := re.NewStyle().Padding(0, 1)
	statusStyles := map[telemetry.Status]lipgloss.Style{
		telemetry.StatusRunning:   cell.Foreground(lipgloss.Color("214")),
		telemetry.StatusCompleted: cell.Foreground(lipgloss.Color("42")),
		telemetry.StatusFailed:    cell.Foreground(lipgloss.Color("196")),
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(re.NewStyle().Foreground(lipgloss.Color("245"))).
		Headers(sessionHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			if col == 2 && row >= 0 && row < len(sessions) {
				if st, ok := statusStyles[sessions[row].Status]; ok {
					return st
				}
			}
			return cell
		})

	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func summaryDuration(s telemetry.SessionSummary) string {
	if s.EndedAt == nil {
		return "-"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Millisecond).String()
}
