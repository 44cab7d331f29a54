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
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/xray/pkg/telemetry"
)

func TestIsTTY_NonFile(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestIsTTY_NoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("TERM", "xterm-256color")
	assert.False(t, IsTTY(&bytes.Buffer{}))
}

func TestEmitJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EmitJSON(&buf, map[string]any{"agent": "billing"}))

	assert.Equal(t, "{\n  \"agent\": \"billing\"\n}\n", buf.String())
	var v map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &v))
}

func TestWriteSessionTable_Plain(t *testing.T) {
	started := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	ended := started.Add(1500 * time.Millisecond)
	sessions := []telemetry.SessionSummary{
		{ID: "s2", Name: "router", Status: telemetry.StatusCompleted, StartedAt: started, EndedAt: &ended, StepCount: 3},
		{ID: "s1", Name: "filter", Status: telemetry.StatusRunning, StartedAt: started},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSessionTable(&buf, sessions, false))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID"))
	assert.Contains(t, lines[0], "DURATION")
	assert.Contains(t, lines[1], "router")
	assert.Contains(t, lines[1], "completed")
	assert.Contains(t, lines[1], "1.5s")
	assert.Contains(t, lines[2], "running")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(lines[2]), "-"))
}

func TestWriteSessionTable_Styled(t *testing.T) {
	sessions := []telemetry.SessionSummary{
		{ID: "s1", Name: "router", Status: telemetry.StatusFailed, StartedAt: time.Now()},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSessionTable(&buf, sessions, true))

	out := StripANSI(buf.String())
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "router")
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "╭")
}

func TestWriteSessionTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteSessionTable(&buf, nil, false))
	assert.Contains(t, buf.String(), "ID")
}

func TestRenderMarkdown(t *testing.T) {
	out, err := RenderMarkdown("**billing**", false)
	require.NoError(t, err)
	assert.Equal(t, "**billing**", out)

	out, err = RenderMarkdown("# Title\n\nbody", true)
	require.NoError(t, err)
	assert.Contains(t, StripANSI(out), "body")

	_, err = RenderMarkdown(strings.Repeat("x", maxMarkdownSize+1), true)
	assert.Error(t, err)
}

func TestStripANSI(t *testing.T) {
	assert.Equal(t, "red", StripANSI("\x1b[31mred\x1b[0m"))
}
