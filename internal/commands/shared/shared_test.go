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

package shared

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	pkgerrors "github.com/tombee/xray/pkg/errors"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: ExitSuccess},
		{name: "plain", err: errors.New("boom"), want: ExitFailed},
		{name: "exit error", err: NewExitError(7, "custom", nil), want: 7},
		{name: "provider exit error", err: NewProviderError("call failed", errors.New("x")), want: ExitProviderError},
		{name: "config", err: &pkgerrors.ConfigError{Key: "collector.url", Reason: "bad"}, want: ExitConfigError},
		{name: "wrapped not found", err: fmt.Errorf("get: %w", &pkgerrors.NotFoundError{Resource: "session", ID: "x"}), want: ExitNotFound},
		{name: "provider", err: &pkgerrors.ProviderError{Provider: "openai", Message: "down"}, want: ExitProviderError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewExitError(ExitFailed, "export failed", cause)

	assert.Equal(t, "export failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "plain", NewExitError(1, "plain", nil).Error())
}

func TestPrintError(t *testing.T) {
	var buf bytes.Buffer
	PrintError(&buf, errors.New("session not found: x"))
	assert.Equal(t, "Error: session not found: x\n", buf.String())
}

func TestVersion(t *testing.T) {
	SetVersion("1.2.3", "abc", "2025-01-01")
	defer SetVersion("dev", "unknown", "unknown")

	v, c, b := GetVersion()
	assert.Equal(t, "1.2.3", v)
	assert.Equal(t, "abc", c)
	assert.Equal(t, "2025-01-01", b)
}
