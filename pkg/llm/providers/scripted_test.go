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

package providers

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/llm"
)

func TestScriptedProvider_CyclesResponses(t *testing.T) {
	p := NewScriptedProvider("", "first", "second")
	ctx := context.Background()

	var got []string
	for i := 0; i < 3; i++ {
		resp, err := p.Complete(ctx, llm.UserPrompt("", "q"))
		require.NoError(t, err)
		got = append(got, resp.Content)
	}
	assert.Equal(t, []string{"first", "second", "first"}, got)
	assert.Len(t, p.Requests(), 3)
}

func TestScriptedProvider_Error(t *testing.T) {
	p := NewScriptedProvider("m", "x")
	p.Err = errors.New("upstream down")

	_, err := p.Complete(context.Background(), llm.UserPrompt("", "q"))
	assert.Same(t, p.Err, err)
}

func TestScriptedProvider_Stream(t *testing.T) {
	p := NewScriptedProvider("m", "one two three")

	chunks, err := p.Stream(context.Background(), llm.UserPrompt("", "q"))
	require.NoError(t, err)

	var b strings.Builder
	var usage *llm.TokenUsage
	for c := range chunks {
		b.WriteString(c.Delta)
		if c.Usage != nil {
			usage = c.Usage
		}
	}
	assert.Equal(t, "one two three", b.String())
	require.NotNil(t, usage)
	assert.Equal(t, 3, usage.OutputTokens)
}

func TestRegisteredFactories(t *testing.T) {
	assert.Contains(t, llm.Names(), "openai")
	assert.Contains(t, llm.Names(), "scripted")

	p, err := llm.New("scripted", llm.ProviderConfig{Responses: []string{"AGENT: email"}})
	require.NoError(t, err)
	assert.Equal(t, "scripted", p.Name())

	_, err = llm.New("scripted", llm.ProviderConfig{})
	var cfgErr *pkgerrors.ConfigError
	assert.True(t, errors.As(err, &cfgErr))
}
