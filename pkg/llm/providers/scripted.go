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
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/llm"
)

// ScriptedProvider replays canned responses in order, cycling when the
// script is exhausted. It runs offline and records every request it sees.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []string
	next      int
	requests  []llm.CompletionRequest
	model     string

	// Err, when set, is returned by every call.
	Err error
}

// NewScriptedProvider creates a provider that answers with responses.
func NewScriptedProvider(model string, responses ...string) *ScriptedProvider {
	if model == "" {
		model = "scripted"
	}
	return &ScriptedProvider{responses: responses, model: model}
}

// NewScriptedWithConfig is the registry factory for ScriptedProvider.
func NewScriptedWithConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	if len(cfg.Responses) == 0 {
		return nil, &pkgerrors.ConfigError{Key: "llm.responses", Reason: "scripted provider needs at least one response"}
	}
	return NewScriptedProvider(cfg.Model, cfg.Responses...), nil
}

// Name returns the provider identifier.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Capabilities returns the provider's features.
func (p *ScriptedProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming: true,
		Models:    []llm.ModelInfo{{ID: p.model, Name: "Scripted responses"}},
	}
}

// Complete returns the next scripted response.
func (p *ScriptedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	if p.Err != nil {
		return nil, p.Err
	}

	var text string
	if len(p.responses) > 0 {
		text = p.responses[p.next%len(p.responses)]
		p.next++
	}

	model := req.Model
	if model == "" {
		model = p.model
	}

	in := 0
	for _, m := range req.Messages {
		in += len(strings.Fields(m.Content))
	}
	out := len(strings.Fields(text))

	return &llm.CompletionResponse{
		Content:      text,
		FinishReason: llm.FinishReasonStop,
		Usage:        llm.TokenUsage{InputTokens: in, OutputTokens: out, TotalTokens: in + out},
		Model:        model,
		RequestID:    uuid.NewString(),
		Created:      time.Now(),
	}, nil
}

// Stream emits the next scripted response one word at a time.
func (p *ScriptedProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	resp, err := p.Complete(ctx, req)
	if err != nil {
		return nil, err
	}

	words := strings.SplitAfter(resp.Content, " ")
	chunks := make(chan llm.StreamChunk, len(words)+1)
	for _, w := range words {
		chunks <- llm.StreamChunk{Delta: w, RequestID: resp.RequestID}
	}
	usage := resp.Usage
	chunks <- llm.StreamChunk{FinishReason: llm.FinishReasonStop, Usage: &usage, RequestID: resp.RequestID}
	close(chunks)
	return chunks, nil
}

// Requests returns the requests received so far.
func (p *ScriptedProvider) Requests() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.requests...)
}

var _ llm.Provider = (*ScriptedProvider)(nil)
