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
	"net/http"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	pkgerrors "github.com/tombee/xray/pkg/errors"
	"github.com/tombee/xray/pkg/llm"
)

// DefaultOpenAIModel is used when neither the request nor the config names a model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls the OpenAI chat completions API.
type OpenAIProvider struct {
	client      openai.Client
	model       string
	temperature *float64
}

// NewOpenAIProvider creates an OpenAI provider. httpClient may be nil.
// SDK-level retries are disabled; wrap with llm.NewRetryableProvider instead.
func NewOpenAIProvider(cfg llm.ProviderConfig, httpClient *http.Client) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, &pkgerrors.ConfigError{Key: "llm.api_key", Reason: "OpenAI API key is required"}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIProvider{
		client:      openai.NewClient(opts...),
		model:       model,
		temperature: cfg.Temperature,
	}, nil
}

// NewOpenAIWithConfig is the registry factory for OpenAIProvider.
func NewOpenAIWithConfig(cfg llm.ProviderConfig) (llm.Provider, error) {
	return NewOpenAIProvider(cfg, nil)
}

// Name returns the provider identifier.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Capabilities returns the provider's features.
func (p *OpenAIProvider) Capabilities() llm.Capabilities {
	return llm.Capabilities{
		Streaming: true,
		Models: []llm.ModelInfo{
			{ID: "gpt-4o", Name: "GPT-4o", MaxTokens: 128000, MaxOutputTokens: 16384},
			{ID: "gpt-4o-mini", Name: "GPT-4o mini", MaxTokens: 128000, MaxOutputTokens: 16384},
		},
	}
}

// Complete sends a chat completion request.
func (p *OpenAIProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.params(req))
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &pkgerrors.ProviderError{Provider: p.Name(), Message: "response contained no choices", RequestID: resp.ID}
	}

	choice := resp.Choices[0]
	return &llm.CompletionResponse{
		Content:      choice.Message.Content,
		FinishReason: llm.FinishReason(choice.FinishReason),
		Usage: llm.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Model:     resp.Model,
		RequestID: resp.ID,
		Created:   time.Unix(resp.Created, 0),
	}, nil
}

// Stream sends a streaming chat completion request.
func (p *OpenAIProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	params := p.params(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{IncludeUsage: openai.Bool(true)}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	chunks := make(chan llm.StreamChunk)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			cur := stream.Current()
			chunk := llm.StreamChunk{RequestID: cur.ID}
			if len(cur.Choices) > 0 {
				chunk.Delta = cur.Choices[0].Delta.Content
				chunk.FinishReason = llm.FinishReason(cur.Choices[0].FinishReason)
			}
			if cur.Usage.TotalTokens > 0 {
				chunk.Usage = &llm.TokenUsage{
					InputTokens:  int(cur.Usage.PromptTokens),
					OutputTokens: int(cur.Usage.CompletionTokens),
					TotalTokens:  int(cur.Usage.TotalTokens),
				}
			}
			select {
			case chunks <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if err := stream.Err(); err != nil {
			select {
			case chunks <- llm.StreamChunk{Error: p.wrapError(err), FinishReason: llm.FinishReasonError}:
			case <-ctx.Done():
			}
		}
	}()

	return chunks, nil
}

func (p *OpenAIProvider) params(req llm.CompletionRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.MessageRoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case llm.MessageRoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: msgs,
	}

	temp := req.Temperature
	if temp == nil {
		temp = p.temperature
	}
	if temp != nil {
		params.Temperature = openai.Float(*temp)
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(int64(*req.MaxTokens))
	}
	if len(req.StopSequences) > 0 {
		params.Stop = openai.ChatCompletionNewParamsStopUnion{OfStringArray: req.StopSequences}
	}
	return params
}

func (p *OpenAIProvider) wrapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		provErr := &pkgerrors.ProviderError{
			Provider:   p.Name(),
			StatusCode: apiErr.StatusCode,
			Message:    apiErr.Message,
			Cause:      err,
		}
		if apiErr.Response != nil {
			provErr.RequestID = apiErr.Response.Header.Get("x-request-id")
		}
		return provErr
	}
	return err
}

var _ llm.Provider = (*OpenAIProvider)(nil)
