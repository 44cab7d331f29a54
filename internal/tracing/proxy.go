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

package tracing

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/tombee/xray/pkg/llm"
	"github.com/tombee/xray/pkg/observability"
)

// ReasonDirective is appended to the last user message of every wrapped call.
const ReasonDirective = "At the end of your answer, add one final line that starts with \"REASON:\" followed by a short explanation of why you answered this way."

var (
	// A REASON head at the start of a line, optionally wrapped in markdown
	// emphasis, separated from the reasoning by a colon or whitespace.
	reasonLinePattern = regexp.MustCompile(`(?im)^[ \t]*[*_]{0,2}reason(?:ing)?[*_]{0,2}(?:[ \t]*:[*_]{0,2}|[ \t]+)`)

	// Used when the model put the REASON head mid-line.
	reasonInlinePattern = regexp.MustCompile(`(?i)\breason(?:ing)?[*_]{0,2}[ \t]*:[*_]{0,2}`)
)

// ExtractReasoning splits a raw completion into the visible answer and the
// reasoning the directive asked for. The first REASON head at the start of a
// line wins and everything after it is reasoning, including any later heads.
// A mid-line head is only used when no line starts with one. Text without a
// head is returned unchanged.
func ExtractReasoning(text string) (clean, reasoning string) {
	loc := reasonLinePattern.FindStringIndex(text)
	if loc == nil {
		loc = reasonInlinePattern.FindStringIndex(text)
	}
	if loc == nil {
		return text, ""
	}
	reasoning = strings.TrimSpace(text[loc[1]:])
	reasoning = strings.TrimRight(reasoning, "*_ \t")
	clean = strings.TrimRightFunc(text[:loc[0]], isSpace)
	return clean, reasoning
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// InjectDirective returns a copy of messages with the reason directive
// appended to the last user message, and that message's original content.
// ok is false when there is no user message; messages are then returned as is.
func InjectDirective(messages []llm.Message) (out []llm.Message, original string, ok bool) {
	idx := llm.LastUserMessage(messages)
	if idx < 0 {
		return messages, "", false
	}
	out = make([]llm.Message, len(messages))
	copy(out, messages)
	original = out[idx].Content
	out[idx].Content = original + "\n\n" + ReasonDirective
	return out, original, true
}

// TracedProvider wraps an LLM provider so every completion is traced and
// stripped of the reasoning line the injected directive elicits.
type TracedProvider struct {
	provider llm.Provider
	tracer   observability.Tracer
	metrics  *MetricsCollector
	logger   *slog.Logger
}

// ProxyOption configures a TracedProvider.
type ProxyOption func(*TracedProvider)

// WithProxyMetrics records request, token and reasoning metrics.
func WithProxyMetrics(mc *MetricsCollector) ProxyOption {
	return func(t *TracedProvider) {
		t.metrics = mc
	}
}

// WithProxyLogger sets the logger for call diagnostics.
func WithProxyLogger(logger *slog.Logger) ProxyOption {
	return func(t *TracedProvider) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WrapProvider wraps an LLM provider with reasoning extraction and tracing.
// Only Complete is intercepted; every other method delegates unchanged.
func WrapProvider(provider llm.Provider, tracer observability.Tracer, opts ...ProxyOption) llm.Provider {
	t := &TracedProvider{
		provider: provider,
		tracer:   tracer,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With("component", "proxy", "system", provider.Name())
	return t
}

// Unwrap returns the wrapped provider.
func (t *TracedProvider) Unwrap() llm.Provider {
	return t.provider
}

// Name returns the underlying provider's name.
func (t *TracedProvider) Name() string {
	return t.provider.Name()
}

// Capabilities returns the underlying provider's capabilities.
func (t *TracedProvider) Capabilities() llm.Capabilities {
	return t.provider.Capabilities()
}

// Stream delegates to the underlying provider without instrumentation.
func (t *TracedProvider) Stream(ctx context.Context, req llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return t.provider.Stream(ctx, req)
}

// Complete injects the reason directive, calls the provider inside a client
// span and returns the response with the reasoning line removed. Provider
// errors are recorded on the span and returned unchanged.
func (t *TracedProvider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	startTime := time.Now()
	system := t.provider.Name()

	attrs := map[string]any{
		observability.AttrSystem:       system,
		observability.AttrRequestModel: req.Model,
	}
	if req.Temperature != nil {
		attrs[observability.AttrRequestTemperature] = *req.Temperature
	}
	if req.MaxTokens != nil {
		attrs[observability.AttrRequestMaxTokens] = *req.MaxTokens
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		attrs[observability.AttrSessionID] = sessionID
	}

	ctx, span := t.tracer.Start(ctx, system+".chat",
		observability.WithSpanKind(observability.SpanKindClient),
		observability.WithAttributes(attrs),
	)
	defer span.End()

	messages, original, injected := InjectDirective(req.Messages)
	span.SetAttributes(map[string]any{observability.AttrRequestMessage: original})

	if !injected {
		t.logger.Debug("no user message to carry the reason directive", "model", req.Model)
	}

	outgoing := req
	outgoing.Messages = messages

	resp, err := t.provider.Complete(ctx, outgoing)
	latency := time.Since(startTime)

	if err != nil {
		span.RecordError(err)
		t.metrics.RecordLLMRequest(ctx, system, req.Model, "error", 0, 0, latency)
		t.logger.Debug("completion failed", "model", req.Model, "error", err)
		return nil, err
	}

	clean, reasoning := ExtractReasoning(resp.Content)

	respAttrs := map[string]any{
		observability.AttrResponseText:         clean,
		observability.AttrResponseRaw:          resp.Content,
		observability.AttrResponseFinishReason: string(resp.FinishReason),
		observability.AttrResponseModel:        resp.Model,
		observability.AttrResponseID:           resp.RequestID,
		observability.AttrUsageInputTokens:     resp.Usage.InputTokens,
		observability.AttrUsageOutputTokens:    resp.Usage.OutputTokens,
	}
	if reasoning != "" {
		respAttrs[observability.AttrResponseReasoning] = reasoning
	}
	span.SetAttributes(respAttrs)
	span.SetStatus(observability.StatusCodeOK, "")

	model := resp.Model
	if model == "" {
		model = req.Model
	}
	t.metrics.RecordLLMRequest(ctx, system, model, "success", resp.Usage.InputTokens, resp.Usage.OutputTokens, latency)
	t.metrics.RecordReasoning(ctx, system, reasoning != "")

	out := *resp
	out.Content = clean
	return &out, nil
}

var _ llm.Provider = (*TracedProvider)(nil)
