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
	"errors"
	"log/slog"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	xlog "github.com/tombee/xray/internal/log"
	"github.com/tombee/xray/pkg/decision"
	"github.com/tombee/xray/pkg/observability"
	"github.com/tombee/xray/pkg/telemetry"
)

const (
	// StepTypeAutoInstrumented tags steps projected from spans.
	StepTypeAutoInstrumented = "auto_instrumented"

	// ObservationTypeLLMDecision tags the decision observation of a projected step.
	ObservationTypeLLMDecision = "llm_decision"
)

// SpanProjector turns every finished span into a step on the recorder's
// current session. Spans that finish while no session is current are dropped.
type SpanProjector struct {
	recorder *telemetry.Recorder
	logger   *slog.Logger

	mu      sync.RWMutex
	metrics *MetricsCollector
}

// ProjectorOption configures a SpanProjector.
type ProjectorOption func(*SpanProjector)

// WithProjectorLogger sets the projector's logger.
func WithProjectorLogger(logger *slog.Logger) ProjectorOption {
	return func(p *SpanProjector) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithProjectorMetrics records step and decision metrics.
func WithProjectorMetrics(mc *MetricsCollector) ProjectorOption {
	return func(p *SpanProjector) {
		p.metrics = mc
	}
}

// NewSpanProjector creates a projector writing into rec.
func NewSpanProjector(rec *telemetry.Recorder, opts ...ProjectorOption) *SpanProjector {
	p := &SpanProjector{
		recorder: rec,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "projector")
	return p
}

// SetMetrics replaces the metrics collector. The provider that owns the
// meter is created after its span processors, so Setup wires it late.
func (p *SpanProjector) SetMetrics(mc *MetricsCollector) {
	p.mu.Lock()
	p.metrics = mc
	p.mu.Unlock()
}

// OnStart is a no-op; projection happens when the span ends.
func (p *SpanProjector) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd projects the finished span synchronously.
func (p *SpanProjector) OnEnd(s sdktrace.ReadOnlySpan) {
	p.Project(context.Background(), ConvertSpan(s))
}

// Shutdown implements sdktrace.SpanProcessor.
func (p *SpanProjector) Shutdown(context.Context) error { return nil }

// ForceFlush implements sdktrace.SpanProcessor.
func (p *SpanProjector) ForceFlush(context.Context) error { return nil }

// Project appends a step built from span to the current session, ends it at
// the span's end time and exports it. It returns nil when no session is
// current.
func (p *SpanProjector) Project(ctx context.Context, span *observability.Span) *telemetry.Step {
	step, err := p.recorder.StartStepAt(span.Name, StepTypeAutoInstrumented, span.StartTime)
	if err != nil {
		if errors.Is(err, telemetry.ErrNoSession) {
			p.logger.Debug("span dropped: no current session", "span_id", span.SpanID, "trace_id", span.TraceID)
			return nil
		}
		p.logger.Warn("span dropped", "span_id", span.SpanID, "error", err)
		return nil
	}

	prompt, _ := span.StringAttr(observability.AttrRequestMessage)
	response, _ := span.StringAttr(observability.AttrResponseText)
	model, ok := span.StringAttr(observability.AttrRequestModel)
	if !ok || model == "" {
		model, _ = span.StringAttr(observability.AttrResponseModel)
	}

	parsed := decision.Parse(response)

	step.SetInput(map[string]any{
		"prompt":        prompt,
		"model":         model,
		"rawAttributes": span.Attributes,
	})
	step.SetOutput(map[string]any{
		"response":       response,
		"parsedDecision": parsed,
	})

	reasoning := projectReasoning(span, parsed)
	if reasoning != "" {
		step.SetReasoning(reasoning)
	}

	step.AddObservation(decisionObservation(span, prompt, response, parsed, reasoning))

	if model != "" {
		step.AddEvent(telemetry.EventInfo, "Model: "+model, map[string]any{"model": model})
	}
	if parsed.Agent != nil {
		step.LogDecision("Selected agent: "+*parsed.Agent, map[string]any{
			"agent":      *parsed.Agent,
			"confidence": parsed.Confidence,
		})
	}
	if span.Status.Code == observability.StatusCodeError {
		msg := span.Status.Message
		if msg == "" {
			msg = "span failed"
		}
		step.AddEvent(telemetry.EventError, msg, nil)
	}

	if v, ok := span.FloatAttr(observability.AttrUsageInputTokens); ok {
		step.AddMetric("input_tokens", v)
	}
	if v, ok := span.FloatAttr(observability.AttrUsageOutputTokens); ok {
		step.AddMetric("output_tokens", v)
	}

	end := span.EndTime
	if end.IsZero() {
		end = span.StartTime
	}
	p.recorder.EndStepAt(step, end)
	p.recorder.ExportObservation(ctx, step)

	p.mu.RLock()
	mc := p.metrics
	p.mu.RUnlock()
	mc.RecordStep(ctx, StepTypeAutoInstrumented, decisionKind(parsed), span.Duration())

	xlog.WithStep(p.logger, step.SessionID, step.ID).Debug("projected span",
		xlog.SpanIDKey, span.SpanID,
		xlog.TraceIDKey, span.TraceID,
		xlog.ModelKey, model,
	)
	return step
}

// projectReasoning prefers explicit reasoning in the response, then the
// reasoning the proxy stripped, then a summary of agent and confidence.
func projectReasoning(span *observability.Span, parsed *decision.ParsedDecision) string {
	if parsed.Reasoning != nil && *parsed.Reasoning != "" {
		return *parsed.Reasoning
	}
	if r, ok := span.StringAttr(observability.AttrResponseReasoning); ok && r != "" {
		return r
	}
	return parsed.Summary()
}

func decisionObservation(span *observability.Span, prompt, response string, parsed *decision.ParsedDecision, reasoning string) telemetry.Observation {
	data := map[string]any{
		"traceId":        span.TraceID,
		"spanId":         span.SpanID,
		"prompt":         prompt,
		"response":       response,
		"parsedDecision": parsed,
		"status":         span.Status.Code.String(),
	}
	if span.ParentID != "" {
		data["parentSpanId"] = span.ParentID
	}
	if span.Status.Message != "" {
		data["statusMessage"] = span.Status.Message
	}

	obs := telemetry.Observation{
		Type:  ObservationTypeLLMDecision,
		Label: span.Name,
		Data:  data,
		Score: parsed.Confidence,
	}
	if reasoning != "" {
		obs.Reason = &reasoning
	}

	var result string
	switch {
	case span.Status.Code == observability.StatusCodeError:
		result = "error"
	case parsed.Agent != nil:
		result = "selected"
	case parsed.YesNo != nil && *parsed.YesNo:
		result = "yes"
	case parsed.YesNo != nil:
		result = "no"
	}
	if result != "" {
		obs.Result = &result
	}
	return obs
}

func decisionKind(d *decision.ParsedDecision) string {
	switch {
	case d.Agent != nil:
		return "agent"
	case d.YesNo != nil:
		return "yes_no"
	case !d.Empty():
		return "fields"
	default:
		return ""
	}
}

var _ sdktrace.SpanProcessor = (*SpanProjector)(nil)
