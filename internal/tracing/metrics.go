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
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsCollector records LLM traffic and decision metrics.
type MetricsCollector struct {
	meter metric.Meter

	// Counters
	llmRequestsTotal  metric.Int64Counter
	tokensTotal       metric.Int64Counter
	reasoningTotal    metric.Int64Counter
	stepsTotal        metric.Int64Counter
	decisionsTotal    metric.Int64Counter
	exportsTotal      metric.Int64Counter
	requestsRateLimit metric.Int64Counter

	// Histograms
	llmLatency   metric.Float64Histogram
	stepDuration metric.Float64Histogram

	sessionCounter   SessionCounter
	sessionCounterMu sync.RWMutex
}

// SessionCounter reports how many sessions a store currently holds.
type SessionCounter interface {
	SessionCount(ctx context.Context) (int, error)
}

// NewMetricsCollector creates a new metrics collector using the given meter provider.
func NewMetricsCollector(meterProvider metric.MeterProvider) (*MetricsCollector, error) {
	meter := meterProvider.Meter("xray")

	mc := &MetricsCollector{meter: meter}

	var err error

	mc.llmRequestsTotal, err = meter.Int64Counter(
		"xray_llm_requests_total",
		metric.WithDescription("Total number of instrumented LLM requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.tokensTotal, err = meter.Int64Counter(
		"xray_tokens_total",
		metric.WithDescription("Total number of tokens reported by providers"),
		metric.WithUnit("{token}"),
	)
	if err != nil {
		return nil, err
	}

	mc.reasoningTotal, err = meter.Int64Counter(
		"xray_reasoning_extracted_total",
		metric.WithDescription("Completions by whether a reasoning line was found"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepsTotal, err = meter.Int64Counter(
		"xray_steps_total",
		metric.WithDescription("Total number of steps recorded"),
		metric.WithUnit("{step}"),
	)
	if err != nil {
		return nil, err
	}

	mc.decisionsTotal, err = meter.Int64Counter(
		"xray_decisions_total",
		metric.WithDescription("Parsed decisions by kind"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	mc.exportsTotal, err = meter.Int64Counter(
		"xray_exports_total",
		metric.WithDescription("Collector export attempts by kind and outcome"),
		metric.WithUnit("{export}"),
	)
	if err != nil {
		return nil, err
	}

	mc.requestsRateLimit, err = meter.Int64Counter(
		"xray_collector_rate_limited_total",
		metric.WithDescription("Collector requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	mc.llmLatency, err = meter.Float64Histogram(
		"xray_llm_latency_seconds",
		metric.WithDescription("LLM request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	mc.stepDuration, err = meter.Float64Histogram(
		"xray_step_duration_seconds",
		metric.WithDescription("Step duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	_, err = meter.Int64ObservableGauge(
		"xray_collector_sessions",
		metric.WithDescription("Number of sessions held by the collector store"),
		metric.WithUnit("{session}"),
		metric.WithInt64Callback(func(ctx context.Context, observer metric.Int64Observer) error {
			mc.sessionCounterMu.RLock()
			counter := mc.sessionCounter
			mc.sessionCounterMu.RUnlock()
			if counter == nil {
				return nil
			}
			n, err := counter.SessionCount(ctx)
			if err != nil {
				return nil
			}
			observer.Observe(int64(n))
			return nil
		}),
	)
	if err != nil {
		return nil, err
	}

	return mc, nil
}

// SetSessionCounter wires the store observed by the sessions gauge.
func (mc *MetricsCollector) SetSessionCounter(counter SessionCounter) {
	if mc == nil {
		return
	}
	mc.sessionCounterMu.Lock()
	mc.sessionCounter = counter
	mc.sessionCounterMu.Unlock()
}

// RecordLLMRequest records an LLM request completion. Record methods are
// no-ops on a nil collector.
func (mc *MetricsCollector) RecordLLMRequest(ctx context.Context, provider, model, status string, inputTokens, outputTokens int, latency time.Duration) {
	if mc == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("provider", provider),
		attribute.String("model", model),
		attribute.String("status", status),
	}

	mc.llmRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.llmLatency.Record(ctx, latency.Seconds(), metric.WithAttributes(attrs...))

	if inputTokens > 0 {
		tokenAttrs := append(attrs[:2:2], attribute.String("type", "input"))
		mc.tokensTotal.Add(ctx, int64(inputTokens), metric.WithAttributes(tokenAttrs...))
	}
	if outputTokens > 0 {
		tokenAttrs := append(attrs[:2:2], attribute.String("type", "output"))
		mc.tokensTotal.Add(ctx, int64(outputTokens), metric.WithAttributes(tokenAttrs...))
	}
}

// RecordReasoning counts a completion by whether reasoning was stripped from it.
func (mc *MetricsCollector) RecordReasoning(ctx context.Context, provider string, found bool) {
	if mc == nil {
		return
	}
	mc.reasoningTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("found", found),
	))
}

// RecordStep records a projected step and the kind of decision it carried.
func (mc *MetricsCollector) RecordStep(ctx context.Context, stepType, decisionKind string, duration time.Duration) {
	if mc == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("type", stepType)}

	mc.stepsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	mc.stepDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if decisionKind != "" {
		mc.decisionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", decisionKind)))
	}
}

// RecordExport records a collector export attempt.
func (mc *MetricsCollector) RecordExport(ctx context.Context, kind, status string) {
	if mc == nil {
		return
	}
	mc.exportsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordRateLimited counts a request rejected by the collector's limiter.
func (mc *MetricsCollector) RecordRateLimited(ctx context.Context, path string) {
	if mc == nil {
		return
	}
	mc.requestsRateLimit.Add(ctx, 1, metric.WithAttributes(attribute.String("path", path)))
}
