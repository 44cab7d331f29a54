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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*MetricsCollector, *metric.ManualReader) {
	t.Helper()
	reader := metric.NewManualReader()
	provider := metric.NewMeterProvider(metric.WithReader(reader))
	t.Cleanup(func() {
		_ = provider.Shutdown(context.Background())
	})

	mc, err := NewMetricsCollector(provider)
	require.NoError(t, err)
	return mc, reader
}

func collect(t *testing.T, reader *metric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestMetricsCollector_RecordLLMRequest(t *testing.T) {
	mc, reader := newTestMetrics(t)
	ctx := context.Background()

	mc.RecordLLMRequest(ctx, "openai", "gpt-4o-mini", "success", 100, 40, 300*time.Millisecond)
	mc.RecordLLMRequest(ctx, "openai", "gpt-4o-mini", "error", 0, 0, 50*time.Millisecond)

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumInt(t, metrics["xray_llm_requests_total"]))
	assert.Equal(t, int64(140), sumInt(t, metrics["xray_tokens_total"]))

	hist, ok := metrics["xray_llm_latency_seconds"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestMetricsCollector_TokenTypes(t *testing.T) {
	mc, reader := newTestMetrics(t)

	mc.RecordLLMRequest(context.Background(), "openai", "m", "success", 3, 2, time.Millisecond)

	sum := collect(t, reader)["xray_tokens_total"].Data.(metricdata.Sum[int64])
	byType := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value(attribute.Key("type"))
		byType[v.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"input": 3, "output": 2}, byType)
}

func TestMetricsCollector_StepsAndDecisions(t *testing.T) {
	mc, reader := newTestMetrics(t)
	ctx := context.Background()

	mc.RecordStep(ctx, StepTypeAutoInstrumented, "agent", time.Second)
	mc.RecordStep(ctx, StepTypeAutoInstrumented, "", time.Second)
	mc.RecordReasoning(ctx, "openai", true)
	mc.RecordExport(ctx, "session", "success")

	metrics := collect(t, reader)
	assert.Equal(t, int64(2), sumInt(t, metrics["xray_steps_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["xray_decisions_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["xray_reasoning_extracted_total"]))
	assert.Equal(t, int64(1), sumInt(t, metrics["xray_exports_total"]))
}

type fixedCounter struct {
	n   int
	err error
}

func (f fixedCounter) SessionCount(context.Context) (int, error) { return f.n, f.err }

func TestMetricsCollector_SessionGauge(t *testing.T) {
	mc, reader := newTestMetrics(t)

	mc.SetSessionCounter(fixedCounter{n: 3})
	gauge, ok := collect(t, reader)["xray_collector_sessions"].Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(3), gauge.DataPoints[0].Value)

	mc.SetSessionCounter(fixedCounter{err: errors.New("db closed")})
	assert.NotPanics(t, func() { collect(t, reader) })
}

func TestMetricsCollector_NilSafe(t *testing.T) {
	var mc *MetricsCollector
	assert.NotPanics(t, func() {
		mc.RecordLLMRequest(context.Background(), "p", "m", "success", 1, 1, time.Millisecond)
		mc.RecordStep(context.Background(), "t", "agent", time.Millisecond)
		mc.RecordExport(context.Background(), "session", "error")
	})
}
