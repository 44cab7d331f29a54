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
	"net/http"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tombee/xray/pkg/llm"
	"github.com/tombee/xray/pkg/observability"
	"github.com/tombee/xray/pkg/telemetry"
)

// InstrumentationName is the scope of spans opened by wrapped providers.
const InstrumentationName = "github.com/tombee/xray"

// Instrumentation bundles the tracer provider, the span projector and the
// recorder they feed.
type Instrumentation struct {
	provider  *OTelProvider
	projector *SpanProjector
	recorder  *telemetry.Recorder
	tracer    observability.Tracer
	logger    *slog.Logger
}

// Setup initializes automatic instrumentation. Finished spans are projected
// into rec and forwarded to the exporters in cfg. If rec has no current
// session, one named after the service is started.
func Setup(ctx context.Context, cfg Config, rec *telemetry.Recorder, logger *slog.Logger) (*Instrumentation, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = DefaultConfig().ServiceName
	}

	projector := NewSpanProjector(rec, WithProjectorLogger(logger))

	opts := []sdktrace.TracerProviderOption{sdktrace.WithSpanProcessor(projector)}
	for _, proc := range CreateExportersFromConfig(ctx, cfg, logger) {
		opts = append(opts, sdktrace.WithSpanProcessor(proc))
	}

	provider, err := NewOTelProvider(cfg.ServiceName, cfg.ServiceVersion, opts...)
	if err != nil {
		return nil, err
	}
	projector.SetMetrics(provider.MetricsCollector())

	if rec.CurrentSession() == nil {
		s := rec.StartSession(cfg.ServiceName, map[string]any{"auto": true})
		logger.Debug("started session for instrumentation", "session_id", s.ID)
	}

	return &Instrumentation{
		provider:  provider,
		projector: projector,
		recorder:  rec,
		tracer:    provider.Tracer(InstrumentationName),
		logger:    logger,
	}, nil
}

// Wrap returns p wrapped by the instrumentation proxy.
func (i *Instrumentation) Wrap(p llm.Provider) llm.Provider {
	return WrapProvider(p, i.tracer,
		WithProxyMetrics(i.provider.MetricsCollector()),
		WithProxyLogger(i.logger),
	)
}

// Tracer returns the tracer used by wrapped providers.
func (i *Instrumentation) Tracer() observability.Tracer {
	return i.tracer
}

// Metrics returns the metrics collector.
func (i *Instrumentation) Metrics() *MetricsCollector {
	return i.provider.MetricsCollector()
}

// MetricsHandler serves the Prometheus metrics endpoint.
func (i *Instrumentation) MetricsHandler() http.Handler {
	return i.provider.MetricsHandler()
}

// Shutdown flushes pending spans, ends a still-running session as completed,
// exports it, and shuts the provider down.
func (i *Instrumentation) Shutdown(ctx context.Context) error {
	flushErr := i.provider.ForceFlush(ctx)

	if s := i.recorder.CurrentSession(); s != nil {
		if s.Clone().EndedAt == nil {
			i.recorder.EndSession(telemetry.StatusCompleted)
		}
		i.recorder.ExportSession(ctx)
	}

	return errors.Join(flushErr, i.provider.Shutdown(ctx))
}
