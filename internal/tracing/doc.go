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

/*
Package tracing bridges language-model calls and the telemetry recorder.

Two pieces do the work. The instrumentation proxy wraps an llm.Provider:
it appends a directive asking the model to finish with a "REASON:" line,
opens a client span holding the original prompt, and returns the answer
with that line removed. The span projector is an OpenTelemetry span
processor that turns every finished span into an "auto_instrumented" step
on the current session, parsing the response into a decision.

# Quick Start

	rec := telemetry.NewRecorder(telemetry.WithExporter(exp))
	inst, err := tracing.Setup(ctx, tracing.DefaultConfig(), rec, logger)
	if err != nil {
	    return err
	}
	defer inst.Shutdown(context.Background())

	provider := inst.Wrap(openaiProvider)
	resp, err := provider.Complete(ctx, llm.UserPrompt("gpt-4o-mini", prompt))

resp.Content never contains the reasoning line; it is on the span under
gen_ai.response.reasoning and on the projected step.

# Metrics

NewOTelProvider owns a Prometheus registry. MetricsHandler serves it, and
MetricsCollector records request latency, token usage, reasoning
extraction, projected steps and collector exports.

# Propagation

ContextWithSessionID attaches a session id to a context. The HTTP client
transport sends it as the X-Xray-Session header together with the W3C
trace context, and HTTPMiddleware restores both on the collector side.
*/
package tracing
