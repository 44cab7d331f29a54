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

// Package telemetry records decision telemetry for multi-step pipelines.
//
// A Session groups the Steps of one pipeline run. Each Step carries its
// input, output, optional reasoning, Observations (possibly nested),
// timestamped Events and named Metrics.
//
// Pipelines record through a Recorder, which holds at most one current
// Session. Starting a session replaces the previous one; sessions never
// stack. Every recording call takes the session lock, so concurrent steps
// interleave only at the granularity of single calls:
//
//	rec := telemetry.NewRecorder(telemetry.WithExporter(exp))
//	rec.StartSession("triage", nil)
//	step, err := rec.StartStep("route", "llm")
//	if err != nil {
//		return err
//	}
//	step.SetInput(map[string]any{"ticket": id})
//	step.LogDecision("routed", map[string]any{"agent": "slack_dm"})
//	rec.EndStep(step)
//	rec.EndSession(telemetry.StatusCompleted)
//	rec.ExportSession(ctx)
//
// Steps are also produced automatically by the span projector in
// internal/tracing for every instrumented LLM call.
package telemetry
