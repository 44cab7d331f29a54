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

package observability

// Attribute keys written by the instrumentation proxy and read by the span
// projector. They follow the OpenTelemetry gen_ai naming.
const (
	AttrSystem             = "gen_ai.system"
	AttrRequestModel       = "gen_ai.request.model"
	AttrRequestMessage     = "gen_ai.request.message"
	AttrRequestTemperature = "gen_ai.request.temperature"
	AttrRequestMaxTokens   = "gen_ai.request.max_tokens"

	AttrResponseText         = "gen_ai.response.text"
	AttrResponseRaw          = "gen_ai.response.raw"
	AttrResponseReasoning    = "gen_ai.response.reasoning"
	AttrResponseFinishReason = "gen_ai.response.finish_reason"
	AttrResponseModel        = "gen_ai.response.model"
	AttrResponseID           = "gen_ai.response.id"

	AttrUsageInputTokens  = "gen_ai.usage.input_tokens"
	AttrUsageOutputTokens = "gen_ai.usage.output_tokens"

	// AttrSessionID tags spans with the telemetry session that was current
	// when they started.
	AttrSessionID = "xray.session.id"
)
