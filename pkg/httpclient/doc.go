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

// Package httpclient builds the HTTP clients used to reach the telemetry
// collector and LLM provider APIs.
//
// Clients compose two transport layers over a pooled TLS 1.2+ transport:
//   - a logging layer that sets User-Agent, propagates the telemetry
//     session id as the X-Xray-Session header, and logs every request with
//     sensitive query parameters redacted
//   - a retry layer with exponential backoff and jitter that honors
//     Retry-After and, by default, retries only GET, HEAD and OPTIONS
//
// Telemetry export is fire-and-forget, so POSTs to the collector are never
// retried unless AllowNonIdempotentRetry is set.
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "xray/1.0"
//	client, err := httpclient.New(cfg)
package httpclient
