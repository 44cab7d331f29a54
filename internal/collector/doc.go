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
Package collector implements the telemetry collector: an HTTP service that
stores exported sessions and per-step observations, and a client for it.

Routes:

	GET    /sessions        session summaries, newest first
	GET    /sessions/{id}   one full session
	POST   /sessions        upsert a full session keyed by its id
	POST   /observations    upsert one step into its session
	DELETE /sessions/{id}   delete one session
	DELETE /sessions        delete every session
	GET    /healthz         liveness and store status
	GET    /metrics         Prometheus metrics, when configured

Sessions live in a Store: MemoryStore by default, SQLiteStore for
persistence across restarts.
*/
package collector
