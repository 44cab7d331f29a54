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
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// SessionHeader carries the telemetry session id on outgoing requests.
const SessionHeader = "X-Xray-Session"

type sessionKeyType struct{}

var sessionKey = sessionKeyType{}

// ContextWithSessionID returns a context carrying the session id.
func ContextWithSessionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, sessionKey, id)
}

// SessionIDFromContext returns the session id in ctx, or "".
func SessionIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey).(string)
	return id
}

// W3CPropagator returns the W3C trace context and baggage propagator.
func W3CPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// InjectHTTPHeaders writes the session id and W3C trace context of ctx
// into the request headers.
func InjectHTTPHeaders(ctx context.Context, req *http.Request) {
	if id := SessionIDFromContext(ctx); id != "" && req.Header.Get(SessionHeader) == "" {
		req.Header.Set(SessionHeader, id)
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))
}

// HTTPMiddleware extracts the session id and trace context from incoming
// request headers into the request context.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx = ContextWithSessionID(ctx, r.Header.Get(SessionHeader))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
