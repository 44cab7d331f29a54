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

// Package jq evaluates jq expressions against session JSON.
package jq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultTimeout bounds a single evaluation.
const DefaultTimeout = time.Second

// Query is a compiled jq expression.
type Query struct {
	expr    string
	code    *gojq.Code
	timeout time.Duration
}

// Compile parses and compiles expr.
func Compile(expr string) (*Query, error) {
	parsed, err := gojq.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression %q: %w", expr, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}
	return &Query{expr: expr, code: code, timeout: DefaultTimeout}, nil
}

// WithTimeout returns a copy of q with a different evaluation bound.
func (q *Query) WithTimeout(d time.Duration) *Query {
	c := *q
	c.timeout = d
	return &c
}

// Run evaluates the query against data and returns every emitted value.
// data may be any JSON-marshalable value; it is normalized to the generic
// map/slice form gojq expects.
func (q *Query) Run(ctx context.Context, data any) ([]any, error) {
	input, err := Normalize(data)
	if err != nil {
		return nil, err
	}

	if q.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.timeout)
		defer cancel()
	}

	var results []any
	iter := q.code.RunWithContext(ctx, input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("jq %q: execution timeout after %v", q.expr, q.timeout)
			}
			return nil, fmt.Errorf("jq %q: %w", q.expr, err)
		}
		results = append(results, v)
	}
	return results, nil
}

// Normalize converts v to the generic JSON form (map[string]any, []any,
// float64, string, bool, nil).
func Normalize(v any) (any, error) {
	switch v.(type) {
	case nil, map[string]any, []any, string, bool, float64:
		return v, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query input: %w", err)
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to normalize query input: %w", err)
	}
	return out, nil
}
