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

package errors_test

import (
	"errors"
	"fmt"
	"testing"

	xerrors "github.com/tombee/xray/pkg/errors"
)

func TestValidationError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *xerrors.ValidationError
		wantMsg string
	}{
		{
			name:    "with field",
			err:     &xerrors.ValidationError{Field: "id", Message: "required"},
			wantMsg: "validation failed on id: required",
		},
		{
			name:    "without field",
			err:     &xerrors.ValidationError{Message: "body is not JSON"},
			wantMsg: "validation failed: body is not JSON",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.wantMsg {
				t.Errorf("ValidationError.Error() = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestPreconditionError_Unwrap(t *testing.T) {
	sentinel := errors.New("no current session")
	err := fmt.Errorf("pipeline: %w", &xerrors.PreconditionError{
		Operation: "StartStep",
		Reason:    "no current session",
		Cause:     sentinel,
	})

	if !errors.Is(err, sentinel) {
		t.Fatal("expected errors.Is to match the sentinel cause")
	}

	var pe *xerrors.PreconditionError
	if !errors.As(err, &pe) {
		t.Fatal("expected errors.As to find PreconditionError")
	}
	if pe.Operation != "StartStep" {
		t.Errorf("Operation = %q, want StartStep", pe.Operation)
	}
}

func TestProviderError_Error(t *testing.T) {
	err := &xerrors.ProviderError{
		Provider:   "openai",
		StatusCode: 429,
		Message:    "rate limited",
		RequestID:  "req-1",
	}
	want := "provider openai error [HTTP 429]: rate limited (request-id: req-1)"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestWrap(t *testing.T) {
	if xerrors.Wrap(nil, "ctx") != nil {
		t.Error("Wrap(nil) should return nil")
	}

	base := &xerrors.NotFoundError{Resource: "session", ID: "abc"}
	wrapped := xerrors.Wrapf(base, "loading %s", "abc")
	if wrapped.Error() != "loading abc: session not found: abc" {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
	if !xerrors.Is(wrapped, base) {
		t.Error("wrapped error should match base")
	}
}

func TestTypeOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&xerrors.ValidationError{Message: "x"}, "validation"},
		{fmt.Errorf("wrap: %w", &xerrors.NotFoundError{Resource: "session"}), "not_found"},
		{&xerrors.ConfigError{Reason: "bad"}, "config"},
		{errors.New("plain"), "internal"},
	}
	for _, tt := range tests {
		if got := xerrors.TypeOf(tt.err); got != tt.want {
			t.Errorf("TypeOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
