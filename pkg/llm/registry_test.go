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

package llm

import (
	"context"
	"errors"
	"testing"
)

// mockProvider is a simple mock for testing.
type mockProvider struct {
	name string
}

func (m *mockProvider) Name() string               { return m.name }
func (m *mockProvider) Capabilities() Capabilities { return Capabilities{} }

func (m *mockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return &CompletionResponse{Content: "ok"}, nil
}

func (m *mockProvider) Stream(ctx context.Context, req CompletionRequest) (<-chan StreamChunk, error) {
	return nil, nil
}

func TestRegistry_NewFromFactory(t *testing.T) {
	reg := NewRegistry()

	var got ProviderConfig
	reg.RegisterFactory("mock", func(cfg ProviderConfig) (Provider, error) {
		got = cfg
		return &mockProvider{name: "mock"}, nil
	})

	p, err := reg.New("mock", ProviderConfig{Model: "m1"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != "mock" {
		t.Errorf("expected provider name 'mock', got %q", p.Name())
	}
	if got.Model != "m1" {
		t.Errorf("factory received model %q, want m1", got.Model)
	}
}

func TestRegistry_UnknownFactory(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.New("missing", ProviderConfig{})
	if !errors.Is(err, ErrFactoryNotFound) {
		t.Errorf("expected ErrFactoryNotFound, got %v", err)
	}
}

func TestRegistry_FactoryError(t *testing.T) {
	reg := NewRegistry()
	boom := errors.New("no key")
	reg.RegisterFactory("broken", func(ProviderConfig) (Provider, error) {
		return nil, boom
	})

	_, err := reg.New("broken", ProviderConfig{})
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped factory error, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterFactory("b", nil)
	reg.RegisterFactory("a", nil)

	names := reg.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want [a b]", names)
	}
}

func TestLastUserMessage(t *testing.T) {
	msgs := []Message{
		{Role: MessageRoleSystem, Content: "sys"},
		{Role: MessageRoleUser, Content: "first"},
		{Role: MessageRoleAssistant, Content: "reply"},
		{Role: MessageRoleUser, Content: "second"},
	}
	if got := LastUserMessage(msgs); got != 3 {
		t.Errorf("LastUserMessage() = %d, want 3", got)
	}
	if got := LastUserMessage(msgs[:1]); got != -1 {
		t.Errorf("LastUserMessage() without user = %d, want -1", got)
	}
}
