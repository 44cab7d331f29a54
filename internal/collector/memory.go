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

package collector

import (
	"context"
	"sync"

	"github.com/tombee/xray/pkg/telemetry"
)

// MemoryStore keeps sessions in a map. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*telemetry.Session
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*telemetry.Session)}
}

func (m *MemoryStore) ListSessions(_ context.Context) ([]telemetry.SessionSummary, error) {
	m.mu.RLock()
	out := make([]telemetry.SessionSummary, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Summary())
	}
	m.mu.RUnlock()

	sortSummaries(out)
	return out, nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*telemetry.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, notFound(id)
	}
	return s.Clone(), nil
}

func (m *MemoryStore) PutSession(_ context.Context, s *telemetry.Session) error {
	if err := ValidateSession(s); err != nil {
		return err
	}
	c := s.Clone()
	m.mu.Lock()
	m.sessions[c.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) PutObservation(_ context.Context, rec telemetry.ObservationRecord) error {
	if err := ValidateObservation(rec); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.SessionID] = mergeObservation(m.sessions[rec.SessionID], rec)
	return nil
}

func (m *MemoryStore) DeleteSession(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; !ok {
		return notFound(id)
	}
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) DeleteAllSessions(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[string]*telemetry.Session)
	return n, nil
}

func (m *MemoryStore) SessionCount(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
