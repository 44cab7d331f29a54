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

package telemetry

import "context"

// Exporter pushes telemetry outward. Implementations are fire-and-forget:
// they must not block the caller on network I/O and must not return errors.
// They receive detached snapshots they may keep.
type Exporter interface {
	ExportSession(ctx context.Context, s *Session)
	ExportObservation(ctx context.Context, rec ObservationRecord)
}

// NopExporter discards everything.
type NopExporter struct{}

func (NopExporter) ExportSession(context.Context, *Session)                {}
func (NopExporter) ExportObservation(context.Context, ObservationRecord) {}

// MultiExporter fans out to several exporters.
type MultiExporter []Exporter

func (m MultiExporter) ExportSession(ctx context.Context, s *Session) {
	for _, e := range m {
		e.ExportSession(ctx, s.Clone())
	}
}

func (m MultiExporter) ExportObservation(ctx context.Context, rec ObservationRecord) {
	for _, e := range m {
		e.ExportObservation(ctx, ObservationRecord{
			SessionID:   rec.SessionID,
			SessionName: rec.SessionName,
			Step:        rec.Step.Clone(),
		})
	}
}
