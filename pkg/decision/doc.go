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

// Package decision turns free-form model output into structured decision
// records.
//
// The grammar is table driven: an ordered list of (field, token) markers is
// matched against `TOKEN:` line heads and each value runs until the next
// marker-shaped line. Parse applies the fixed decision table (agent,
// confidence, reasoning, recipient, message, title, datetime, urgency,
// attendees) and falls back to a YES/NO reading of the first line when no
// reasoning marker was found.
//
//	d := decision.Parse("AGENT: slack_dm\nCONFIDENCE: 0.8\nREASON: matched keywords")
//	fmt.Println(*d.Agent, *d.Confidence) // slack_dm 0.8
package decision
