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

package decision

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Field names used as keys in ParsedDecision.Raw.
const (
	FieldAgent      = "agent"
	FieldConfidence = "confidence"
	FieldReasoning  = "reasoning"
	FieldRecipient  = "recipient"
	FieldMessage    = "message"
	FieldTitle      = "title"
	FieldDatetime   = "datetime"
	FieldUrgency    = "urgency"
	FieldAttendees  = "attendees"

	// FieldDecision records the YES/NO fallback verdict.
	FieldDecision = "decision"
)

// ParsedDecision is the structured record extracted from one model response.
// A nil field was not present in the text, or could not be parsed.
type ParsedDecision struct {
	Agent      *string  `json:"agent"`
	Confidence *float64 `json:"confidence"`
	Reasoning  *string  `json:"reasoning"`
	Recipient  *string  `json:"recipient"`
	Message    *string  `json:"message"`
	Title      *string  `json:"title"`
	Attendees  []string `json:"attendees"`
	Datetime   *string  `json:"datetime"`
	Urgency    *string  `json:"urgency"`
	YesNo      *bool    `json:"yesNo"`

	// Raw holds every captured substring by field name, including markers
	// that have no dedicated attribute above.
	Raw map[string]string `json:"raw"`
}

// rule is one row of the decision table: the field, the tokens that
// introduce it in priority order, and how its raw value lands on the record.
type rule struct {
	field  string
	tokens []string
	apply  func(d *ParsedDecision, v string)
}

var rules = []rule{
	{FieldAgent, []string{"AGENT"}, func(d *ParsedDecision, v string) { d.Agent = &v }},
	{FieldConfidence, []string{"CONFIDENCE"}, func(d *ParsedDecision, v string) { d.Confidence = parseConfidence(v) }},
	{FieldReasoning, []string{"REASON", "REASONING"}, func(d *ParsedDecision, v string) { d.Reasoning = &v }},
	{FieldRecipient, []string{"RECIPIENT"}, func(d *ParsedDecision, v string) { d.Recipient = &v }},
	{FieldMessage, []string{"MESSAGE"}, func(d *ParsedDecision, v string) { d.Message = &v }},
	{FieldTitle, []string{"TITLE"}, func(d *ParsedDecision, v string) { d.Title = &v }},
	{FieldDatetime, []string{"DATETIME"}, func(d *ParsedDecision, v string) { d.Datetime = &v }},
	{FieldUrgency, []string{"URGENCY"}, func(d *ParsedDecision, v string) { d.Urgency = &v }},
	{FieldAttendees, []string{"ATTENDEES"}, func(d *ParsedDecision, v string) { d.Attendees = splitList(v) }},
}

// DefaultMarkers returns the marker table the parser runs, in priority order.
func DefaultMarkers() []Marker {
	var markers []Marker
	for _, r := range rules {
		for _, tok := range r.tokens {
			markers = append(markers, Marker{Field: r.field, Token: tok})
		}
	}
	return markers
}

var defaultGrammar = NewGrammar(DefaultMarkers()...)

var (
	yesPattern = regexp.MustCompile(`(?i)\byes\b`)
	noPattern  = regexp.MustCompile(`(?i)\bno\b`)
)

// Parse converts a model response into a ParsedDecision. It never fails:
// missing or malformed fields are simply nil.
//
// When no reasoning marker is present, a first line containing YES or NO
// sets YesNo, and any further non-blank lines become the reasoning.
func Parse(text string) *ParsedDecision {
	d := &ParsedDecision{Raw: defaultGrammar.ExtractAll(text)}

	for _, r := range rules {
		if v, ok := d.Raw[r.field]; ok {
			r.apply(d, v)
		}
	}

	if d.Reasoning == nil {
		applyYesNo(d, text)
	}
	return d
}

func applyYesNo(d *ParsedDecision, text string) {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return
	}

	var verdict bool
	switch {
	case yesPattern.MatchString(lines[0]):
		verdict = true
		d.Raw[FieldDecision] = "YES"
	case noPattern.MatchString(lines[0]):
		verdict = false
		d.Raw[FieldDecision] = "NO"
	default:
		return
	}
	d.YesNo = &verdict

	if len(lines) > 1 {
		reasoning := strings.Join(lines[1:], " ")
		d.Reasoning = &reasoning
	}
}

// parseConfidence reads the leading number of v. A trailing percent sign
// scales it into 0..1.
func parseConfidence(v string) *float64 {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return nil
	}
	num := strings.TrimRight(fields[0], ",;")
	scale := 1.0
	if strings.HasSuffix(num, "%") {
		num = strings.TrimSuffix(num, "%")
		scale = 100
	}
	f, err := strconv.ParseFloat(num, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	f /= scale
	return &f
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Summary describes the selected agent and confidence, e.g.
// "Selected agent: slack_dm | Confidence: 80%". Empty when neither was parsed.
func (d *ParsedDecision) Summary() string {
	var parts []string
	if d.Agent != nil {
		parts = append(parts, "Selected agent: "+*d.Agent)
	}
	if d.Confidence != nil {
		parts = append(parts, fmt.Sprintf("Confidence: %.0f%%", *d.Confidence*100))
	}
	return strings.Join(parts, " | ")
}

// Empty reports whether nothing at all was extracted.
func (d *ParsedDecision) Empty() bool {
	return len(d.Raw) == 0 && d.YesNo == nil && d.Reasoning == nil
}
