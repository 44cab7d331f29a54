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
	"regexp"
	"strings"
)

// Marker binds a field name to the keyword that introduces its value in free
// text. Several markers may share a field; the first one present in the text,
// in table order, supplies the value.
type Marker struct {
	Field string
	Token string
}

// Grammar extracts marker-delimited fields from free text.
//
// A marker line has the shape `TOKEN: value` at the start of a line, with the
// token matched case-insensitively and optionally wrapped in markdown emphasis
// (`**TOKEN:**`, `_TOKEN_:`). A value runs from the colon up to the next line
// that starts with a recognized token or with any all-uppercase `WORD:` head,
// or to the end of the text.
type Grammar struct {
	markers []Marker
	known   map[string]bool
}

// headPattern recognizes a `KEYWORD:` line head. Group 1 is the keyword,
// group 2 the remainder of the line after the colon.
var headPattern = regexp.MustCompile(`^\s*(?:[*_]{1,2})?([A-Za-z](?:[A-Za-z0-9_]*[A-Za-z0-9])?)(?:[*_]{1,2})?\s*:(?:[*_]{1,2}(?:\s|$))?(.*)$`)

// NewGrammar creates a grammar over the given ordered markers.
func NewGrammar(markers ...Marker) *Grammar {
	g := &Grammar{
		markers: append([]Marker(nil), markers...),
		known:   make(map[string]bool, len(markers)),
	}
	for _, m := range markers {
		g.known[strings.ToUpper(m.Token)] = true
	}
	return g
}

// Extract runs markers over text and returns field name -> captured value.
// Markers that are absent, or whose value is empty, are left out.
func Extract(text string, markers []Marker) map[string]string {
	return NewGrammar(markers...).Extract(text)
}

// Markers returns a copy of the grammar's marker table.
func (g *Grammar) Markers() []Marker {
	return append([]Marker(nil), g.markers...)
}

// Extract returns the values of the grammar's markers found in text.
func (g *Grammar) Extract(text string) map[string]string {
	lines := splitLines(text)
	fields := make(map[string]string)

	for _, m := range g.markers {
		if _, done := fields[m.Field]; done {
			continue
		}
		token := strings.ToUpper(m.Token)
		for i, l := range lines {
			if !l.head || l.upper != token {
				continue
			}
			if v := g.capture(lines, i); v != "" {
				fields[m.Field] = v
			}
			break
		}
	}
	return fields
}

// ExtractAll is Extract plus every unrecognized all-uppercase `WORD:` line,
// keyed by the lower-cased keyword. Recognized fields take precedence.
func (g *Grammar) ExtractAll(text string) map[string]string {
	fields := g.Extract(text)
	lines := splitLines(text)

	for i, l := range lines {
		if !l.head || g.known[l.upper] || !isUpperWord(l.keyword) {
			continue
		}
		key := strings.ToLower(l.keyword)
		if _, exists := fields[key]; exists {
			continue
		}
		if v := g.capture(lines, i); v != "" {
			fields[key] = v
		}
	}
	return fields
}

// capture collects the value that starts on lines[start].
func (g *Grammar) capture(lines []line, start int) string {
	parts := []string{lines[start].rest}
	for _, l := range lines[start+1:] {
		if g.terminates(l) {
			break
		}
		parts = append(parts, l.text)
	}
	return cleanValue(strings.Join(parts, "\n"))
}

func (g *Grammar) terminates(l line) bool {
	return l.head && (g.known[l.upper] || isUpperWord(l.keyword))
}

type line struct {
	text    string
	head    bool
	keyword string
	upper   string
	rest    string
}

func splitLines(text string) []line {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]line, len(raw))
	for i, s := range raw {
		lines[i].text = s
		if m := headPattern.FindStringSubmatch(s); m != nil {
			lines[i].head = true
			lines[i].keyword = m[1]
			lines[i].upper = strings.ToUpper(m[1])
			lines[i].rest = m[2]
		}
	}
	return lines
}

func isUpperWord(s string) bool {
	hasLetter := false
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			hasLetter = true
		case r >= 'a' && r <= 'z':
			return false
		}
	}
	return hasLetter
}

// wrappers are the quote and emphasis pairs stripped from a captured value,
// longest first so `**x**` loses both asterisks.
var wrappers = [][2]string{
	{"**", "**"},
	{"__", "__"},
	{`"`, `"`},
	{"“", "”"},
	{"'", "'"},
	{"`", "`"},
	{"*", "*"},
	{"_", "_"},
}

// cleanValue trims whitespace and one layer of quote or emphasis punctuation.
func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	for _, w := range wrappers {
		if len(v) >= len(w[0])+len(w[1]) && strings.HasPrefix(v, w[0]) && strings.HasSuffix(v, w[1]) {
			return strings.TrimSpace(v[len(w[0]) : len(v)-len(w[1])])
		}
	}
	return v
}
