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

package output

import (
	"fmt"
	"regexp"

	"github.com/charmbracelet/glamour"
)

const maxMarkdownSize = 5 * 1024 * 1024

// ansiEscapeRegex matches ANSI escape sequences.
var ansiEscapeRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// StripANSI removes ANSI escape sequences, for example from model output
// echoed to a terminal.
func StripANSI(s string) string {
	return ansiEscapeRegex.ReplaceAllString(s, "")
}

// RenderMarkdown renders a model answer for a terminal. Non-terminals get
// the content unchanged, and rendering failures fall back to plain text.
func RenderMarkdown(content string, tty bool) (string, error) {
	if len(content) > maxMarkdownSize {
		return "", fmt.Errorf("output size (%d bytes) exceeds maximum for markdown (%d bytes)", len(content), maxMarkdownSize)
	}
	if !tty {
		return content, nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return content, nil
	}
	rendered, err := renderer.Render(StripANSI(content))
	if err != nil {
		return content, nil
	}
	return rendered, nil
}
