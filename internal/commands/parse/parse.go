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

// Package parse implements `xray parse`.
package parse

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tombee/xray/internal/commands/shared"
	"github.com/tombee/xray/internal/output"
	"github.com/tombee/xray/pkg/decision"
)

const maxInput = 10 << 20

// NewCommand creates the parse command.
func NewCommand() *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "parse [file]",
		Short: "Extract decision fields from a model response",
		Long: `Read a model response from a file, or stdin when no file (or "-") is
given, and print the parsed decision as JSON.

Recognized markers: AGENT, CONFIDENCE, REASONING/REASON, RECIPIENT, MESSAGE,
TITLE, DATETIME, URGENCY and ATTENDEES. Any other UPPERCASE_WORD: line is
kept under "raw".`,
		Example: `  echo "AGENT: slack_dm\nCONFIDENCE: 0.8" | xray parse
  xray parse response.txt --summary`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readInput(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			d := decision.Parse(text)
			out := cmd.OutOrStdout()
			if summary && !shared.GetJSON() {
				s := d.Summary()
				if s == "" {
					s = "No agent or confidence found."
				}
				_, err := fmt.Fprintln(out, s)
				return err
			}
			return output.EmitJSON(out, d)
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", false, "Print a one-line summary instead of JSON")
	return cmd
}

func readInput(stdin io.Reader, args []string) (string, error) {
	r := stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return "", shared.NewExitError(shared.ExitNotFound, "cannot read "+args[0], err)
		}
		defer f.Close()
		r = f
	}

	data, err := io.ReadAll(io.LimitReader(r, maxInput+1))
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	if len(data) > maxInput {
		return "", shared.NewExitError(shared.ExitFailed, "input exceeds 10MB", nil)
	}
	return string(data), nil
}
