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

// Package sessions implements `xray sessions`, a client for the collector.
package sessions

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tombee/xray/internal/collector"
	"github.com/tombee/xray/internal/commands/shared"
	"github.com/tombee/xray/internal/jq"
	"github.com/tombee/xray/internal/output"
	"github.com/tombee/xray/pkg/telemetry"
)

// NewCommand creates the sessions command group.
func NewCommand() *cobra.Command {
	var url string

	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session"},
		Short:   "Inspect sessions stored by the collector",
	}
	cmd.PersistentFlags().StringVar(&url, "url", "", "Collector URL (default from config)")

	cmd.AddCommand(newListCommand(&url))
	cmd.AddCommand(newGetCommand(&url))
	cmd.AddCommand(newDeleteCommand(&url))
	return cmd
}

func newClient(url string) (*collector.Client, error) {
	if url == "" {
		cfg, err := shared.LoadConfig()
		if err != nil {
			return nil, err
		}
		url = cfg.Collector.URL
	}
	return collector.NewClient(url)
}

func newListCommand(url *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sessions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(*url)
			if err != nil {
				return err
			}
			list, err := client.ListSessions(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if shared.GetJSON() {
				if list == nil {
					list = []telemetry.SessionSummary{}
				}
				return output.EmitJSON(out, list)
			}
			if len(list) == 0 {
				if !shared.GetQuiet() {
					fmt.Fprintln(out, "No sessions recorded.")
				}
				return nil
			}
			return output.WriteSessionTable(out, list, output.IsTTY(out))
		},
	}
}

func newGetCommand(url *string) *cobra.Command {
	var query string

	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Show one session",
		Long: `Show one session as a tree of steps with their reasoning, observations
and events. Use --json for the raw document or --query to extract fields
with a jq expression.`,
		Example: `  xray sessions get 6f1c...
  xray sessions get 6f1c... --query '.steps[] | {name, reasoning}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var q *jq.Query
			if query != "" {
				var err error
				if q, err = jq.Compile(query); err != nil {
					return shared.NewExitError(shared.ExitConfigError, "invalid --query", err)
				}
			}

			client, err := newClient(*url)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if q != nil {
				raw, err := client.GetSessionRaw(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				results, err := q.Run(cmd.Context(), raw)
				if err != nil {
					return err
				}
				for _, r := range results {
					if err := output.EmitJSON(out, r); err != nil {
						return err
					}
				}
				return nil
			}

			sess, err := client.GetSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if shared.GetJSON() {
				return output.EmitJSON(out, sess)
			}
			return telemetry.WriteSession(out, sess)
		},
	}
	cmd.Flags().StringVar(&query, "query", "", "jq expression applied to the session JSON")
	return cmd
}

func newDeleteCommand(url *string) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete one session, or all with --all",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return shared.NewExitError(shared.ExitConfigError, "specify a session id or --all", errors.New("invalid arguments"))
			}

			client, err := newClient(*url)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if all {
				n, err := client.DeleteAllSessions(cmd.Context())
				if err != nil {
					return err
				}
				if shared.GetJSON() {
					return output.EmitJSON(out, map[string]any{"deleted": n})
				}
				if !shared.GetQuiet() {
					fmt.Fprintf(out, "Deleted %d session(s)\n", n)
				}
				return nil
			}

			if err := client.DeleteSession(cmd.Context(), args[0]); err != nil {
				return err
			}
			if shared.GetJSON() {
				return output.EmitJSON(out, map[string]any{"deleted": 1, "id": args[0]})
			}
			if !shared.GetQuiet() {
				fmt.Fprintf(out, "Deleted session %s\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Delete every session")
	return cmd
}
