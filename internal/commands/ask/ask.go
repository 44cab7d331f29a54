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

// Package ask implements `xray ask`, a single traced model call recorded as
// a session.
package ask

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/xray/internal/commands/shared"
	"github.com/tombee/xray/internal/config"
	"github.com/tombee/xray/internal/exporter"
	xlog "github.com/tombee/xray/internal/log"
	"github.com/tombee/xray/internal/output"
	"github.com/tombee/xray/internal/tracing"
	"github.com/tombee/xray/pkg/llm"
	_ "github.com/tombee/xray/pkg/llm/providers"
	"github.com/tombee/xray/pkg/telemetry"
)

// Result is the --json output of ask.
type Result struct {
	Answer  string             `json:"answer"`
	Session *telemetry.Session `json:"session"`
}

type options struct {
	system      string
	session     string
	provider    string
	model       string
	temperature float64
	responses   []string
	noExport    bool
}

// NewCommand creates the ask command.
func NewCommand() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask a model one question and record the decision",
		Long: `Send a prompt through the instrumented provider inside a new session.

The model is asked to end its answer with a REASON: line. That line is
stripped from the printed answer and recorded as the step's reasoning. The
session is exported to the collector unless --no-export is set or
collector.url is empty.`,
		Example: `  xray ask "Which channel should this alert go to?"
  xray ask "Ship it?" --provider scripted --response $'YES\nREASON: tests pass'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := shared.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("temperature") {
				t := opts.temperature
				cfg.LLM.Temperature = &t
			}
			return run(cmd, cfg, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.system, "system", "", "System prompt")
	f.StringVar(&opts.session, "session", "ask", "Session name")
	f.StringVar(&opts.provider, "provider", "", "Provider name (default from config)")
	f.StringVar(&opts.model, "model", "", "Model (default from config)")
	f.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature")
	f.StringArrayVar(&opts.responses, "response", nil, "Canned response for the scripted provider (repeatable)")
	f.BoolVar(&opts.noExport, "no-export", false, "Do not send the session to the collector")
	return cmd
}

func run(cmd *cobra.Command, cfg *config.Config, opts options, prompt string) error {
	ctx := cmd.Context()
	logger := xlog.WithComponent(shared.NewLogger(cfg), "ask")

	applyOverrides(cfg, opts)
	if err := cfg.Validate(); err != nil {
		return err
	}

	recOpts := []telemetry.Option{telemetry.WithLogger(logger)}
	var exp *exporter.Exporter
	if !opts.noExport && cfg.Collector.URL != "" {
		var err error
		exp, err = exporter.New(exporter.Config{
			URL:       cfg.Collector.URL,
			Timeout:   cfg.Collector.Timeout,
			UserAgent: cfg.Collector.UserAgent,
		}, exporter.WithLogger(logger))
		if err != nil {
			return err
		}
		recOpts = append(recOpts, telemetry.WithExporter(exp))
	}

	rec := telemetry.NewRecorder(recOpts...)
	sess := rec.StartSession(opts.session, map[string]any{
		"provider": cfg.LLM.Provider,
		"model":    cfg.LLM.Model,
	})

	logger = xlog.WithSession(logger, sess.ID)

	inst, err := tracing.Setup(ctx, cfg.TracingSettings(), rec, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	if exp != nil {
		exp.SetMetrics(inst.Metrics())
	}

	resp, callErr := complete(ctx, cfg, inst, logger, sess.ID, opts.system, prompt)
	if callErr != nil {
		rec.EndSession(telemetry.StatusFailed)
	}
	finish(ctx, cfg, inst, exp, logger)
	if callErr != nil {
		return callErr
	}

	out := cmd.OutOrStdout()
	if shared.GetJSON() {
		return output.EmitJSON(out, Result{Answer: resp.Content, Session: rec.CurrentSession().Clone()})
	}

	answer := resp.Content
	if rendered, err := output.RenderMarkdown(answer, output.IsTTY(out)); err == nil {
		answer = rendered
	}
	fmt.Fprintln(out, strings.TrimRight(answer, "\n"))
	if !shared.GetQuiet() {
		fmt.Fprintln(out)
		rec.PrintSession(out)
	}
	return nil
}

func applyOverrides(cfg *config.Config, opts options) {
	switch {
	case opts.provider != "":
		cfg.LLM.Provider = opts.provider
	case len(opts.responses) > 0:
		cfg.LLM.Provider = "scripted"
	}
	if opts.model != "" {
		cfg.LLM.Model = opts.model
	}
	if len(opts.responses) > 0 {
		cfg.LLM.Responses = opts.responses
	}
}

func complete(ctx context.Context, cfg *config.Config, inst *tracing.Instrumentation, logger *slog.Logger, sessionID, system, prompt string) (*llm.CompletionResponse, error) {
	base, err := llm.New(cfg.LLM.Provider, llm.ProviderConfig{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		Responses:   cfg.LLM.Responses,
	})
	if err != nil {
		if errors.Is(err, llm.ErrFactoryNotFound) {
			return nil, shared.NewExitError(shared.ExitConfigError,
				fmt.Sprintf("unknown provider %q (available: %s)", cfg.LLM.Provider, strings.Join(llm.Names(), ", ")), err)
		}
		return nil, err
	}

	logger.Debug("provider ready",
		slog.String(xlog.SystemKey, base.Name()),
		slog.String(xlog.ModelKey, cfg.LLM.Model),
		slog.String("api_key", xlog.SanitizeAPIKey(cfg.LLM.APIKey)),
	)
	xlog.Trace(ctx, logger, "prompt", slog.String("prompt", prompt), slog.String("system", system))

	retry := llm.DefaultRetryConfig()
	retry.MaxRetries = cfg.LLM.MaxRetries
	provider := inst.Wrap(llm.NewRetryableProvider(base, retry))

	req := llm.UserPrompt(cfg.LLM.Model, prompt)
	if system != "" {
		req.Messages = append([]llm.Message{{Role: llm.MessageRoleSystem, Content: system}}, req.Messages...)
	}
	req.Temperature = cfg.LLM.Temperature
	req.Metadata = map[string]string{"session_id": sessionID}

	callCtx, cancel := context.WithTimeout(tracing.ContextWithSessionID(ctx, sessionID), cfg.LLM.RequestTimeout)
	defer cancel()

	resp, err := provider.Complete(callCtx, req)
	if err != nil {
		return nil, shared.NewProviderError(provider.Name()+" completion failed", err)
	}
	return resp, nil
}

// finish flushes spans, exports the session and waits for in-flight pushes.
func finish(ctx context.Context, cfg *config.Config, inst *tracing.Instrumentation, exp *exporter.Exporter, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Collector.Timeout+5*time.Second)
	defer cancel()

	if err := inst.Shutdown(ctx); err != nil {
		logger.Warn("tracing shutdown", xlog.Error(err))
	}
	if exp == nil {
		return
	}
	if err := exp.Wait(ctx); err != nil {
		logger.Warn("collector export incomplete", xlog.Error(err))
	}
}
