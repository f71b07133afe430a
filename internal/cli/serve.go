package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/ci-healer/agent/internal/janitor"
	"github.com/ci-healer/agent/internal/webhook"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook listener and pipeline orchestrator",
	Long: `Start the HTTP webhook listener that ingests workflow-run failure
events, drives them through the repair pipeline, and runs the janitor's
background sweep on a schedule.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := a.Store.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate durable store: %w", err)
		}

		j := janitor.New(a.Sandboxes, a.Workspaces, a.Log)
		if err := j.Start(ctx, a.Config.Janitor.Schedule); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
		defer j.Stop()

		handler := webhook.New(a.Orch, a.Config.WebhookSecret, a.Log)
		mux := http.NewServeMux()
		mux.Handle("/webhook", handler)

		a.Log.Info().Str("addr", a.Config.Server.Addr).Msg("listening for workflow-run webhooks")
		return http.ListenAndServe(a.Config.Server.Addr, mux)
	},
}
