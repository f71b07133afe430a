package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show status of all in-flight repair pipelines",
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

		failures, err := a.Store.ListActive(ctx)
		if err != nil {
			return err
		}

		format, _ := cmd.Flags().GetString("format")
		if format == "json" {
			data, err := json.MarshalIndent(failures, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		if len(failures) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active pipelines.")
			return nil
		}

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-10s %-40s %-14s %-10s %s\n", "RUN_ID", "REPO", "STATUS", "BRANCH", "WORKFLOW")
		fmt.Fprintf(w, "%-10s %-40s %-14s %-10s %s\n",
			strings.Repeat("-", 10), strings.Repeat("-", 40), strings.Repeat("-", 14),
			strings.Repeat("-", 10), strings.Repeat("-", 8))
		for _, f := range failures {
			repo := f.Repo
			if len(repo) > 40 {
				repo = repo[:37] + "..."
			}
			fmt.Fprintf(w, "%-10d %-40s %-14s %-10s %s\n", f.RunID, repo, f.Status, f.Branch, f.WorkflowName)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().String("format", "text", "Output format: text or json")
}
