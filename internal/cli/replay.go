package cli

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ci-healer/agent/internal/orchestrator"
)

var replayCmd = &cobra.Command{
	Use:   "replay <run_id> <owner/repo>",
	Short: "Re-ingest a failed pipeline run",
	Long: `Re-ingest a (run_id, repo) pair: reset its row to pending and run the
pipeline again in this process. A pipeline for the same run that is in
flight in another process (such as serve) is not cancelled.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		runID, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || runID <= 0 {
			return fmt.Errorf("invalid run id %q: must be a positive integer", args[0])
		}
		repo := args[1]
		owner, name, ok := strings.Cut(repo, "/")
		if !ok {
			return fmt.Errorf("invalid repo %q: expected owner/name", repo)
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		a, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()

		existing, err := a.Store.GetFailure(ctx, runID, repo)
		if err != nil {
			return fmt.Errorf("run %d (%s) not found in durable store: %w", runID, repo, err)
		}

		sha, _ := cmd.Flags().GetString("sha")
		if sha == "" {
			sha = existing.Sha
		}
		branch, _ := cmd.Flags().GetString("branch")
		if branch == "" {
			branch = existing.Branch
		}

		ev := orchestrator.Event{
			RunID:        runID,
			Repo:         repo,
			Owner:        owner,
			Name:         name,
			Sha:          sha,
			Branch:       branch,
			WorkflowName: existing.WorkflowName,
			CloneURL:     githubCloneURL(repo),
		}

		if err := a.Orch.Ingest(ctx, ev); err != nil {
			return fmt.Errorf("replay run %d (%s): %w", runID, repo, err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Re-ingested run %d (%s)\n", runID, repo)
		return a.Orch.Wait()
	},
}

func init() {
	replayCmd.Flags().String("sha", "", "Commit sha to replay against (defaults to the stored failure's sha)")
	replayCmd.Flags().String("branch", "", "Branch name to replay against (defaults to the stored failure's branch)")
}
