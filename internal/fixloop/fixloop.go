// Package fixloop implements the Fix Loop (C9): a bounded iteration of
// synthesize → apply → re-test → verify-or-revert, accumulating an
// attempt log the orchestrator persists and the next fixsynth call reads
// back as context. Grounded on the teacher's internal/stage.Engine.Run
// round-loop shape (round counter, fresh per-round state, accumulated
// check state), generalized here from checks-re-run to patch-apply-retest.
package fixloop

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ci-healer/agent/internal/analysis"
	"github.com/ci-healer/agent/internal/fixsynth"
	"github.com/ci-healer/agent/internal/patch"
)

// MaxAttempts bounds the loop per spec.md §4.9.
const MaxAttempts = 3

// DefaultTestTimeout is used when Options.TestTimeout is unset, so an
// omitted timeout doesn't collapse to an already-expired context.
const DefaultTestTimeout = 300 * time.Second

const (
	verdictPass = "pass"
	verdictFail = "fail"
)

// Attempt is the append-only record spec.md §3 defines for one
// (synthesize, apply, verify) cycle.
type Attempt struct {
	AttemptNumber int
	FilePath      string
	OriginalCode  string
	FixedCode     string
	Explanation   string
	Verdict       string
	ErrorOutput   string
}

// Result is the loop's post-loop return value per spec.md §4.9.
type Result struct {
	Succeeded bool
	Attempts  []Attempt
}

// LLM is the narrow capability the loop needs from fix synthesis.
type LLM interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

// TestRunner runs the project's test command against a workspace in a
// fresh sandbox session — C4 plus a simplified variant of C5 that skips
// cloning, since the workspace already exists and is being mutated.
type TestRunner interface {
	RunTests(ctx context.Context, workspaceDir string, timeout time.Duration) (exitCode int, stdout, stderr string, err error)
}

// Options parameterizes one Fix Loop run.
type Options struct {
	Workspace         string
	LLM               LLM
	Runner            TestRunner
	Analysis          *analysis.Artifact
	InitialTestOutput string
	TestTimeout       time.Duration
}

// Run executes the bounded fix loop against opts.Workspace, returning
// once a patch verifies (exit code 0) or MaxAttempts is exhausted.
func Run(ctx context.Context, opts Options) *Result {
	if opts.TestTimeout <= 0 {
		opts.TestTimeout = DefaultTestTimeout
	}

	result := &Result{}
	priorAttempts := []fixsynth.PriorAttempt{}
	lastTestOutput := opts.InitialTestOutput

	for n := 1; n <= MaxAttempts; n++ {
		attempt, testOutput, applied := runIteration(ctx, opts, n, priorAttempts, lastTestOutput)
		result.Attempts = append(result.Attempts, attempt)
		priorAttempts = append(priorAttempts, fixsynth.PriorAttempt{
			AttemptNumber: attempt.AttemptNumber,
			Explanation:   attempt.Explanation,
			Verdict:       attempt.Verdict,
			ErrorOutput:   attempt.ErrorOutput,
		})

		if attempt.Verdict == verdictPass {
			result.Succeeded = true
			return result
		}
		if applied {
			lastTestOutput = testOutput
		}
	}

	return result
}

// runIteration performs one synthesize→apply→retest→verify-or-revert
// cycle, recovering from any panic raised along the way and recording it
// as a synthetic fail attempt per spec.md §4.9 step 7.
func runIteration(ctx context.Context, opts Options, n int, prior []fixsynth.PriorAttempt, lastTestOutput string) (attempt Attempt, testOutput string, applied bool) {
	attempt = Attempt{AttemptNumber: n, Verdict: verdictFail}

	defer func() {
		if r := recover(); r != nil {
			attempt.Verdict = verdictFail
			attempt.Explanation = fmt.Sprintf("panic: %v", r)
		}
	}()

	source, err := os.ReadFile(filepath.Join(opts.Workspace, opts.Analysis.FilePath))
	if err != nil {
		attempt.Explanation = fmt.Sprintf("failed to read source: %v", err)
		return attempt, "", false
	}

	p, err := fixsynth.Synthesize(ctx, opts.LLM, opts.Analysis.FilePath, string(source), opts.Analysis, prior, lastTestOutput)
	if err != nil {
		attempt.Explanation = fmt.Sprintf("fix synthesis failed: %v", err)
		return attempt, "", false
	}
	attempt.FilePath = p.FilePath
	attempt.OriginalCode = p.OriginalSpan
	attempt.FixedCode = p.ReplacementSpan
	attempt.Explanation = p.Explanation

	if err := patch.Apply(opts.Workspace, *p); err != nil {
		attempt.Explanation = "Failed to apply fix — original code not found"
		attempt.ErrorOutput = err.Error()
		return attempt, "", false
	}

	exitCode, _, stderr, err := opts.Runner.RunTests(ctx, opts.Workspace, opts.TestTimeout)
	if err != nil {
		attempt.Explanation = fmt.Sprintf("test run failed: %v", err)
		_ = patch.Revert(opts.Workspace, *p)
		return attempt, "", true
	}

	if exitCode == 0 {
		attempt.Verdict = verdictPass
		return attempt, "", true
	}

	attempt.ErrorOutput = truncate(stderr, 500)
	_ = patch.Revert(opts.Workspace, *p)
	return attempt, stderr, true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
