// Package orchestrator implements the Pipeline Orchestrator (C10): the
// fixed status transition table of spec.md §4.10, driving every other
// stage component in sequence for one failure event. Grounded on the
// teacher's Orchestrator.Advance / handleStageFailure / nextStageID
// shape, adapted from "stage config advance" to a fixed status table —
// there is no per-repo stage configuration here, the table is the spec.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ci-healer/agent/internal/analysis"
	"github.com/ci-healer/agent/internal/codehost"
	"github.com/ci-healer/agent/internal/config"
	"github.com/ci-healer/agent/internal/dbstore"
	"github.com/ci-healer/agent/internal/fixloop"
	"github.com/ci-healer/agent/internal/logscan"
	"github.com/ci-healer/agent/internal/repro"
	"github.com/ci-healer/agent/internal/testsynth"
	"github.com/ci-healer/agent/internal/workspace"

	"github.com/rs/zerolog"
)

// Status values per spec.md §4.10's state machine.
const (
	StatusPending        = "pending"
	StatusFetchingLogs   = "fetching_logs"
	StatusAnalyzing      = "analyzing"
	StatusReproducing    = "reproducing"
	StatusNotReproduced  = "not_reproduced"
	StatusGeneratingTest = "generating_test"
	StatusFixing         = "fixing"
	StatusCreatingPR     = "creating_pr"
	StatusFixed          = "fixed"
	StatusEscalated      = "escalated"
	StatusFailed         = "failed"
)

// LLM is the narrow capability the orchestrator's stages need; satisfied
// by *llmclient.Client.
type LLM interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

// Store is the narrow persistence capability the orchestrator needs from
// the Durable Store (C11); satisfied by *dbstore.Store.
type Store interface {
	UpsertFailure(ctx context.Context, f dbstore.Failure) (int64, error)
	UpdateStatus(ctx context.Context, failureID int64, status string) error
	RecordAnalysis(ctx context.Context, failureID int64, errorKind, filePath string, line int, functionName, errorMessage, failingTest string, confidence float64, rawExcerpt string) error
	Complete(ctx context.Context, failureID int64, status, prURL, issueURL, errMsg string) error
	AppendAttempt(ctx context.Context, failureID int64, attemptNumber int, filePath, originalCode, fixedCode, explanation, verdict, errorOutput string) error
	AppendGeneratedTest(ctx context.Context, failureID int64, testName, testCode, targetFile string, importsNeeded []string) error
	LogEvent(ctx context.Context, failureID int64, event, status, detail string) error
}

// Codehost is the narrow code-host capability the orchestrator needs;
// satisfied by *codehost.Client.
type Codehost interface {
	DownloadRunLogs(ctx context.Context, owner, repo string, runID int64) ([]codehost.JobLog, error)
	CreateReviewRequest(ctx context.Context, owner, repo, branch, base, title, body string) (string, error)
	CreateEscalation(ctx context.Context, owner, repo, title, body string) (string, error)
}

// Workspaces is the narrow workspace-release capability the orchestrator
// needs; satisfied by *workspace.Manager. CloneAtCommit is exercised by
// Runner, not by the orchestrator directly.
type Workspaces interface {
	Release(ws *workspace.Workspace) error
}

// Runner is the narrow reproduction capability the orchestrator needs
// from C5; satisfied by *repro.Runner.
type Runner interface {
	Run(ctx context.Context, in repro.Input) repro.Result
}

// Event is the normalized ingestion event spec.md §6 describes.
type Event struct {
	RunID        int64
	Repo         string // owner/name
	Owner        string
	Name         string
	Sha          string
	Branch       string
	WorkflowName string
	CloneURL     string
}

func (e Event) key() string { return fmt.Sprintf("%d/%s", e.RunID, e.Repo) }

// Orchestrator composes every stage component and drives one pipeline
// per ingested failure event to a terminal status. Each pipeline runs as
// an independent goroutine under a bounded errgroup.Group; Ingest does not
// wait for its own pipeline to finish, but while Concurrency pipelines are
// already running it waits for one of them to finish before returning.
type Orchestrator struct {
	store      Store
	codehost   Codehost
	workspaces Workspaces
	runner     Runner
	testRunner fixloop.TestRunner
	llm        LLM
	log        zerolog.Logger
	fixTimeout time.Duration

	group *errgroup.Group

	mu       sync.Mutex
	inFlight map[string]context.CancelFunc
}

// Options parameterizes the Orchestrator's dependencies and its bounded
// concurrency (spec.md §5's "independent, may run in parallel").
type Options struct {
	Store          Store
	Codehost       Codehost
	Workspaces     Workspaces
	Runner         Runner
	TestRunner     fixloop.TestRunner
	LLM            LLM
	Log            zerolog.Logger
	Concurrency    int
	FixTestTimeout time.Duration
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	g := &errgroup.Group{}
	g.SetLimit(concurrency)
	fixTimeout := opts.FixTestTimeout
	if fixTimeout <= 0 {
		fixTimeout = fixloop.DefaultTestTimeout
	}
	return &Orchestrator{
		store:      opts.Store,
		codehost:   opts.Codehost,
		workspaces: opts.Workspaces,
		runner:     opts.Runner,
		testRunner: opts.TestRunner,
		llm:        opts.LLM,
		log:        opts.Log,
		fixTimeout: fixTimeout,
		group:      g,
		inFlight:   make(map[string]context.CancelFunc),
	}
}

// Wait blocks until every pipeline started so far has completed, for
// graceful shutdown.
func (o *Orchestrator) Wait() error {
	return o.group.Wait()
}

// Ingest persists the failure row and runs the pipeline to completion
// asynchronously, returning without waiting for it to finish. When the
// concurrency limit is reached, Ingest blocks until a running pipeline
// finishes and frees a slot. A re-ingestion of the same (run_id, repo) pair cancels any in-flight
// pipeline for that pair and starts a fresh run against the reset
// pending row, per the decided replay semantics (see DESIGN.md).
func (o *Orchestrator) Ingest(ctx context.Context, ev Event) error {
	failureID, err := o.store.UpsertFailure(ctx, dbstore.Failure{
		RunID:        ev.RunID,
		Repo:         ev.Repo,
		Sha:          ev.Sha,
		Branch:       ev.Branch,
		WorkflowName: ev.WorkflowName,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: upsert failure: %w", err)
	}
	_ = o.store.LogEvent(ctx, failureID, "created", StatusPending, "")

	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	if prior, ok := o.inFlight[ev.key()]; ok {
		prior()
	}
	o.inFlight[ev.key()] = cancel
	o.mu.Unlock()

	o.group.Go(func() error {
		defer func() {
			o.mu.Lock()
			// A re-ingestion cancels runCtx before replacing this run's
			// entry, so only a run that was not cancelled still owns it.
			if runCtx.Err() == nil {
				delete(o.inFlight, ev.key())
			}
			o.mu.Unlock()
			cancel()
		}()

		if err := o.run(runCtx, failureID, ev); err != nil {
			o.log.Error().Err(err).Int64("run_id", ev.RunID).Str("repo", ev.Repo).Msg("pipeline failed")
		}
		return nil
	})

	return nil
}

// run executes the state machine of spec.md §4.10 end to end for one
// failure row. Every transition is persisted before the next stage
// begins; workspace cleanup is guaranteed on every terminal transition.
func (o *Orchestrator) run(ctx context.Context, failureID int64, ev Event) (runErr error) {
	var ws *workspaceHandle

	defer func() {
		if r := recover(); r != nil {
			runErr = fmt.Errorf("panic: %v", r)
			o.terminal(ctx, failureID, StatusFailed, "", "", runErr.Error())
		}
		if ws != nil {
			ws.release()
		}
	}()

	o.transition(ctx, failureID, StatusFetchingLogs)
	logs, err := o.fetchLogs(ctx, ev)
	if err != nil {
		o.terminal(ctx, failureID, StatusFailed, "", "", err.Error())
		return err
	}

	o.transition(ctx, failureID, StatusAnalyzing)
	excerpt, ok := logscan.Localize(logs)
	if !ok {
		o.escalate(ctx, failureID, ev, "no logs available to localize the failure")
		return nil
	}
	excerpt = logscan.Truncate(excerpt, logscan.DefaultBudget)

	art, err := analysis.Analyze(ctx, o.llm, ev.Repo, ev.WorkflowName, ev.Sha, excerpt)
	if err != nil {
		o.terminal(ctx, failureID, StatusFailed, "", "", err.Error())
		return err
	}
	_ = o.store.RecordAnalysis(ctx, failureID, string(art.ErrorKind), art.FilePath, art.Line, art.FunctionName, art.ErrorMessage, art.FailingTest, art.Confidence, art.RawExcerpt)

	if art.BelowGate() {
		o.escalate(ctx, failureID, ev, fmt.Sprintf("Low confidence analysis: confidence %.2f below gate %.2f", art.Confidence, config.ConfidenceGate))
		return nil
	}

	o.transition(ctx, failureID, StatusReproducing)
	result := o.runner.Run(ctx, repro.Input{CloneURL: ev.CloneURL, Sha: ev.Sha})
	if !result.Success {
		o.terminal(ctx, failureID, StatusFailed, "", "", result.Error)
		return fmt.Errorf("reproduction setup failed: %s", result.Error)
	}
	if !result.Reproduced {
		o.terminal(ctx, failureID, StatusNotReproduced, "", "", "")
		return nil
	}
	ws = &workspaceHandle{manager: o.workspaces, path: result.WorkspaceDir}

	o.transition(ctx, failureID, StatusGeneratingTest)
	source, err := readFile(result.WorkspaceDir, art.FilePath)
	if err != nil {
		o.terminal(ctx, failureID, StatusFailed, "", "", err.Error())
		return err
	}
	gen, err := testsynth.Synthesize(ctx, o.llm, art.FilePath, source, "", art)
	if err != nil {
		o.terminal(ctx, failureID, StatusFailed, "", "", err.Error())
		return err
	}
	_ = o.store.AppendGeneratedTest(ctx, failureID, gen.Name, gen.Source, gen.TargetFile, gen.RequiredSymbols)

	o.transition(ctx, failureID, StatusFixing)
	fixResult := fixloop.Run(ctx, fixloop.Options{
		Workspace:   result.WorkspaceDir,
		LLM:         o.llm,
		Runner:      o.testRunner,
		Analysis:    art,
		TestTimeout: o.fixTimeout,
	})
	for _, a := range fixResult.Attempts {
		_ = o.store.AppendAttempt(ctx, failureID, a.AttemptNumber, a.FilePath, a.OriginalCode, a.FixedCode, a.Explanation, a.Verdict, a.ErrorOutput)
	}

	if !fixResult.Succeeded {
		o.escalate(ctx, failureID, ev, "fix loop exhausted max attempts without a passing patch")
		return nil
	}

	o.transition(ctx, failureID, StatusCreatingPR)
	prURL, err := o.createReview(ctx, ev, art, gen)
	if err != nil {
		o.terminal(ctx, failureID, StatusFailed, "", "", err.Error())
		return err
	}

	o.terminal(ctx, failureID, StatusFixed, prURL, "", "")
	return nil
}

func (o *Orchestrator) fetchLogs(ctx context.Context, ev Event) ([]logscan.JobLog, error) {
	raw, err := o.codehost.DownloadRunLogs(ctx, ev.Owner, ev.Name, ev.RunID)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}
	logs := make([]logscan.JobLog, 0, len(raw))
	for _, jl := range raw {
		logs = append(logs, logscan.JobLog{Job: jl.Job, Text: jl.Text})
	}
	return logs, nil
}

func (o *Orchestrator) createReview(ctx context.Context, ev Event, art *analysis.Artifact, gen *testsynth.GeneratedTest) (string, error) {
	branch := fmt.Sprintf("repairagent/%d", ev.RunID)
	title := fmt.Sprintf("Fix %s in %s", art.ErrorKind, art.FilePath)
	body := fmt.Sprintf("Automated fix for a %s failure detected in run %d.\n\nFile: %s\nFunction: %s\n\nGenerated regression test: %s", art.ErrorKind, ev.RunID, art.FilePath, art.FunctionName, gen.Name)
	return o.codehost.CreateReviewRequest(ctx, ev.Owner, ev.Name, branch, ev.Branch, title, body)
}

func (o *Orchestrator) escalate(ctx context.Context, failureID int64, ev Event, reason string) {
	title := fmt.Sprintf("Automated repair escalation: run %d in %s", ev.RunID, ev.Repo)
	body := fmt.Sprintf("The automated repair pipeline could not resolve this failure automatically.\n\nReason: %s", reason)
	issueURL, err := o.codehost.CreateEscalation(ctx, ev.Owner, ev.Name, title, body)
	if err != nil {
		o.log.Error().Err(err).Msg("failed to open escalation issue")
	}
	o.terminal(ctx, failureID, StatusEscalated, "", issueURL, reason)
}

// transition persists a non-terminal status change before the next
// stage begins, per spec.md §4.10's monotone-progress requirement.
func (o *Orchestrator) transition(ctx context.Context, failureID int64, status string) {
	_ = o.store.UpdateStatus(ctx, failureID, status)
	_ = o.store.LogEvent(ctx, failureID, "stage_advanced", status, "")
}

// terminal persists a terminal status along with any PR/issue URL or
// error message, and logs the transition.
func (o *Orchestrator) terminal(ctx context.Context, failureID int64, status, prURL, issueURL, errMsg string) {
	_ = o.store.Complete(ctx, failureID, status, prURL, issueURL, errMsg)
	_ = o.store.LogEvent(ctx, failureID, "completed", status, errMsg)
}

// workspaceHandle defers the release of a reproduction-retained
// workspace to the pipeline's terminal transition.
type workspaceHandle struct {
	manager Workspaces
	path    string
}

func (h *workspaceHandle) release() {
	_ = h.manager.Release(&workspace.Workspace{Path: h.path})
}

func readFile(workspaceDir, relPath string) (string, error) {
	data, err := os.ReadFile(filepath.Join(workspaceDir, relPath))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}
	return string(data), nil
}
