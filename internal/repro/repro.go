// Package repro implements the Reproduction Runner (C5): clone the
// target repository at a commit, detect its test harness, install its
// dependencies in a fresh sandbox, run its test command, and report
// whether the failure reproduces. Grounded on the teacher's
// internal/worktree clone shape plus sandbox.Driver for command
// execution.
package repro

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ci-healer/agent/internal/sandbox"
	"github.com/ci-healer/agent/internal/workspace"
)

const (
	// PythonImage is the stable base image spec.md §4.5 step 3 specifies.
	PythonImage = "python:3.11-slim"

	defaultTimeout    = 300 * time.Second
	depInstallTimeout = 180 * time.Second
	editableInstall   = 120 * time.Second
)

// Input parameterizes one reproduction run.
type Input struct {
	CloneURL        string
	Sha             string
	OverrideCommand []string
	Timeout         time.Duration
}

// Result is the outcome spec.md §4.5 step 6 defines.
type Result struct {
	Success      bool
	Reproduced   bool
	ExitCode     int
	Stdout       string
	Stderr       string
	WorkspaceDir string
	Error        string
}

// Runner owns the workspace manager and sandbox driver reproduction
// needs; both are shared process-wide handles.
type Runner struct {
	Workspaces *workspace.Manager
	Sandboxes  *sandbox.Driver
}

// New builds a Runner over the given workspace manager and sandbox driver.
func New(ws *workspace.Manager, sb *sandbox.Driver) *Runner {
	return &Runner{Workspaces: ws, Sandboxes: sb}
}

// Run executes the reproduction procedure end to end. The sandbox is
// always released; the workspace directory is released on any failure
// and retained only when Success && Reproduced, per spec.md §4.5 step 6
// ("workspaceDir may be retained for C9 only when success is true and
// reproduced is true").
func (r *Runner) Run(ctx context.Context, in Input) Result {
	timeout := in.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ws, err := r.Workspaces.CloneAtCommit(in.CloneURL, in.Sha, 50)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("clone failed: %v", err)}
	}

	retain := false
	defer func() {
		if !retain {
			_ = r.Workspaces.Release(ws)
		}
	}()

	harness := DetectHarness(ws.Path)
	command := in.OverrideCommand
	if len(command) == 0 {
		command = harness.DefaultCommand()
	}

	result, err := sandbox.WithSandboxResult(ctx, r.Sandboxes, PythonImage, ws.Path, func(sess *sandbox.Session) (Result, error) {
		if res, ok := installDeps(ctx, sess, harness); !ok {
			return res, nil
		}

		exec, err := sess.Exec(ctx, command, timeout)
		if err != nil {
			return Result{}, fmt.Errorf("test run: %w", err)
		}

		return Result{
			Success:      true,
			Reproduced:   exec.ExitCode != 0,
			ExitCode:     exec.ExitCode,
			Stdout:       exec.Stdout,
			Stderr:       exec.Stderr,
			WorkspaceDir: ws.Path,
		}, nil
	})
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}

	if result.Success && result.Reproduced {
		retain = true
		result.WorkspaceDir = ws.Path
	}
	return result
}

// installDeps runs the installer steps of spec.md §4.5 step 3. A
// non-zero dependency-install exit code is tolerated per spec.md §7 —
// the test command still runs and decides reproduction — so this only
// reports ok=false on an actual sandbox error, never on a non-zero exit.
func installDeps(ctx context.Context, sess *sandbox.Session, h Harness) (Result, bool) {
	steps := [][]string{
		{"python", "-m", "pip", "install", "--upgrade", "pip"},
		{"python", "-m", "pip", "install", "pytest"},
	}
	for _, argv := range steps {
		if _, err := sess.Exec(ctx, argv, editableInstall); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("installer setup failed: %v", err)}, false
		}
	}

	if h.HasRequirements {
		if _, err := sess.Exec(ctx, []string{"python", "-m", "pip", "install", "-r", "requirements.txt"}, depInstallTimeout); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("dependency install failed: %v", err)}, false
		}
	}
	if h.HasSetupPy {
		if _, err := sess.Exec(ctx, []string{"python", "-m", "pip", "install", "-e", "."}, editableInstall); err != nil {
			return Result{Success: false, Error: fmt.Sprintf("editable install failed: %v", err)}, false
		}
	}
	return Result{}, true
}

// SandboxTestRunner re-runs a project's test command against an already
// checked-out workspace without cloning — the "C4 + simplified C5"
// variant spec.md §4.9 step 4 asks the Fix Loop to use. It satisfies
// fixloop.TestRunner structurally.
type SandboxTestRunner struct {
	Sandboxes *sandbox.Driver
	Command   []string
}

// RunTests execs Command (falling back to the bare pytest invocation
// when unset) inside a fresh sandbox session bound to workspaceDir.
func (r *SandboxTestRunner) RunTests(ctx context.Context, workspaceDir string, timeout time.Duration) (int, string, string, error) {
	command := r.Command
	if len(command) == 0 {
		command = []string{"python", "-m", "pytest"}
	}
	exec, err := sandbox.WithSandboxResult(ctx, r.Sandboxes, PythonImage, workspaceDir, func(sess *sandbox.Session) (sandbox.ExecResult, error) {
		return sess.Exec(ctx, command, timeout)
	})
	if err != nil {
		return 0, "", "", err
	}
	return exec.ExitCode, exec.Stdout, exec.Stderr, nil
}

// Harness describes the detected test-harness markers of spec.md §4.5
// step 2.
type Harness struct {
	HasRequirements bool
	HasPytestConfig bool
	HasSetupPy      bool
}

// DefaultCommand derives the test invocation spec.md §4.5 step 2
// specifies: a bare pytest invocation when a [tool.pytest] section is
// present, otherwise an explicit invocation against tests/ with verbose
// and short-traceback flags.
func (h Harness) DefaultCommand() []string {
	if h.HasPytestConfig {
		return []string{"python", "-m", "pytest"}
	}
	return []string{"python", "-m", "pytest", "tests/", "-v", "--tb=short"}
}

// DetectHarness inspects workspaceDir for the markers spec.md §4.5
// step 2 names.
func DetectHarness(workspaceDir string) Harness {
	var h Harness
	if fileExists(filepath.Join(workspaceDir, "requirements.txt")) {
		h.HasRequirements = true
	}
	if fileExists(filepath.Join(workspaceDir, "setup.py")) {
		h.HasSetupPy = true
	}
	if data, err := os.ReadFile(filepath.Join(workspaceDir, "pyproject.toml")); err == nil {
		h.HasPytestConfig = containsPytestSection(string(data))
	}
	return h
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func containsPytestSection(toml string) bool {
	return strings.Contains(toml, "[tool.pytest")
}
