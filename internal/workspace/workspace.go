// Package workspace manages the per-pipeline filesystem checkout directory
// defined in spec.md §3: created by the reproduction runner at the start of
// a pipeline, owned exclusively by that pipeline, and released on
// termination or by the janitor's age sweep.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// GitRunner executes git commands against a working directory. Interface
// for testing, mirroring the teacher's worktree.GitRunner shape.
type GitRunner interface {
	Run(dir string, args ...string) (string, error)
}

// Manager creates and releases workspaces under a single managed root so
// the janitor can enumerate exactly the directories it owns.
type Manager struct {
	git  GitRunner
	root string
}

// NewManager creates a workspace manager rooted at root. root is created
// on first use if absent.
func NewManager(git GitRunner, root string) *Manager {
	return &Manager{git: git, root: root}
}

// Workspace is a checked-out copy of a repository at a specific commit.
type Workspace struct {
	ID      string
	Path    string
	Repo    string
	Sha     string
	created time.Time
}

// CreatedAt reports when the workspace directory was created, for the
// janitor's age-based sweep.
func (w *Workspace) CreatedAt() time.Time { return w.created }

// CloneAtCommit creates a fresh workspace directory, shallow-clones
// cloneURL to at least depth commits, and checks out sha.
func (m *Manager) CloneAtCommit(cloneURL, sha string, depth int) (*Workspace, error) {
	if depth < 1 {
		depth = 1
	}
	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return nil, fmt.Errorf("workspace: create root %s: %w", m.root, err)
	}

	id := uuid.NewString()
	path := filepath.Join(m.root, id)

	if _, err := m.git.Run("", "clone", "--depth", fmt.Sprintf("%d", depth), cloneURL, path); err != nil {
		return nil, fmt.Errorf("workspace: clone %s: %w", cloneURL, err)
	}
	if _, err := m.git.Run(path, "fetch", "--depth", fmt.Sprintf("%d", depth), "origin", sha); err != nil {
		return nil, fmt.Errorf("workspace: fetch %s: %w", sha, err)
	}
	if _, err := m.git.Run(path, "checkout", sha); err != nil {
		return nil, fmt.Errorf("workspace: checkout %s: %w", sha, err)
	}

	return &Workspace{ID: id, Path: path, Sha: sha, created: time.Now()}, nil
}

// Release removes the workspace directory. Safe to call more than once.
func (m *Manager) Release(ws *Workspace) error {
	if ws == nil {
		return nil
	}
	if err := os.RemoveAll(ws.Path); err != nil {
		return fmt.Errorf("workspace: release %s: %w", ws.Path, err)
	}
	return nil
}

// Sweep removes every workspace directory under root whose modification
// time is older than maxAge. It logs nothing itself — callers (the
// janitor) decide how to surface per-entry failures — and returns the
// list of paths it successfully removed.
func (m *Manager) Sweep(maxAge time.Duration) ([]string, []error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, []error{fmt.Errorf("workspace: read root %s: %w", m.root, err)}
	}

	var removed []string
	var errs []error
	cutoff := time.Now().Add(-maxAge)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			errs = append(errs, fmt.Errorf("workspace: stat %s: %w", e.Name(), err))
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(m.root, e.Name())
		if err := os.RemoveAll(path); err != nil {
			errs = append(errs, fmt.Errorf("workspace: sweep %s: %w", path, err))
			continue
		}
		removed = append(removed, path)
	}
	return removed, errs
}
