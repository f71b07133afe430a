// Package janitor implements the Janitor (C12): a scheduled sweep that
// evicts sandbox containers and workspace directories older than the
// retention window. Grounded on the teacher's check-runner exec/timeout
// pattern and web server cache-invalidation sweep shape — nothing in the
// teacher sweeps containers directly, but the "enumerate, check age,
// evict, swallow per-entry failures" skeleton generalizes directly.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ci-healer/agent/internal/sandbox"
	"github.com/ci-healer/agent/internal/workspace"
)

// MaxAge is the 24h retention window spec.md §4.12 mandates.
const MaxAge = 24 * time.Hour

// ContainerEnumerator lists sandbox sessions. Only the
// methods the janitor needs from sandbox.Driver, narrowed for testing.
type ContainerEnumerator interface {
	ListSessions(ctx context.Context) ([]*sandbox.Session, error)
}

// Janitor runs the periodic sweep of sandbox.Driver sessions and
// workspace.Manager directories.
type Janitor struct {
	containers ContainerEnumerator
	workspaces *workspace.Manager
	log        zerolog.Logger
	cron       *cron.Cron
}

// New builds a Janitor over the given container enumerator and
// workspace manager.
func New(containers ContainerEnumerator, workspaces *workspace.Manager, log zerolog.Logger) *Janitor {
	return &Janitor{containers: containers, workspaces: workspaces, log: log, cron: cron.New()}
}

// Start schedules Sweep on the given cron expression (e.g. "0 * * * *"
// for hourly) and begins running it in the background.
func (j *Janitor) Start(ctx context.Context, schedule string) error {
	_, err := j.cron.AddFunc(schedule, func() {
		j.Sweep(ctx)
	})
	if err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

// Stop halts the cron scheduler, waiting for any running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

// Sweep enumerates containers and workspace directories older than
// MaxAge and evicts them in parallel, logging and swallowing per-entry
// failures per spec.md §4.12 so one bad entry never blocks the rest.
func (j *Janitor) Sweep(ctx context.Context) {
	g, gctx := errgroup.WithContext(context.Background())
	g.SetLimit(8)

	g.Go(func() error {
		j.sweepContainers(gctx)
		return nil
	})
	g.Go(func() error {
		j.sweepWorkspaces()
		return nil
	})
	_ = g.Wait()
}

func (j *Janitor) sweepContainers(ctx context.Context) {
	sessions, err := j.containers.ListSessions(ctx)
	if err != nil {
		j.log.Error().Err(err).Msg("janitor: failed to enumerate sandbox sessions")
		return
	}

	cutoff := time.Now().Add(-MaxAge)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, sess := range sessions {
		sess := sess
		if sess.CreatedAt().After(cutoff) {
			continue
		}
		g.Go(func() error {
			if err := sess.Close(gctx); err != nil {
				j.log.Error().Err(err).Str("container_id", sess.ContainerID()).Msg("janitor: failed to evict container")
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (j *Janitor) sweepWorkspaces() {
	removed, errs := j.workspaces.Sweep(MaxAge)
	for _, err := range errs {
		j.log.Error().Err(err).Msg("janitor: failed to sweep workspace directory")
	}
	for _, path := range removed {
		j.log.Info().Str("path", path).Msg("janitor: removed stale workspace directory")
	}
}
