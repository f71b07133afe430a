// Package sandbox provides the scoped lifecycle of one container session:
// acquire an image, bind a workspace directory, exec commands with a
// timeout, and guarantee teardown on every exit path (spec.md §4.4).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

// sessionNamePrefix identifies containers this driver created, so the
// janitor's sweep never touches unrelated containers on the host.
const sessionNamePrefix = "repairagent-"

const (
	// MemoryCapBytes is the 512 MiB memory cap spec.md §4.4 mandates.
	MemoryCapBytes = 512 * 1024 * 1024
	// InContainerWorkdir is the fixed in-container bind-mount path.
	InContainerWorkdir = "/app"
	// TimedOutExitCode is synthesized when an exec is killed on timeout.
	TimedOutExitCode = 124
)

// Driver opens sandbox sessions against a container runtime daemon. It is
// the single process-wide handle described in spec.md §9 ("global state");
// callers share one Driver across pipelines.
type Driver struct {
	cli        *client.Client
	cpuPercent int
}

// NewDriver connects to the local container runtime using the standard
// environment-derived configuration (DOCKER_HOST, etc).
func NewDriver(cpuPercent int) (*Driver, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: connect to container runtime: %w", err)
	}
	return &Driver{cli: cli, cpuPercent: normalizeCPUPercent(cpuPercent)}, nil
}

// normalizeCPUPercent clamps an out-of-range CPU quota to the spec.md
// §4.4 default of ~50% of one core.
func normalizeCPUPercent(cpuPercent int) int {
	if cpuPercent <= 0 || cpuPercent > 100 {
		return 50
	}
	return cpuPercent
}

// nanoCPUs converts a CPU percentage to the docker NanoCPUs unit (1e9
// nanoCPUs = 1 full core).
func nanoCPUs(cpuPercent int) int64 {
	return int64(normalizeCPUPercent(cpuPercent)) * 10_000_000
}

// Session is a live container bound to one workspace directory.
type Session struct {
	driver      *Driver
	containerID string
	createdAt   time.Time
}

// CreatedAt reports when the container was created, for the janitor's
// age-based sweep.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// ContainerID identifies the bound container, for the janitor's enumeration.
func (s *Session) ContainerID() string { return s.containerID }

// Open creates a container from image, bind-mounting workspaceDir at
// InContainerWorkdir, with the resource caps spec.md §4.4 mandates:
// memory capped at 512 MiB with no swap beyond that cap, CPU quota at
// approximately cpuPercent of one core via NanoCPUs, and bridge
// networking permitted (dependency installation needs network access).
func (d *Driver) Open(ctx context.Context, image, workspaceDir string) (*Session, error) {
	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:      image,
		WorkingDir: InContainerWorkdir,
		Tty:        false,
		Cmd:        []string{"sleep", "infinity"},
	}, &container.HostConfig{
		NetworkMode: "bridge",
		Resources: container.Resources{
			Memory:     MemoryCapBytes,
			MemorySwap: MemoryCapBytes, // no swap beyond the memory cap
			NanoCPUs:   nanoCPUs(d.cpuPercent),
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: workspaceDir,
				Target: InContainerWorkdir,
			},
		},
	}, nil, nil, sessionNamePrefix+uuid.NewString())
	if err != nil {
		return nil, fmt.Errorf("sandbox: create container: %w", err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = d.cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	return &Session{driver: d, containerID: resp.ID, createdAt: time.Now()}, nil
}

// ListSessions enumerates every container this driver created (matched
// by its name prefix), for the janitor's age-based sweep.
func (d *Driver) ListSessions(ctx context.Context) ([]*Session, error) {
	containers, err := d.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("name", sessionNamePrefix)),
	})
	if err != nil {
		return nil, fmt.Errorf("sandbox: list containers: %w", err)
	}

	sessions := make([]*Session, 0, len(containers))
	for _, c := range containers {
		if !hasSessionPrefix(c.Names) {
			continue
		}
		sessions = append(sessions, &Session{
			driver:      d,
			containerID: c.ID,
			createdAt:   time.Unix(c.Created, 0),
		})
	}
	return sessions, nil
}

func hasSessionPrefix(names []string) bool {
	for _, n := range names {
		if strings.Contains(n, sessionNamePrefix) {
			return true
		}
	}
	return false
}

// ExecResult is the outcome of one command execution inside a session.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
}

// Exec runs argv inside the session's container, enforcing timeout. On
// timeout the container is killed and the result carries ExitCode=124,
// TimedOut=true, per spec.md §4.4. Multiplexed stdout/stderr framing is
// demultiplexed via stdcopy.StdCopy.
func (s *Session) Exec(ctx context.Context, argv []string, timeout time.Duration) (ExecResult, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	created, err := s.driver.cli.ContainerExecCreate(execCtx, s.containerID, container.ExecOptions{
		Cmd:          argv,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec create: %w", err)
	}

	attach, err := s.driver.cli.ContainerExecAttach(execCtx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec attach: %w", err)
	}
	defer attach.Close()

	var stdout, stderr bytes.Buffer
	copyDone := make(chan error, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		copyDone <- copyErr
	}()

	select {
	case <-copyDone:
	case <-execCtx.Done():
		_ = s.driver.cli.ContainerKill(ctx, s.containerID, "KILL")
		return ExecResult{ExitCode: TimedOutExitCode, Stdout: stdout.String(), Stderr: stderr.String(), TimedOut: true}, nil
	}

	inspect, err := s.driver.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("sandbox: exec inspect: %w", err)
	}

	return ExecResult{
		ExitCode: inspect.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}, nil
}

// Close removes the container, releasing all resources. Safe to call from
// a deferred recovery path.
func (s *Session) Close(ctx context.Context) error {
	if err := s.driver.cli.ContainerRemove(ctx, s.containerID, container.RemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("sandbox: remove container %s: %w", s.containerID, err)
	}
	return nil
}

// WithSandbox opens a session, runs body, and guarantees Close on every
// exit path including a panic in body.
func WithSandbox(ctx context.Context, d *Driver, image, workspaceDir string, body func(*Session) error) error {
	sess, err := d.Open(ctx, image, workspaceDir)
	if err != nil {
		return err
	}
	defer func() {
		_ = sess.Close(context.Background())
	}()
	return body(sess)
}

// WithSandboxResult is WithSandbox's value-returning counterpart, for
// callers (like the reproduction runner) whose body produces a result
// alongside its error.
func WithSandboxResult[T any](ctx context.Context, d *Driver, image, workspaceDir string, body func(*Session) (T, error)) (T, error) {
	var zero T
	sess, err := d.Open(ctx, image, workspaceDir)
	if err != nil {
		return zero, err
	}
	defer func() {
		_ = sess.Close(context.Background())
	}()
	return body(sess)
}
