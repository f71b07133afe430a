// Package codehost implements the code-host client contract of spec.md
// §6: download workflow-run logs and open a review request or an
// escalation issue. Grounded on the teacher's internal/github.Client
// (gh-CLI issue/PR shape, generalized here to the go-github API
// surface). Repository cloning lives in internal/workspace, which owns
// the directory allocation the clone needs; ExecGit here backs that
// package's GitRunner instead of a second clone path.
package codehost

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/go-github/v55/github"
)

// ExecGit implements workspace.GitRunner using os/exec.
type ExecGit struct{}

func (g *ExecGit) Run(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return strings.TrimSpace(string(out)), fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// JobLog is one (job name, log text) pair extracted from a workflow
// run's log archive.
type JobLog struct {
	Job  string
	Text string
}

// Client wraps the go-github REST client for the log-download and
// review/escalation operations spec.md §6 names.
type Client struct {
	gh *github.Client
}

// NewClient builds a Client against api.github.com (or an enterprise
// base URL configured on gh's transport).
func NewClient(gh *github.Client) *Client {
	return &Client{gh: gh}
}

// DownloadRunLogs fetches the zip archive of a completed workflow run's
// logs and groups every entry by its top-level directory (the job name
// GitHub Actions assigns each log folder), mirroring the per-job log-row
// shape used elsewhere in the pack for cached job logs.
func (c *Client) DownloadRunLogs(ctx context.Context, owner, repo string, runID int64) ([]JobLog, error) {
	url, _, err := c.gh.Actions.GetWorkflowRunLogs(ctx, owner, repo, runID, true)
	if err != nil {
		return nil, fmt.Errorf("codehost: get workflow run logs url: %w", err)
	}

	resp, err := c.gh.Client().Get(url.String())
	if err != nil {
		return nil, fmt.Errorf("codehost: download run logs: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("codehost: read run logs body: %w", err)
	}

	return groupByJob(data)
}

func groupByJob(zipData []byte) ([]JobLog, error) {
	zr, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("codehost: open logs zip: %w", err)
	}

	grouped := map[string]*strings.Builder{}
	var order []string
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		job := topLevelDir(f.Name)
		if _, ok := grouped[job]; !ok {
			grouped[job] = &strings.Builder{}
			order = append(order, job)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("codehost: open log entry %s: %w", f.Name, err)
		}
		text, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("codehost: read log entry %s: %w", f.Name, err)
		}
		grouped[job].Write(text)
	}

	logs := make([]JobLog, 0, len(order))
	for _, job := range order {
		logs = append(logs, JobLog{Job: job, Text: grouped[job].String()})
	}
	return logs, nil
}

func topLevelDir(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[:idx]
	}
	return name
}

// CreateReviewRequest opens a pull request proposing the verified patch.
func (c *Client) CreateReviewRequest(ctx context.Context, owner, repo, branch, base, title, body string) (string, error) {
	pr, _, err := c.gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.String(title),
		Head:  github.String(branch),
		Base:  github.String(base),
		Body:  github.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("codehost: create pull request: %w", err)
	}
	return pr.GetHTMLURL(), nil
}

// CreateEscalation opens a human-review issue carrying the best available
// diagnostic context when automated repair fails or is skipped.
func (c *Client) CreateEscalation(ctx context.Context, owner, repo, title, body string) (string, error) {
	issue, _, err := c.gh.Issues.Create(ctx, owner, repo, &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("codehost: create escalation issue: %w", err)
	}
	return issue.GetHTMLURL(), nil
}
