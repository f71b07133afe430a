// Package dbstore implements the Durable Store (C11): the relational
// schema of spec.md §6 backed by pgxpool, with idempotent failure-row
// upserts and an append-only attempt/test/event log. Grounded on the
// teacher's internal/db transactional style (tx.Begin / defer
// tx.Rollback() / tx.Commit()), generalized from SQLite to Postgres.
package dbstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a pgxpool connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to Postgres using dsn and returns a ready Store. Callers
// must call Migrate before first use.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbstore: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("dbstore: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() { s.pool.Close() }

const schema = `
CREATE TABLE IF NOT EXISTS failures (
    id               BIGSERIAL PRIMARY KEY,
    run_id           BIGINT NOT NULL,
    repo             TEXT NOT NULL,
    sha              TEXT NOT NULL,
    branch           TEXT NOT NULL,
    workflow_name    TEXT NOT NULL,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    error_type       TEXT,
    file_path        TEXT,
    line_number      INTEGER,
    function_name    TEXT,
    error_message    TEXT,
    failing_test     TEXT,
    confidence       DOUBLE PRECISION,
    raw_log_snippet  TEXT,
    status           TEXT NOT NULL DEFAULT 'pending',
    pr_url           TEXT,
    issue_url        TEXT,
    error            TEXT,
    completed_at     TIMESTAMPTZ,
    UNIQUE(run_id, repo)
);
CREATE INDEX IF NOT EXISTS idx_failures_repo ON failures(repo);
CREATE INDEX IF NOT EXISTS idx_failures_status ON failures(status);
CREATE INDEX IF NOT EXISTS idx_failures_run_id ON failures(run_id);

CREATE TABLE IF NOT EXISTS fix_attempts (
    id             BIGSERIAL PRIMARY KEY,
    failure_id     BIGINT NOT NULL REFERENCES failures(id),
    attempt_number INTEGER NOT NULL,
    file_path      TEXT,
    original_code  TEXT,
    fixed_code     TEXT,
    explanation    TEXT,
    test_result    TEXT,
    error_output   TEXT,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_fix_attempts_failure_id ON fix_attempts(failure_id);

CREATE TABLE IF NOT EXISTS generated_tests (
    id             BIGSERIAL PRIMARY KEY,
    failure_id     BIGINT NOT NULL REFERENCES failures(id),
    test_name      TEXT,
    test_code      TEXT,
    target_file    TEXT,
    imports_needed JSONB,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pipeline_events (
    id          BIGSERIAL PRIMARY KEY,
    failure_id  BIGINT NOT NULL REFERENCES failures(id),
    event       TEXT NOT NULL,
    status      TEXT,
    detail      TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_pipeline_events_failure_id ON pipeline_events(failure_id, created_at DESC);
`

// Migrate applies the schema, safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("dbstore: begin migrate: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, schema); err != nil {
		return fmt.Errorf("dbstore: apply schema: %w", err)
	}
	return tx.Commit(ctx)
}

// Failure mirrors one row of the failures table.
type Failure struct {
	ID             int64
	RunID          int64
	Repo           string
	Sha            string
	Branch         string
	WorkflowName   string
	ErrorType      string
	FilePath       string
	LineNumber     int
	FunctionName   string
	ErrorMessage   string
	FailingTest    string
	Confidence     float64
	RawLogSnippet  string
	Status         string
	PRURL          string
	IssueURL       string
	Error          string
	CreatedAt      time.Time
	CompletedAt    *time.Time
}

// UpsertFailure implements the idempotent (run_id, repo) keyed write
// spec.md §4.11 describes: a re-ingestion of the same pair updates the
// existing row and resets status to pending, rather than creating a
// duplicate.
func (s *Store) UpsertFailure(ctx context.Context, f Failure) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("dbstore: begin upsert: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO failures (run_id, repo, sha, branch, workflow_name, status)
		VALUES ($1, $2, $3, $4, $5, 'pending')
		ON CONFLICT (run_id, repo) DO UPDATE SET
			sha = EXCLUDED.sha,
			branch = EXCLUDED.branch,
			workflow_name = EXCLUDED.workflow_name,
			status = 'pending',
			error_type = NULL, file_path = NULL, line_number = NULL,
			function_name = NULL, error_message = NULL, failing_test = NULL,
			confidence = NULL, raw_log_snippet = NULL,
			pr_url = NULL, issue_url = NULL, error = NULL, completed_at = NULL
		RETURNING id
	`, f.RunID, f.Repo, f.Sha, f.Branch, f.WorkflowName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("dbstore: upsert failure: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("dbstore: commit upsert: %w", err)
	}
	return id, nil
}

// UpdateStatus transitions a failure row's status, per spec.md §4.10's
// requirement that transitions persist before the next stage begins.
func (s *Store) UpdateStatus(ctx context.Context, failureID int64, status string) error {
	_, err := s.pool.Exec(ctx, `UPDATE failures SET status = $1 WHERE id = $2`, status, failureID)
	if err != nil {
		return fmt.Errorf("dbstore: update status: %w", err)
	}
	return nil
}

// RecordAnalysis persists the analysis artifact's fields onto the
// failure row.
func (s *Store) RecordAnalysis(ctx context.Context, failureID int64, errorType, filePath string, lineNumber int, functionName, errorMessage, failingTest string, confidence float64, rawSnippet string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE failures SET
			error_type = $1, file_path = $2, line_number = $3, function_name = $4,
			error_message = $5, failing_test = $6, confidence = $7, raw_log_snippet = $8
		WHERE id = $9
	`, errorType, filePath, lineNumber, functionName, errorMessage, failingTest, confidence, rawSnippet, failureID)
	if err != nil {
		return fmt.Errorf("dbstore: record analysis: %w", err)
	}
	return nil
}

// Complete marks a failure row as terminal, optionally with a PR/issue
// URL and/or an error message, and stamps completed_at.
func (s *Store) Complete(ctx context.Context, failureID int64, status, prURL, issueURL, errMsg string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE failures SET status = $1, pr_url = $2, issue_url = $3, error = $4, completed_at = now()
		WHERE id = $5
	`, status, nullIfEmpty(prURL), nullIfEmpty(issueURL), nullIfEmpty(errMsg), failureID)
	if err != nil {
		return fmt.Errorf("dbstore: complete failure: %w", err)
	}
	return nil
}

// AppendAttempt writes one append-only fix_attempts row, in attempt-number
// order per spec.md §5's ordering guarantee.
func (s *Store) AppendAttempt(ctx context.Context, failureID int64, attemptNumber int, filePath, originalCode, fixedCode, explanation, testResult, errorOutput string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fix_attempts (failure_id, attempt_number, file_path, original_code, fixed_code, explanation, test_result, error_output)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, failureID, attemptNumber, filePath, originalCode, fixedCode, explanation, testResult, errorOutput)
	if err != nil {
		return fmt.Errorf("dbstore: append attempt: %w", err)
	}
	return nil
}

// AppendGeneratedTest writes one generated_tests row.
func (s *Store) AppendGeneratedTest(ctx context.Context, failureID int64, testName, testCode, targetFile string, importsNeeded []string) error {
	imports, err := json.Marshal(importsNeeded)
	if err != nil {
		return fmt.Errorf("dbstore: marshal imports: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO generated_tests (failure_id, test_name, test_code, target_file, imports_needed)
		VALUES ($1, $2, $3, $4, $5)
	`, failureID, testName, testCode, targetFile, imports)
	if err != nil {
		return fmt.Errorf("dbstore: append generated test: %w", err)
	}
	return nil
}

// LogEvent appends one row to the pipeline event log — an append-only
// audit trail of state transitions, separate from the failure row's
// current status, grounded on the teacher's pipeline_events table.
func (s *Store) LogEvent(ctx context.Context, failureID int64, event, status, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pipeline_events (failure_id, event, status, detail)
		VALUES ($1, $2, $3, $4)
	`, failureID, event, status, detail)
	if err != nil {
		return fmt.Errorf("dbstore: log event: %w", err)
	}
	return nil
}

// Event is one row of the pipeline event log, returned by GetPipelineHistory.
type Event struct {
	Event     string
	Status    string
	Detail    string
	CreatedAt time.Time
}

// GetPipelineHistory returns every logged event for failureID, oldest first.
func (s *Store) GetPipelineHistory(ctx context.Context, failureID int64) ([]Event, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT event, status, detail, created_at FROM pipeline_events
		WHERE failure_id = $1 ORDER BY created_at ASC
	`, failureID)
	if err != nil {
		return nil, fmt.Errorf("dbstore: query history: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var status, detail *string
		if err := rows.Scan(&e.Event, &status, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("dbstore: scan history row: %w", err)
		}
		if status != nil {
			e.Status = *status
		}
		if detail != nil {
			e.Detail = *detail
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ListActive returns every failure row whose status has not reached a
// terminal state, for the CLI status command.
func (s *Store) ListActive(ctx context.Context) ([]Failure, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, repo, sha, branch, workflow_name, status, created_at
		FROM failures
		WHERE status NOT IN ('fixed', 'escalated', 'failed', 'not_reproduced')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("dbstore: list active: %w", err)
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		if err := rows.Scan(&f.ID, &f.RunID, &f.Repo, &f.Sha, &f.Branch, &f.WorkflowName, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("dbstore: scan active row: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetFailure fetches a failure row by (run_id, repo).
func (s *Store) GetFailure(ctx context.Context, runID int64, repo string) (*Failure, error) {
	var f Failure
	err := s.pool.QueryRow(ctx, `
		SELECT id, run_id, repo, sha, branch, workflow_name, status, created_at
		FROM failures WHERE run_id = $1 AND repo = $2
	`, runID, repo).Scan(&f.ID, &f.RunID, &f.Repo, &f.Sha, &f.Branch, &f.WorkflowName, &f.Status, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("dbstore: get failure: %w", err)
	}
	return &f, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
