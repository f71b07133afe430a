package dbstore

import (
	"context"
	"os"
	"testing"
)

func TestNullIfEmpty(t *testing.T) {
	if got := nullIfEmpty(""); got != nil {
		t.Errorf("nullIfEmpty(\"\") = %v, want nil", got)
	}
	if got := nullIfEmpty("x"); got != "x" {
		t.Errorf("nullIfEmpty(\"x\") = %v, want %q", got, "x")
	}
}

// testStore opens a connection against TEST_DATABASE_URL when set, and
// skips otherwise — there is no in-process substitute for a Postgres
// server, so the full read/write path is only exercised against a real
// instance.
func testStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping dbstore integration test")
	}
	s, err := Open(context.Background(), dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestUpsertFailure_IsIdempotentOnRunIDAndRepo(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id1, err := s.UpsertFailure(ctx, Failure{RunID: 1001, Repo: "acme/x", Sha: "a1", Branch: "main", WorkflowName: "ci"})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := s.RecordAnalysis(ctx, id1, "TypeError", "src/x.py", 42, "f", "boom", "", 0.9, "snippet"); err != nil {
		t.Fatalf("record analysis: %v", err)
	}
	if err := s.UpdateStatus(ctx, id1, "fixing"); err != nil {
		t.Fatalf("update status: %v", err)
	}

	id2, err := s.UpsertFailure(ctx, Failure{RunID: 1001, Repo: "acme/x", Sha: "b2", Branch: "main", WorkflowName: "ci"})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("expected same row id across re-ingestion, got %d and %d", id1, id2)
	}

	f, err := s.GetFailure(ctx, 1001, "acme/x")
	if err != nil {
		t.Fatalf("get failure: %v", err)
	}
	if f.Status != "pending" {
		t.Errorf("expected status reset to pending on re-ingestion, got %q", f.Status)
	}
	if f.Sha != "b2" {
		t.Errorf("expected sha updated to b2, got %q", f.Sha)
	}
}

func TestAppendAttempt_IsAppendOnly(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.UpsertFailure(ctx, Failure{RunID: 2002, Repo: "acme/y", Sha: "c3", Branch: "main", WorkflowName: "ci"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	countAttempts := func() int {
		t.Helper()
		var n int
		if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM fix_attempts WHERE failure_id = $1`, id).Scan(&n); err != nil {
			t.Fatalf("count attempts: %v", err)
		}
		return n
	}
	before := countAttempts()

	for n := 1; n <= 3; n++ {
		if err := s.AppendAttempt(ctx, id, n, "a.py", "x", "y", "fix", "fail", "still failing"); err != nil {
			t.Fatalf("append attempt %d: %v", n, err)
		}
	}
	if got := countAttempts() - before; got != 3 {
		t.Errorf("expected 3 new attempt rows, got %d", got)
	}
}

func TestLogEvent_AndGetPipelineHistory(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	id, err := s.UpsertFailure(ctx, Failure{RunID: 3003, Repo: "acme/z", Sha: "d4", Branch: "main", WorkflowName: "ci"})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	if err := s.LogEvent(ctx, id, "created", "pending", ""); err != nil {
		t.Fatalf("log event: %v", err)
	}
	if err := s.LogEvent(ctx, id, "stage_advanced", "analyzing", "from=fetching_logs"); err != nil {
		t.Fatalf("log event: %v", err)
	}

	history, err := s.GetPipelineHistory(ctx, id)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 events, got %d", len(history))
	}
	if history[0].Event != "created" || history[1].Event != "stage_advanced" {
		t.Errorf("expected events in insertion order, got %+v", history)
	}
}
