package fixloop

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ci-healer/agent/internal/analysis"
)

type scriptedLLM struct {
	responses []string
	call      int
}

func (s *scriptedLLM) Complete(ctx context.Context, promptText string) (string, error) {
	r := s.responses[s.call]
	if s.call < len(s.responses)-1 {
		s.call++
	}
	return r, nil
}

type scriptedRunner struct {
	exitCodes []int
	call      int
}

func (r *scriptedRunner) RunTests(ctx context.Context, workspaceDir string, timeout time.Duration) (int, string, string, error) {
	code := r.exitCodes[r.call]
	if r.call < len(r.exitCodes)-1 {
		r.call++
	}
	stderr := ""
	if code != 0 {
		stderr = "AssertionError: still failing"
	}
	return code, "", stderr, nil
}

func setupWorkspace(t *testing.T, filePath, content string) string {
	t.Helper()
	dir := t.TempDir()
	full := filepath.Join(dir, filePath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestRun_SucceedsOnFirstAttempt(t *testing.T) {
	ws := setupWorkspace(t, "src/processor.py", "def f(order):\n    return order.amount\n")

	llm := &scriptedLLM{responses: []string{
		`{"file_path": "src/processor.py", "original_code": "return order.amount", "fixed_code": "return order.amount if order else 0", "explanation": "guard"}`,
	}}
	runner := &scriptedRunner{exitCodes: []int{0}}

	result := Run(context.Background(), Options{
		Workspace: ws,
		LLM:       llm,
		Runner:    runner,
		Analysis:  &analysis.Artifact{FilePath: "src/processor.py"},
	})

	if !result.Succeeded {
		t.Fatal("expected loop to succeed")
	}
	if len(result.Attempts) != 1 {
		t.Fatalf("expected exactly 1 attempt row, got %d", len(result.Attempts))
	}
	if result.Attempts[0].Verdict != verdictPass {
		t.Errorf("Verdict = %q, want pass", result.Attempts[0].Verdict)
	}
}

func TestRun_SucceedsOnSecondAttempt(t *testing.T) {
	ws := setupWorkspace(t, "src/processor.py", "def f(order):\n    return order.amount\n")

	llm := &scriptedLLM{responses: []string{
		`{"file_path": "src/processor.py", "original_code": "return order.amount", "fixed_code": "return 0", "explanation": "wrong guess"}`,
		`{"file_path": "src/processor.py", "original_code": "return order.amount", "fixed_code": "return order.amount if order else 0", "explanation": "correct guard"}`,
	}}
	runner := &scriptedRunner{exitCodes: []int{1, 0}}

	result := Run(context.Background(), Options{
		Workspace: ws,
		LLM:       llm,
		Runner:    runner,
		Analysis:  &analysis.Artifact{FilePath: "src/processor.py"},
	})

	if !result.Succeeded {
		t.Fatal("expected loop to eventually succeed")
	}
	if len(result.Attempts) != 2 {
		t.Fatalf("expected exactly 2 attempt rows, got %d", len(result.Attempts))
	}
	if result.Attempts[0].Verdict != verdictFail || result.Attempts[1].Verdict != verdictPass {
		t.Errorf("verdicts = %v, %v", result.Attempts[0].Verdict, result.Attempts[1].Verdict)
	}

	got, err := os.ReadFile(filepath.Join(ws, "src/processor.py"))
	if err != nil {
		t.Fatal(err)
	}
	want := "def f(order):\n    return order.amount if order else 0\n"
	if string(got) != want {
		t.Errorf("expected the final applied patch to remain on disk, got %q", string(got))
	}
}

func TestRun_EscalatesAfterMaxAttempts(t *testing.T) {
	ws := setupWorkspace(t, "src/processor.py", "def f(order):\n    return order.amount\n")

	llm := &scriptedLLM{responses: []string{
		`{"file_path": "src/processor.py", "original_code": "return order.amount", "fixed_code": "return 0", "explanation": "guess"}`,
	}}
	runner := &scriptedRunner{exitCodes: []int{1}}

	result := Run(context.Background(), Options{
		Workspace: ws,
		LLM:       llm,
		Runner:    runner,
		Analysis:  &analysis.Artifact{FilePath: "src/processor.py"},
	})

	if result.Succeeded {
		t.Fatal("expected loop to fail after exhausting attempts")
	}
	if len(result.Attempts) != MaxAttempts {
		t.Fatalf("expected %d attempt rows, got %d", MaxAttempts, len(result.Attempts))
	}
	for _, a := range result.Attempts {
		if a.Verdict != verdictFail {
			t.Errorf("expected all verdicts fail, got %q", a.Verdict)
		}
	}

	got, err := os.ReadFile(filepath.Join(ws, "src/processor.py"))
	if err != nil {
		t.Fatal(err)
	}
	want := "def f(order):\n    return order.amount\n"
	if string(got) != want {
		t.Errorf("expected file reverted to original after failed attempts, got %q", string(got))
	}
}

func TestRun_ApplyFailureRecordsFailAttemptAndContinues(t *testing.T) {
	ws := setupWorkspace(t, "src/processor.py", "def f(order):\n    return order.amount\n")

	llm := &scriptedLLM{responses: []string{
		`{"file_path": "src/processor.py", "original_code": "this span does not exist", "fixed_code": "y", "explanation": "bad guess"}`,
		`{"file_path": "src/processor.py", "original_code": "return order.amount", "fixed_code": "return order.amount if order else 0", "explanation": "correct"}`,
	}}
	runner := &scriptedRunner{exitCodes: []int{0}}

	result := Run(context.Background(), Options{
		Workspace: ws,
		LLM:       llm,
		Runner:    runner,
		Analysis:  &analysis.Artifact{FilePath: "src/processor.py"},
	})

	if !result.Succeeded {
		t.Fatal("expected loop to succeed once the apply succeeds")
	}
	if result.Attempts[0].Verdict != verdictFail || result.Attempts[0].Explanation != "Failed to apply fix — original code not found" {
		t.Errorf("expected first attempt to record the apply-failure reason, got %+v", result.Attempts[0])
	}
}
