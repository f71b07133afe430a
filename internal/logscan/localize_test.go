package logscan

import (
	"strings"
	"testing"
)

func TestLocalize_Empty(t *testing.T) {
	_, ok := Localize(nil)
	if ok {
		t.Fatal("expected ok=false for empty input")
	}
}

func TestLocalize_PicksHighestScore(t *testing.T) {
	logs := []JobLog{
		{Job: "lint", Text: "all good, nothing to see here"},
		{Job: "test", Text: "TypeError: 'NoneType' object has no attribute 'amount'\nTraceback (most recent call last):\nFAILED tests/test_payment.py"},
	}

	got, ok := Localize(logs)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != logs[1].Text {
		t.Errorf("expected the test job log to win, got %q", got)
	}
}

func TestLocalize_TieBrokenByOrder(t *testing.T) {
	logs := []JobLog{
		{Job: "a", Text: "error error"},
		{Job: "b", Text: "error error"},
	}

	got, ok := Localize(logs)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != logs[0].Text {
		t.Errorf("expected the first log to win a tie, got %q", got)
	}
}

func TestLocalize_AllZeroConcatenates(t *testing.T) {
	logs := []JobLog{
		{Job: "build", Text: "compiling..."},
		{Job: "deploy", Text: "shipping..."},
	}

	got, ok := Localize(logs)
	if !ok {
		t.Fatal("expected ok=true")
	}
	for _, l := range logs {
		if !strings.Contains(got, l.Job) || !strings.Contains(got, l.Text) {
			t.Errorf("expected concatenation to include job %q and its text, got %q", l.Job, got)
		}
	}
}

func TestLocalize_CountsCaseInsensitiveAndLiteralTokens(t *testing.T) {
	logs := []JobLog{
		{Job: "quiet", Text: "nothing happened"},
		{Job: "loud", Text: "ERROR: something broke\nAssertionError: expected 1, got 2"},
	}

	got, ok := Localize(logs)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if got != logs[1].Text {
		t.Errorf("expected the loud log to win, got %q", got)
	}
}
