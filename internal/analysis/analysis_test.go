package analysis

import (
	"context"
	"errors"
	"testing"
)

type fakeLLM struct {
	response string
	err      error
}

func (f *fakeLLM) Complete(ctx context.Context, promptText string) (string, error) {
	return f.response, f.err
}

func TestAnalyze_WellFormedResponse(t *testing.T) {
	llm := &fakeLLM{response: `{
		"error_kind": "TypeError",
		"file_path": "src/payment/processor.py",
		"line": 42,
		"function_name": "process_payment",
		"error_message": "'NoneType' object has no attribute 'amount'",
		"frames": ["process_payment", "main"],
		"failing_test": "",
		"confidence": 0.92
	}`}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "a1b2", "log excerpt")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.ErrorKind != TypeError {
		t.Errorf("ErrorKind = %v, want TypeError", art.ErrorKind)
	}
	if art.Line != 42 {
		t.Errorf("Line = %d, want 42", art.Line)
	}
	if art.Confidence != 0.92 {
		t.Errorf("Confidence = %v, want 0.92", art.Confidence)
	}
	if art.BelowGate() {
		t.Error("expected confidence 0.92 to clear the gate")
	}
}

func TestAnalyze_UnknownKindCoercesToOther(t *testing.T) {
	llm := &fakeLLM{response: `{"error_kind": "StackOverflow", "confidence": 0.8}`}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.ErrorKind != Other {
		t.Errorf("ErrorKind = %v, want Other", art.ErrorKind)
	}
}

func TestAnalyze_MissingConfidenceDefaults(t *testing.T) {
	llm := &fakeLLM{response: `{"error_kind": "ValueError"}`}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want default 0.5", art.Confidence)
	}
}

func TestAnalyze_ConfidenceClamped(t *testing.T) {
	llm := &fakeLLM{response: `{"error_kind": "ValueError", "confidence": 1.5}`}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.Confidence != 1 {
		t.Errorf("Confidence = %v, want clamped to 1", art.Confidence)
	}
}

func TestAnalyze_MissingFilePathDefaultsUnknown(t *testing.T) {
	llm := &fakeLLM{response: `{"error_kind": "ValueError", "confidence": 0.7}`}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.FilePath != "unknown" {
		t.Errorf("FilePath = %q, want unknown", art.FilePath)
	}
}

func TestAnalyze_StripsFencedCodeBlock(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"error_kind\": \"KeyError\", \"confidence\": 0.6}\n```"}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if art.ErrorKind != KeyError {
		t.Errorf("ErrorKind = %v, want KeyError", art.ErrorKind)
	}
}

func TestAnalyze_UnparseableResponseFallsBackGracefully(t *testing.T) {
	llm := &fakeLLM{response: "the model rambled instead of returning JSON"}

	art, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err != nil {
		t.Fatalf("Analyze should not error on unparseable response: %v", err)
	}
	if art.ErrorKind != Other {
		t.Errorf("ErrorKind = %v, want Other", art.ErrorKind)
	}
	if art.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", art.Confidence)
	}
	if art.RawExcerpt != llm.response {
		t.Errorf("RawExcerpt = %q, want the raw response", art.RawExcerpt)
	}
}

func TestAnalyze_BelowGate(t *testing.T) {
	art := &Artifact{Confidence: 0.1}
	if !art.BelowGate() {
		t.Error("expected confidence 0.1 to be below the gate")
	}
}

func TestAnalyze_LLMError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection reset")}

	_, err := Analyze(context.Background(), llm, "acme/x", "CI", "sha", "log")
	if err == nil {
		t.Fatal("expected error to propagate from the LLM call")
	}
}
