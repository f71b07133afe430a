package fixsynth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ci-healer/agent/internal/analysis"
)

type fakeLLM struct {
	response string
	prompt   string
}

func (f *fakeLLM) Complete(ctx context.Context, promptText string) (string, error) {
	f.prompt = promptText
	return f.response, nil
}

func TestSynthesize_WellFormedResponse(t *testing.T) {
	llm := &fakeLLM{response: `{
		"file_path": "src/payment/processor.py",
		"original_code": "return order.amount",
		"fixed_code": "return order.amount if order else 0",
		"explanation": "guard against None order"
	}`}

	art := &analysis.Artifact{ErrorKind: analysis.TypeError, FunctionName: "process_payment"}
	p, err := Synthesize(context.Background(), llm, "src/payment/processor.py", "def process_payment(order):\n    return order.amount\n", art, nil, "AssertionError: expected 10, got None")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if p.FilePath != "src/payment/processor.py" {
		t.Errorf("FilePath = %q", p.FilePath)
	}
	if p.OriginalSpan != "return order.amount" {
		t.Errorf("OriginalSpan = %q", p.OriginalSpan)
	}
}

func TestSynthesize_UnparseableResponse(t *testing.T) {
	llm := &fakeLLM{response: "I think the fix is to check for None."}

	art := &analysis.Artifact{}
	_, err := Synthesize(context.Background(), llm, "a.py", "source", art, nil, "")
	if !errors.Is(err, ErrUnparseable) {
		t.Errorf("got %v, want ErrUnparseable", err)
	}
}

func TestSynthesize_MissingRequiredFields(t *testing.T) {
	llm := &fakeLLM{response: `{"explanation": "no file path or original code given"}`}

	art := &analysis.Artifact{}
	_, err := Synthesize(context.Background(), llm, "a.py", "source", art, nil, "")
	if !errors.Is(err, ErrUnparseable) {
		t.Errorf("got %v, want ErrUnparseable", err)
	}
}

func TestSynthesize_StripsFencedBlock(t *testing.T) {
	llm := &fakeLLM{response: "```json\n{\"file_path\": \"a.py\", \"original_code\": \"x\", \"fixed_code\": \"y\", \"explanation\": \"z\"}\n```"}

	art := &analysis.Artifact{}
	p, err := Synthesize(context.Background(), llm, "a.py", "source", art, nil, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if p.OriginalSpan != "x" || p.ReplacementSpan != "y" {
		t.Errorf("got original=%q fixed=%q", p.OriginalSpan, p.ReplacementSpan)
	}
}

func TestSynthesize_IncludesPriorAttemptsInPrompt(t *testing.T) {
	llm := &fakeLLM{response: `{"file_path": "a.py", "original_code": "x", "fixed_code": "y", "explanation": "z"}`}

	prior := []PriorAttempt{
		{AttemptNumber: 1, Explanation: "tried guard clause", Verdict: "fail", ErrorOutput: "still failing"},
	}
	art := &analysis.Artifact{}
	_, err := Synthesize(context.Background(), llm, "a.py", "source", art, prior, "")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if !strings.Contains(llm.prompt, "tried guard clause") {
		t.Errorf("expected the prior attempt in the prompt, got %q", llm.prompt)
	}
}
