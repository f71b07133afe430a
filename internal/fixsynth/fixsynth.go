// Package fixsynth implements the Fix Synthesis Stage (C8): ask the LLM
// for a minimal source patch given the analysis, the current source, and
// the history of previously rejected attempts.
package fixsynth

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ci-healer/agent/internal/analysis"
	"github.com/ci-healer/agent/internal/patch"
	"github.com/ci-healer/agent/internal/prompt"
)

// ErrUnparseable is bubbled to the Fix Loop when the LLM's response is
// not the required JSON object; per spec.md §4.8 this is a fix-loop-local
// error, not a pipeline-level one.
var ErrUnparseable = fmt.Errorf("fixsynth: response is not a valid patch object")

// PriorAttempt summarizes one previously rejected attempt for the prompt,
// truncated per spec.md §4.8 (error output ≤ 500 bytes).
type PriorAttempt struct {
	AttemptNumber int
	Explanation   string
	Verdict       string
	ErrorOutput   string
}

// LLM is the narrow capability fix synthesis needs from the LLM client.
type LLM interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

var fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n(.*?)\\n```")

type wirePatch struct {
	FilePath     string `json:"file_path"`
	OriginalCode string `json:"original_code"`
	FixedCode    string `json:"fixed_code"`
	Explanation  string `json:"explanation"`
}

// Synthesize submits the current source, the analysis artifact, the prior
// attempt history, and the latest test output (truncated to 2,000 bytes
// per spec.md §4.8), and parses the response into a patch.Patch. A
// response that fails to parse as the required JSON object returns
// ErrUnparseable, which the Fix Loop records as a synthetic fail attempt.
func Synthesize(ctx context.Context, llm LLM, filePath, source string, art *analysis.Artifact, prior []PriorAttempt, testOutput string) (*patch.Patch, error) {
	tmpl, ok := prompt.Builtin("synthesize-fix.md")
	if !ok {
		return nil, fmt.Errorf("fixsynth: missing builtin template synthesize-fix.md")
	}

	if len(testOutput) > 2000 {
		testOutput = testOutput[:2000]
	}

	vars := prompt.Vars{
		"repo":           "",
		"file_path":      filePath,
		"error_kind":     string(art.ErrorKind),
		"error_message":  art.ErrorMessage,
		"function_name":  art.FunctionName,
		"source":         source,
		"test_output":    testOutput,
		"prior_attempts": renderPriorAttempts(prior),
	}

	p, err := prompt.Render(tmpl, vars)
	if err != nil {
		return nil, err
	}

	raw, err := llm.Complete(ctx, p)
	if err != nil {
		return nil, err
	}

	stripped := stripFence(raw)
	var wire wirePatch
	if err := json.Unmarshal([]byte(stripped), &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	if wire.FilePath == "" || wire.OriginalCode == "" {
		return nil, ErrUnparseable
	}

	return &patch.Patch{
		FilePath:        wire.FilePath,
		OriginalSpan:    wire.OriginalCode,
		ReplacementSpan: wire.FixedCode,
		Explanation:     wire.Explanation,
	}, nil
}

func renderPriorAttempts(attempts []PriorAttempt) string {
	if len(attempts) == 0 {
		return ""
	}
	var b strings.Builder
	for _, a := range attempts {
		errOut := a.ErrorOutput
		if len(errOut) > 500 {
			errOut = errOut[:500]
		}
		fmt.Fprintf(&b, "Attempt %d (%s): %s\nError: %s\n\n", a.AttemptNumber, a.Verdict, a.Explanation, errOut)
	}
	return strings.TrimSpace(b.String())
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
