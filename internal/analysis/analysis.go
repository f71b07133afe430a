// Package analysis implements the Analysis Stage (C6): submit a
// localized, truncated log to the LLM's analyze call and normalize its
// response into a well-formed artifact per spec.md §4.6.
package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/ci-healer/agent/internal/config"
	"github.com/ci-healer/agent/internal/prompt"
)

// ErrorKind is the closed enumeration spec.md §3 defines for the analysis
// artifact's error_kind field.
type ErrorKind string

const (
	ImportError          ErrorKind = "ImportError"
	ModuleNotFoundError  ErrorKind = "ModuleNotFoundError"
	TypeError            ErrorKind = "TypeError"
	AttributeError       ErrorKind = "AttributeError"
	AssertionError       ErrorKind = "AssertionError"
	SyntaxError          ErrorKind = "SyntaxError"
	NameError            ErrorKind = "NameError"
	ValueError           ErrorKind = "ValueError"
	KeyError             ErrorKind = "KeyError"
	Other                ErrorKind = "Other"
)

var knownKinds = map[ErrorKind]bool{
	ImportError: true, ModuleNotFoundError: true, TypeError: true,
	AttributeError: true, AssertionError: true, SyntaxError: true,
	NameError: true, ValueError: true, KeyError: true, Other: true,
}

// Artifact is the transient analysis result spec.md §3 defines.
type Artifact struct {
	ErrorKind    ErrorKind
	FilePath     string
	Line         int
	FunctionName string
	ErrorMessage string
	Frames       []string
	FailingTest  string
	Confidence   float64
	RawExcerpt   string
}

// BelowGate reports whether this artifact's confidence is below the
// pipeline's reproduction gate (spec.md §4.6, §4.10).
func (a *Artifact) BelowGate() bool {
	return a.Confidence < config.ConfidenceGate
}

// LLM is the narrow capability analysis needs from the LLM client.
type LLM interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

var fencedBlockRe = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n(.*?)\\n```\\s*$")

type wireArtifact struct {
	ErrorKind    string   `json:"error_kind"`
	FilePath     string   `json:"file_path"`
	Line         int      `json:"line"`
	FunctionName string   `json:"function_name"`
	ErrorMessage string   `json:"error_message"`
	Frames       []string `json:"frames"`
	FailingTest  string   `json:"failing_test"`
	Confidence   *float64 `json:"confidence"`
}

// Analyze submits log (already localized and truncated) to the LLM's
// analyze call and normalizes the response per spec.md §4.6: unknown
// error kinds coerce to Other, confidence clamps to [0,1] and defaults
// to 0.5 when absent, file path defaults to "unknown", frames default
// to empty. A response that fails to parse as JSON yields an artifact
// with kind Other, confidence 0, and raw excerpt set to the response's
// first 1,000 bytes — never an error, since the orchestrator must still
// have something to route on.
func Analyze(ctx context.Context, llm LLM, repo, workflowName, sha, logExcerpt string) (*Artifact, error) {
	tmpl, ok := prompt.Builtin("analyze.md")
	if !ok {
		return nil, fmt.Errorf("analysis: missing builtin template analyze.md")
	}
	p, err := prompt.Render(tmpl, prompt.Vars{
		"repo":          repo,
		"workflow_name": workflowName,
		"sha":           sha,
		"log_excerpt":   logExcerpt,
	})
	if err != nil {
		return nil, err
	}

	raw, err := llm.Complete(ctx, p)
	if err != nil {
		return nil, err
	}

	return parseResponse(raw), nil
}

func parseResponse(raw string) *Artifact {
	stripped := stripFence(raw)

	var wire wireArtifact
	if err := json.Unmarshal([]byte(stripped), &wire); err != nil {
		excerpt := raw
		if len(excerpt) > 1000 {
			excerpt = excerpt[:1000]
		}
		return &Artifact{ErrorKind: Other, Confidence: 0, RawExcerpt: excerpt}
	}

	kind := ErrorKind(wire.ErrorKind)
	if !knownKinds[kind] {
		kind = Other
	}

	filePath := wire.FilePath
	if filePath == "" {
		filePath = "unknown"
	}

	confidence := 0.5
	if wire.Confidence != nil {
		confidence = *wire.Confidence
	}
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	frames := wire.Frames
	if frames == nil {
		frames = []string{}
	}

	return &Artifact{
		ErrorKind:    kind,
		FilePath:     filePath,
		Line:         wire.Line,
		FunctionName: wire.FunctionName,
		ErrorMessage: wire.ErrorMessage,
		Frames:       frames,
		FailingTest:  wire.FailingTest,
		Confidence:   confidence,
		RawExcerpt:   stripped,
	}
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}
