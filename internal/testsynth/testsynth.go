// Package testsynth implements the Test Synthesis Stage (C7): ask the LLM
// for a minimal regression test that reproduces the diagnosed failure,
// then derive the metadata spec.md §4.7 requires from the raw response.
package testsynth

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ci-healer/agent/internal/analysis"
	"github.com/ci-healer/agent/internal/prompt"
)

// GeneratedTest is the at-most-one-per-failure artifact spec.md §3 defines.
type GeneratedTest struct {
	Name            string
	Source          string
	TargetFile      string
	RequiredSymbols []string
}

// LLM is the narrow capability test synthesis needs from the LLM client.
type LLM interface {
	Complete(ctx context.Context, promptText string) (string, error)
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:\\w+)?\\s*\\n(.*?)\\n```")
	testNameRe    = regexp.MustCompile(`def\s+(test_\w+)\s*\(`)
	funcDefRe     = regexp.MustCompile(`def\s+(\w+)\s*\(`)
)

// Synthesize submits the subject source, any prior test for the module
// (truncated to 2,000 bytes), and the analysis artifact, and derives the
// test's name, target file path, and required-symbol list from the
// response, per spec.md §4.7.
func Synthesize(ctx context.Context, llm LLM, filePath, source, priorTest string, art *analysis.Artifact) (*GeneratedTest, error) {
	tmpl, ok := prompt.Builtin("synthesize-test.md")
	if !ok {
		return nil, fmt.Errorf("testsynth: missing builtin template synthesize-test.md")
	}

	if len(priorTest) > 2000 {
		priorTest = priorTest[:2000]
	}

	vars := prompt.Vars{
		"repo":          "",
		"file_path":     filePath,
		"error_kind":    string(art.ErrorKind),
		"error_message": art.ErrorMessage,
		"function_name": art.FunctionName,
		"source":        source,
		"failing_test":  art.FailingTest,
		"prior_test":    priorTest,
	}

	p, err := prompt.Render(tmpl, vars)
	if err != nil {
		return nil, err
	}

	raw, err := llm.Complete(ctx, p)
	if err != nil {
		return nil, err
	}

	body := stripFence(raw)
	name := extractTestName(body, filePath)
	target := deriveTargetPath(filePath, name)
	required := requiredSymbols(source, body)

	return &GeneratedTest{
		Name:            name,
		Source:          body,
		TargetFile:      target,
		RequiredSymbols: required,
	}, nil
}

func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if m := fencedBlockRe.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return s
}

// extractTestName pulls the def test_\w+( name out of the generated body,
// deriving a default from the subject file's base name when absent.
func extractTestName(body, subjectFile string) string {
	if m := testNameRe.FindStringSubmatch(body); m != nil {
		return m[1]
	}
	base := subjectFile
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	base = strings.TrimSuffix(base, ".py")
	return "test_" + base + "_generated"
}

// deriveTargetPath replaces the first "src" path component with "tests"
// and prefixes the filename with "test_", or places the file under
// tests/ if the subject path has no src component.
func deriveTargetPath(subjectFile, testName string) string {
	parts := strings.Split(subjectFile, "/")
	filename := parts[len(parts)-1]
	testFilename := "test_" + strings.TrimSuffix(filename, ".py") + ".py"

	for i, p := range parts {
		if p == "src" {
			out := append([]string{}, parts[:i]...)
			out = append(out, "tests")
			out = append(out, parts[i+1:len(parts)-1]...)
			out = append(out, testFilename)
			return strings.Join(out, "/")
		}
	}
	return "tests/" + testFilename
}

// requiredSymbols scans the subject source for defined function names and
// returns those that also appear in the generated test body.
func requiredSymbols(source, testBody string) []string {
	var required []string
	for _, m := range funcDefRe.FindAllStringSubmatch(source, -1) {
		name := m[1]
		if strings.Contains(testBody, name) {
			required = append(required, name)
		}
	}
	return required
}
