// Package patch applies and reverts exact-span textual patches to files
// inside a workspace, as generated by the fix-synthesis LLM call.
package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Patch is the transient artifact produced by fix synthesis: a literal
// span to find and a literal span to replace it with.
type Patch struct {
	FilePath        string
	OriginalSpan    string
	ReplacementSpan string
	Explanation     string
}

// ErrSpanNotFound means original_span does not occur in the file.
var ErrSpanNotFound = fmt.Errorf("patch: original span not found in file")

// ErrSpanNotUnique means original_span occurs more than once in the file.
// Non-unique spans are rejected rather than silently replacing the first
// occurrence: a patch aimed at the wrong copy would look successful while
// mutating unrelated code.
var ErrSpanNotUnique = fmt.Errorf("patch: original span is not unique in file")

// ErrNoOp means the replacement would leave file contents unchanged.
var ErrNoOp = fmt.Errorf("patch: applying span produced no change")

// Apply loads workspace/patch.FilePath, replaces the sole occurrence of
// OriginalSpan with ReplacementSpan, and writes the file back.
func Apply(workspace string, p Patch) error {
	return replace(workspace, p.FilePath, p.OriginalSpan, p.ReplacementSpan)
}

// Revert applies the patch in the opposite direction. It is a no-op,
// returning nil, if ReplacementSpan is already absent — the file was
// never patched, or was already reverted.
func Revert(workspace string, p Patch) error {
	err := replace(workspace, p.FilePath, p.ReplacementSpan, p.OriginalSpan)
	if err == ErrSpanNotFound {
		return nil
	}
	return err
}

func replace(workspace, relPath, from, to string) error {
	path := filepath.Join(workspace, relPath)
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("patch: reading %s: %w", relPath, err)
	}
	contents := string(data)

	count := strings.Count(contents, from)
	if count == 0 {
		return ErrSpanNotFound
	}
	if count > 1 {
		return ErrSpanNotUnique
	}

	updated := strings.Replace(contents, from, to, 1)
	if updated == contents {
		return ErrNoOp
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("patch: writing %s: %w", relPath, err)
	}
	return nil
}
