// Package logscan picks the failure-relevant log out of a job's log set
// and shrinks it to a byte budget an LLM prompt can afford.
package logscan

import (
	"fmt"
	"strings"
)

// JobLog is one per-job log text keyed by the job that produced it.
type JobLog struct {
	Job  string
	Text string
}

// indicators are counted case-insensitively; the five literal tokens are
// counted with exact case because they are already conventionally
// capitalized in Python tracebacks and pytest output.
var lowerIndicators = []string{"error", "failed", "exception", "traceback"}
var literalIndicators = []string{"FAILED", "AssertionError", "TypeError", "ImportError", "ModuleNotFoundError"}

// Localize picks the single log text most likely to contain the failure.
// It returns "", false if logs is empty. When every log scores zero it
// falls back to a concatenation of all logs so no evidence is discarded.
func Localize(logs []JobLog) (string, bool) {
	if len(logs) == 0 {
		return "", false
	}

	bestIdx := 0
	bestScore := -1
	allZero := true
	for i, l := range logs {
		score := score(l.Text)
		if score > 0 {
			allZero = false
		}
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	if allZero {
		var b strings.Builder
		for _, l := range logs {
			fmt.Fprintf(&b, "=== %s ===\n%s\n", l.Job, l.Text)
		}
		return b.String(), true
	}

	return logs[bestIdx].Text, true
}

func score(text string) int {
	lower := strings.ToLower(text)
	n := 0
	for _, tok := range lowerIndicators {
		n += countNonOverlapping(lower, tok)
	}
	for _, tok := range literalIndicators {
		n += countNonOverlapping(text, tok)
	}
	return n
}

func countNonOverlapping(haystack, needle string) int {
	if needle == "" {
		return 0
	}
	count := 0
	rest := haystack
	for {
		idx := strings.Index(rest, needle)
		if idx == -1 {
			return count
		}
		count++
		rest = rest[idx+len(needle):]
	}
}
