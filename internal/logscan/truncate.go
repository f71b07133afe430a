package logscan

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultBudget is the byte budget applied when a caller does not override it.
const DefaultBudget = 50_000

const (
	contextBefore = 5
	contextAfter  = 10
)

var (
	relevantWords  = []string{"error", "exception", "traceback", "failed", "assert"}
	fileLocationRe = regexp.MustCompile(`File "[^"]+", line \d+`)
)

// Truncate reduces text to at most budget bytes. Lines within a window of a
// relevant line are kept in original order; if that rendering still exceeds
// budget, it falls back to the last budget bytes of the raw input.
func Truncate(text string, budget int) string {
	if budget <= 0 {
		budget = DefaultBudget
	}
	if len(text) <= budget {
		return text
	}

	lines := strings.Split(text, "\n")
	keep := make(map[int]bool)
	for i, line := range lines {
		if !isRelevant(line) {
			continue
		}
		lo := i - contextBefore
		if lo < 0 {
			lo = 0
		}
		hi := i + contextAfter
		if hi > len(lines)-1 {
			hi = len(lines) - 1
		}
		for j := lo; j <= hi; j++ {
			keep[j] = true
		}
	}

	if len(keep) > 0 {
		indices := make([]int, 0, len(keep))
		for idx := range keep {
			indices = append(indices, idx)
		}
		sort.Ints(indices)

		var b strings.Builder
		b.WriteString("[Log truncated — error-relevant sections]\n")
		for _, idx := range indices {
			b.WriteString(lines[idx])
			b.WriteByte('\n')
		}
		rendered := b.String()
		if len(rendered) <= budget {
			return rendered
		}
	}

	tail := text
	if len(tail) > budget {
		tail = tail[len(tail)-budget:]
	}
	return "[Log truncated — last " + strconv.Itoa(budget) + " chars]\n" + tail
}

func isRelevant(line string) bool {
	lower := strings.ToLower(line)
	for _, w := range relevantWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return fileLocationRe.MatchString(line)
}
