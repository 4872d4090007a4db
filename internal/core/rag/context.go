package rag

import (
	"strings"
)

// AssembleContext concatenates match contents in rank order, separated by a
// blank line, bounded by maxChars. When the full set does not fit, the
// lowest-ranked matches are dropped first until it does.
func AssembleContext(matches []Match, maxChars int) string {
	if len(matches) == 0 || maxChars <= 0 {
		return ""
	}

	kept := len(matches)
	for kept > 0 {
		if contextLen(matches[:kept]) <= maxChars {
			break
		}
		kept--
	}
	if kept == 0 {
		return ""
	}

	parts := make([]string, 0, kept)
	for _, m := range matches[:kept] {
		parts = append(parts, m.Chunk.Content)
	}
	return strings.Join(parts, "\n\n")
}

func contextLen(matches []Match) int {
	n := 0
	for i, m := range matches {
		if i > 0 {
			n += 2 // blank-line separator
		}
		n += len(m.Chunk.Content)
	}
	return n
}
