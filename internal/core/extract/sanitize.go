package extract

import (
	"regexp"
	"strings"
)

var (
	manyNewlines = regexp.MustCompile(`\n{3,}`)
	blankRuns    = regexp.MustCompile(`[ \t]{2,}`)
)

// Sanitize normalizes extracted text. Rules apply in order: all line-ending
// variants become \n, runs of three or more newlines collapse to two, runs of
// two or more spaces/tabs collapse to a single space, and the result is
// trimmed of leading/trailing whitespace.
func Sanitize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = manyNewlines.ReplaceAllString(text, "\n\n")
	text = blankRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
