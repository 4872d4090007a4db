package ingest

import (
	"errors"
	"fmt"
)

// ErrInvalidChunkConfig is returned when the window geometry cannot advance.
var ErrInvalidChunkConfig = errors.New("invalid chunker configuration")

// Chunker splits sanitized text into fixed-size overlapping windows. The
// split is deterministic: the same text always yields the same chunks.
type Chunker struct {
	size    int
	overlap int
}

// NewChunker validates the window geometry. size must be positive and
// strictly greater than overlap, otherwise the window could never advance.
func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size %d must be positive", ErrInvalidChunkConfig, size)
	}
	if overlap < 0 {
		return nil, fmt.Errorf("%w: overlap %d must not be negative", ErrInvalidChunkConfig, overlap)
	}
	if size <= overlap {
		return nil, fmt.Errorf("%w: chunk size %d must exceed overlap %d", ErrInvalidChunkConfig, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Split emits windows [i, i+size) over the text's runes, advancing i by
// size-overlap each step. Text shorter than one window yields a single
// chunk; empty text yields none.
func (c *Chunker) Split(text string) []string {
	if text == "" {
		return nil
	}

	runes := []rune(text)
	step := c.size - c.overlap

	var chunks []string
	for i := 0; i < len(runes); i += step {
		end := i + c.size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[i:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// approxTokens is a cheap token estimator (~4 chars per token), used for the
// stored token_count and the context budget math.
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
