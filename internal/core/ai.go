package core

import "context"

// EmbeddingProvider turns texts into fixed-dimension vectors. Implementations
// wrap a network service; callers must treat every call as fallible.
type EmbeddingProvider interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// StreamEvent is one element of a generated token stream. A non-nil Err is
// terminal: the producer closes the stream after sending it.
type StreamEvent struct {
	Token string
	Err   error
}

// LLMProvider generates text from a system prompt and a user prompt.
// GenerateStream delivers the answer incrementally over a channel that is
// closed when generation finishes or the context is cancelled.
type LLMProvider interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error)
	GenerateStream(ctx context.Context, systemPrompt string, userPrompt string) <-chan StreamEvent
}

// DocumentExtractor converts raw uploaded bytes into normalized text. The
// contentType hint selects the parsing strategy.
type DocumentExtractor interface {
	Extract(data []byte, contentType string) (string, error)
}
