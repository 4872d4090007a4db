package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/paralegalhq/casevault/internal/core"
	"github.com/paralegalhq/casevault/internal/models"
)

// FallbackAnswer is the fixed phrase emitted whenever the retrieved context
// cannot answer the question. Grounding depends on this being constant: a
// caller can always tell "no evidence" apart from a generated answer.
const FallbackAnswer = "I cannot find the answer in the case documents."

const systemPrompt = `You are a legal case assistant. Answer strictly and only from the provided case document excerpts. ` +
	`Do not use outside knowledge and do not guess. ` +
	`If the excerpts do not contain the answer, reply with exactly: "` + FallbackAnswer + `"`

// Answerer streams grounded answers for chat queries. It keeps no state
// between calls; conversation history is whatever the caller supplies.
type Answerer struct {
	llm    core.LLMProvider
	maxCtx int
}

func NewAnswerer(llm core.LLMProvider, maxContextChars int) *Answerer {
	if maxContextChars <= 0 {
		maxContextChars = 8000
	}
	return &Answerer{llm: llm, maxCtx: maxContextChars}
}

// Answer returns a token stream for the question grounded on matches. With no
// matches the model is not called at all: the fallback phrase is streamed as
// a single token, so an empty retrieval can never produce a fabricated
// answer.
func (a *Answerer) Answer(ctx context.Context, history []models.ChatMessage, question string, matches []Match) <-chan core.StreamEvent {
	if len(matches) == 0 {
		out := make(chan core.StreamEvent, 1)
		out <- core.StreamEvent{Token: FallbackAnswer}
		close(out)
		return out
	}

	docContext := AssembleContext(matches, a.maxCtx)
	return a.llm.GenerateStream(ctx, systemPrompt, buildUserPrompt(docContext, history, question))
}

func buildUserPrompt(docContext string, history []models.ChatMessage, question string) string {
	var b strings.Builder

	b.WriteString("Case document excerpts:\n")
	b.WriteString(docContext)
	b.WriteString("\n\n")

	if len(history) > 0 {
		b.WriteString("Conversation so far:\n")
		for _, msg := range history {
			fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Question: %s", question)
	return b.String()
}
