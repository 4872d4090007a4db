package rag

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paralegalhq/casevault/internal/core"
	"github.com/paralegalhq/casevault/internal/models"
)

// fakeLLM replays canned tokens and records the prompts it was given.
type fakeLLM struct {
	tokens       []string
	systemPrompt string
	userPrompt   string
	called       bool
}

func (f *fakeLLM) Generate(_ context.Context, systemPrompt, userPrompt string) (string, error) {
	f.called = true
	f.systemPrompt, f.userPrompt = systemPrompt, userPrompt
	return strings.Join(f.tokens, ""), nil
}

func (f *fakeLLM) GenerateStream(_ context.Context, systemPrompt, userPrompt string) <-chan core.StreamEvent {
	f.called = true
	f.systemPrompt, f.userPrompt = systemPrompt, userPrompt

	out := make(chan core.StreamEvent, len(f.tokens))
	for _, tok := range f.tokens {
		out <- core.StreamEvent{Token: tok}
	}
	close(out)
	return out
}

func collect(t *testing.T, stream <-chan core.StreamEvent) string {
	t.Helper()
	var b strings.Builder
	for ev := range stream {
		require.NoError(t, ev.Err)
		b.WriteString(ev.Token)
	}
	return b.String()
}

func TestAnswerNoMatchesEmitsFallback(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"should", "not", "appear"}}
	a := NewAnswerer(llm, 8000)

	got := collect(t, a.Answer(context.Background(), nil, "Who is the guardian?", nil))

	assert.Equal(t, FallbackAnswer, got)
	assert.False(t, llm.called, "model must not be called without context")
}

func TestAnswerStreamsModelTokens(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"Mandatory ", "reporting ", "is required."}}
	a := NewAnswerer(llm, 8000)

	matches := matchesFor("CAPTA requires mandatory reporting.")
	got := collect(t, a.Answer(context.Background(), nil, "What does CAPTA require?", matches))

	assert.Equal(t, "Mandatory reporting is required.", got)
	assert.True(t, llm.called)
	assert.Contains(t, llm.userPrompt, "CAPTA requires mandatory reporting.")
	assert.Contains(t, llm.userPrompt, "What does CAPTA require?")
	assert.Contains(t, llm.systemPrompt, FallbackAnswer)
}

func TestAnswerIncludesHistory(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"ok"}}
	a := NewAnswerer(llm, 8000)

	history := []models.ChatMessage{
		{Role: "user", Content: "Summarize the case."},
		{Role: "assistant", Content: "The case concerns custody."},
	}
	collect(t, a.Answer(context.Background(), history, "And the next hearing?", matchesFor("Hearing on March 3.")))

	assert.Contains(t, llm.userPrompt, "user: Summarize the case.")
	assert.Contains(t, llm.userPrompt, "assistant: The case concerns custody.")
}

func TestAnswerBoundsContext(t *testing.T) {
	llm := &fakeLLM{tokens: []string{"ok"}}
	a := NewAnswerer(llm, 20)

	matches := matchesFor(strings.Repeat("a", 15), strings.Repeat("b", 15))
	collect(t, a.Answer(context.Background(), nil, "q", matches))

	assert.Contains(t, llm.userPrompt, strings.Repeat("a", 15))
	assert.NotContains(t, llm.userPrompt, strings.Repeat("b", 15))
}
