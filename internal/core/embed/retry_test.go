package embed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// fakeProvider fails a configurable number of times per text before
// succeeding, and counts every call it receives.
type fakeProvider struct {
	mu        sync.Mutex
	failures  map[string]int
	failWith  error
	callCount map[string]int
}

func newFakeProvider(failWith error, failures map[string]int) *fakeProvider {
	if failures == nil {
		failures = map[string]int{}
	}
	return &fakeProvider{failures: failures, failWith: failWith, callCount: map[string]int{}}
}

func (f *fakeProvider) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	text := texts[0]
	f.callCount[text]++
	if f.failures[text] > 0 {
		f.failures[text]--
		return nil, f.failWith
	}
	return [][]float32{{float32(len(text)), 1, 0}}, nil
}

func (f *fakeProvider) calls(text string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.callCount[text]
}

func testConfig() Config {
	return Config{
		MaxAttempts:     3,
		Concurrency:     4,
		RequestsPerSec:  1000,
		InitialInterval: time.Millisecond,
	}
}

func TestEmbedOneTransientThenSuccess(t *testing.T) {
	provider := newFakeProvider(&googleapi.Error{Code: 503}, map[string]int{"hello": 2})
	e := NewRetryEmbedder(provider, testConfig())

	vec, err := e.EmbedOne(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 3, provider.calls("hello"))
}

func TestEmbedOneExhaustsAttempts(t *testing.T) {
	provider := newFakeProvider(&googleapi.Error{Code: 429}, map[string]int{"hello": 100})
	e := NewRetryEmbedder(provider, testConfig())

	_, err := e.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbedPermanent)
	assert.Equal(t, 3, provider.calls("hello"))
}

func TestEmbedOneNonRetryableFailsFast(t *testing.T) {
	provider := newFakeProvider(&googleapi.Error{Code: 400}, map[string]int{"hello": 100})
	e := NewRetryEmbedder(provider, testConfig())

	_, err := e.EmbedOne(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrEmbedPermanent)
	assert.Equal(t, 1, provider.calls("hello"))
}

func TestEmbedEachIsolatesFailures(t *testing.T) {
	provider := newFakeProvider(&googleapi.Error{Code: 503}, map[string]int{"bad": 100})
	e := NewRetryEmbedder(provider, testConfig())

	results := e.EmbedEach(context.Background(), []string{"one", "bad", "three"})
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.NotEmpty(t, results[0].Vector)

	assert.ErrorIs(t, results[1].Err, ErrEmbedPermanent)
	assert.Empty(t, results[1].Vector)

	assert.NoError(t, results[2].Err)
	assert.NotEmpty(t, results[2].Vector)
}

func TestEmbedEachPreservesOrder(t *testing.T) {
	provider := newFakeProvider(nil, nil)
	e := NewRetryEmbedder(provider, testConfig())

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	results := e.EmbedEach(context.Background(), texts)
	require.Len(t, results, len(texts))

	for i, r := range results {
		require.NoError(t, r.Err)
		// The fake encodes the text length into the first component.
		assert.Equal(t, float32(len(texts[i])), r.Vector[0])
	}
}

func TestEmbedEachCancelledContext(t *testing.T) {
	provider := newFakeProvider(nil, nil)
	e := NewRetryEmbedder(provider, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := e.EmbedEach(ctx, []string{"one", "two"})
	for _, r := range results {
		assert.Error(t, r.Err)
	}
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&googleapi.Error{Code: 429}))
	assert.True(t, isTransient(&googleapi.Error{Code: 503}))
	assert.False(t, isTransient(&googleapi.Error{Code: 404}))
	assert.True(t, isTransient(context.DeadlineExceeded))
	assert.False(t, isTransient(errors.New("boom")))
}
