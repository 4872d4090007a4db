package embed

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"github.com/paralegalhq/casevault/internal/core"
)

// ErrEmbedPermanent marks a text whose embedding could not be produced after
// all retry attempts. The caller excludes that text and carries on; sibling
// texts are never affected.
var ErrEmbedPermanent = errors.New("embedding permanently failed")

// Result is the per-text outcome of EmbedEach. Exactly one of Vector and Err
// is meaningful.
type Result struct {
	Vector []float32
	Err    error
}

// Config tunes retry and throughput behavior.
//
// MaxAttempts:     total tries per text, first attempt included.
// Concurrency:     in-flight provider calls per EmbedEach invocation.
// RequestsPerSec:  provider-wide rate limit shared by all callers.
// InitialInterval: first backoff delay; left zero it defaults to 500ms.
type Config struct {
	MaxAttempts     int
	Concurrency     int
	RequestsPerSec  int
	InitialInterval time.Duration
}

// RetryEmbedder wraps an EmbeddingProvider with bounded exponential retries,
// a shared rate limiter, and per-text failure isolation.
type RetryEmbedder struct {
	provider core.EmbeddingProvider
	limiter  *rate.Limiter
	cfg      Config
}

func NewRetryEmbedder(provider core.EmbeddingProvider, cfg Config) *RetryEmbedder {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 4
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	return &RetryEmbedder{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.RequestsPerSec),
		cfg:      cfg,
	}
}

// EmbedOne embeds a single text, used for queries. Retries apply the same as
// during ingestion.
func (e *RetryEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	return e.embedWithRetry(ctx, text)
}

// EmbedEach embeds every text independently with bounded parallelism and
// returns a parallel slice of results. A failure for one text is recorded in
// its slot only; the remaining texts still complete. The slice is always the
// same length as texts, in the same order.
func (e *RetryEmbedder) EmbedEach(ctx context.Context, texts []string) []Result {
	results := make([]Result, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for i, text := range texts {
		if gctx.Err() != nil {
			results[i] = Result{Err: gctx.Err()}
			continue
		}
		g.Go(func() error {
			vec, err := e.embedWithRetry(gctx, text)
			// Each slot is written by exactly one goroutine; no locking needed.
			results[i] = Result{Vector: vec, Err: err}
			return nil
		})
	}

	_ = g.Wait()
	return results
}

func (e *RetryEmbedder) embedWithRetry(ctx context.Context, text string) ([]float32, error) {
	var vec []float32

	op := func() error {
		if err := e.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		vecs, err := e.provider.EmbedTexts(ctx, []string{text})
		if err != nil {
			if isTransient(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		if len(vecs) != 1 || len(vecs[0]) == 0 {
			return backoff.Permanent(fmt.Errorf("provider returned %d vectors for 1 text", len(vecs)))
		}
		vec = vecs[0]
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = e.cfg.InitialInterval
	b := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(e.cfg.MaxAttempts-1)), ctx)

	if err := backoff.Retry(op, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedPermanent, err)
	}
	return vec, nil
}

// isTransient reports whether an embedding call is worth retrying: rate
// limits, provider-side errors, and network timeouts.
func isTransient(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case 429, 500, 502, 503:
			return true
		}
		return false
	}

	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
