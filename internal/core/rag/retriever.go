package rag

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	db "github.com/paralegalhq/casevault/internal/core/database"
	"github.com/paralegalhq/casevault/internal/models"
)

// ErrQueryEmbedding aborts a retrieval: without a query vector there is
// nothing to search with.
var ErrQueryEmbedding = errors.New("query embedding failed")

// QueryEmbedder is the single-text embedding contract the retriever needs;
// satisfied by embed.RetryEmbedder.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Match is one retrieved chunk with its cosine similarity to the query.
type Match struct {
	Chunk models.DocumentChunk
	Score float64
}

// Options narrows one retrieval call. Zero values fall back to the
// retriever's configured defaults.
type Options struct {
	CaseID    *string
	Threshold float64
	Count     int
}

// Retriever ranks stored chunks against a natural-language query.
type Retriever struct {
	store     db.DbClient
	embedder  QueryEmbedder
	threshold float64
	count     int
}

func NewRetriever(store db.DbClient, embedder QueryEmbedder, threshold float64, count int) *Retriever {
	if threshold <= 0 {
		threshold = 0.7
	}
	if count <= 0 {
		count = 5
	}
	return &Retriever{store: store, embedder: embedder, threshold: threshold, count: count}
}

// Retrieve embeds the query, searches in-scope chunks, and returns at most
// opts.Count matches at or above the threshold, best score first, equal
// scores ordered by ascending sequence index. Output is deterministic for
// identical input and stored state.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) ([]Match, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = r.threshold
	}
	count := opts.Count
	if count <= 0 {
		count = r.count
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryEmbedding, err)
	}

	scored, err := r.store.SearchChunks(ctx, opts.CaseID, queryVec, count)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}

	matches := make([]Match, 0, len(scored))
	for _, sc := range scored {
		if sc.Score < threshold {
			continue
		}
		matches = append(matches, Match{Chunk: sc.Chunk, Score: sc.Score})
	}

	// The store already orders results, but the ranking contract belongs
	// here: callers get the same ordering whatever backend produced the
	// candidates.
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Chunk.SequenceIndex < matches[j].Chunk.SequenceIndex
	})

	if len(matches) > count {
		matches = matches[:count]
	}
	return matches, nil
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched or zero-magnitude vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
