package db

import (
	"context"

	"github.com/paralegalhq/casevault/internal/models"
)

// ScoredChunk is a chunk together with its cosine similarity against a query
// embedding. Produced by SearchChunks, never persisted.
type ScoredChunk struct {
	Chunk models.DocumentChunk
	Score float64
}

// DbClient defines all persistence operations the service needs. It abstracts
// Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	ListDocumentsByCase(ctx context.Context, caseID string) ([]models.Document, error)
	UpdateDocumentStatus(ctx context.Context, id string, status string) error

	// SetDocumentIngestResult records the aggregate outcome of one ingestion
	// run: terminal status, persisted chunk count and extracted-text length.
	SetDocumentIngestResult(ctx context.Context, id string, status string, chunkCount, textLength int) error

	// DeleteDocument removes the document row; chunks go with it via the
	// ON DELETE CASCADE constraint.
	DeleteDocument(ctx context.Context, id string) error

	// InsertDocumentChunks writes each chunk as its own statement. It is
	// deliberately not all-or-nothing: rows that fail are reported by
	// sequence index so a resumed ingestion can retry exactly those.
	InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) (failedSeq []int, err error)

	GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error)

	// SearchChunks returns up to limit chunks scored by cosine similarity
	// against queryVec, best first, ties broken by ascending sequence index.
	// A nil caseID searches every document.
	SearchChunks(ctx context.Context, caseID *string, queryVec []float32, limit int) ([]ScoredChunk, error)

	Close() error
}
