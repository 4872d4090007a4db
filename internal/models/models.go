package models

import (
	"time"
)

// Ingestion statuses for a document. A document always holds exactly one of
// these; transitions are owned by the ingestion orchestrator.
const (
	StatusUploaded        = "uploaded"
	StatusExtracting      = "extracting"
	StatusChunking        = "chunking"
	StatusEmbedding       = "embedding"
	StatusStored          = "stored"
	StatusPartiallyStored = "partially_stored"
	StatusFailed          = "failed"
)

// Document represents one uploaded case file and its ingestion progress.
type Document struct {
	ID          string    `db:"id" json:"id"`
	CaseID      string    `db:"case_id" json:"case_id"`
	FileName    string    `db:"file_name" json:"file_name"`
	ContentType string    `db:"content_type" json:"content_type"`
	ByteSize    int64     `db:"byte_size" json:"byte_size"`
	TextLength  int       `db:"text_length" json:"text_length"`
	Status      string    `db:"status" json:"status"`
	ChunkCount  int       `db:"chunk_count" json:"chunk_count"`
	StorageURL  string    `db:"storage_url" json:"storage_url"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// DocumentChunk is one bounded slice of a document's extracted text together
// with its embedding. Chunks are immutable once persisted and are removed
// only by the parent document's cascade delete.
type DocumentChunk struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"document_id"`
	SequenceIndex int       `db:"sequence_index" json:"sequence_index"`
	Content       string    `db:"content" json:"content"`
	Checksum      string    `db:"checksum" json:"checksum"`
	TokenCount    int       `db:"token_count" json:"token_count"`
	Embedding     []float32 `db:"embedding" json:"-"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// ChatMessage is one turn of caller-supplied conversation history. Nothing is
// persisted server-side; the caller resends whatever history it wants used.
type ChatMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}
