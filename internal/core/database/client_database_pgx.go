package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/paralegalhq/casevault/internal/config"
	"github.com/paralegalhq/casevault/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (DbClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	sqlDB, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pool settings sized for an API service plus the ingest workers.
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	sqlDB.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, sqlDB, cfg.EmbedDim); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: sqlDB}, nil
}

// NewDatabaseClientFromDB wraps an existing handle; used by tests.
func NewDatabaseClientFromDB(sqlDB *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: sqlDB}
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	const q = `
		INSERT INTO documents
			(id, case_id, file_name, content_type, byte_size, text_length, status, chunk_count, storage_url, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()), COALESCE($11, now()))
	`
	_, err := c.db.ExecContext(ctx, q,
		doc.ID, doc.CaseID, doc.FileName, doc.ContentType, doc.ByteSize, doc.TextLength,
		doc.Status, doc.ChunkCount, doc.StorageURL, doc.CreatedAt, doc.UpdatedAt)
	return err
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, case_id, file_name, content_type, byte_size, text_length, status, chunk_count, storage_url, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var d models.Document
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.CaseID, &d.FileName, &d.ContentType, &d.ByteSize, &d.TextLength,
		&d.Status, &d.ChunkCount, &d.StorageURL, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *DatabaseClient) ListDocumentsByCase(ctx context.Context, caseID string) ([]models.Document, error) {
	const q = `
		SELECT id, case_id, file_name, content_type, byte_size, text_length, status, chunk_count, storage_url, created_at, updated_at
		FROM documents
		WHERE case_id = $1
		ORDER BY created_at DESC
	`
	rows, err := c.db.QueryContext(ctx, q, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Document
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(
			&d.ID, &d.CaseID, &d.FileName, &d.ContentType, &d.ByteSize, &d.TextLength,
			&d.Status, &d.ChunkCount, &d.StorageURL, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) UpdateDocumentStatus(ctx context.Context, id string, status string) error {
	const q = `
		UPDATE documents
		SET status = $2, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) SetDocumentIngestResult(ctx context.Context, id string, status string, chunkCount, textLength int) error {
	const q = `
		UPDATE documents
		SET status = $2, chunk_count = $3, text_length = $4, updated_at = now()
		WHERE id = $1
	`
	res, err := c.db.ExecContext(ctx, q, id, status, chunkCount, textLength)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

func (c *DatabaseClient) DeleteDocument(ctx context.Context, id string) error {
	// document_chunks rows follow via ON DELETE CASCADE.
	const q = `DELETE FROM documents WHERE id = $1`
	res, err := c.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("document not found: %s", id)
	}
	return nil
}

// InsertDocumentChunks writes one row per chunk outside a transaction so a
// single bad row cannot roll back its siblings. Failed sequence indices are
// returned for the orchestrator to retry in a resumed run.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, chunks []models.DocumentChunk) ([]int, error) {
	if len(chunks) == 0 {
		return nil, nil
	}

	const q = `
		INSERT INTO document_chunks
			(id, document_id, sequence_index, content, checksum, token_count, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()))
		ON CONFLICT (document_id, sequence_index) DO NOTHING
	`

	var failed []int
	var firstErr error
	for i := range chunks {
		ch := &chunks[i]
		vec := pgvector.NewVector(ch.Embedding)

		if _, err := c.db.ExecContext(ctx, q,
			ch.ID, ch.DocumentID, ch.SequenceIndex, ch.Content, ch.Checksum, ch.TokenCount, vec, ch.CreatedAt,
		); err != nil {
			failed = append(failed, ch.SequenceIndex)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return failed, firstErr
}

func (c *DatabaseClient) GetChunksByDocument(ctx context.Context, documentID string) ([]models.DocumentChunk, error) {
	const q = `
		SELECT id, document_id, sequence_index, content, checksum, token_count, embedding, created_at
		FROM document_chunks
		WHERE document_id = $1
		ORDER BY sequence_index ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.DocumentChunk
	for rows.Next() {
		var (
			ch  models.DocumentChunk
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&ch.ID, &ch.DocumentID, &ch.SequenceIndex, &ch.Content, &ch.Checksum, &ch.TokenCount, &emb, &ch.CreatedAt,
		); err != nil {
			return nil, err
		}
		ch.Embedding = emb.Slice()
		out = append(out, ch)
	}
	return out, rows.Err()
}

// SearchChunks scores in-scope chunks against queryVec with pgvector's cosine
// operator. 1 - distance is cosine similarity; ordering and the final
// threshold/truncation contract live in the retriever.
func (c *DatabaseClient) SearchChunks(ctx context.Context, caseID *string, queryVec []float32, limit int) ([]ScoredChunk, error) {
	const q = `
		SELECT c.id, c.document_id, c.sequence_index, c.content, c.checksum, c.token_count,
		       1 - (c.embedding <=> $1) AS score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE ($2::text IS NULL OR d.case_id = $2)
		ORDER BY c.embedding <=> $1 ASC, c.sequence_index ASC
		LIMIT $3
	`
	vec := pgvector.NewVector(queryVec)
	rows, err := c.db.QueryContext(ctx, q, vec, caseID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ScoredChunk
	for rows.Next() {
		var sc ScoredChunk
		if err := rows.Scan(
			&sc.Chunk.ID, &sc.Chunk.DocumentID, &sc.Chunk.SequenceIndex,
			&sc.Chunk.Content, &sc.Chunk.Checksum, &sc.Chunk.TokenCount, &sc.Score,
		); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}
