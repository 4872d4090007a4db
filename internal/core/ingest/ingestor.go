package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/paralegalhq/casevault/internal/core"
	db "github.com/paralegalhq/casevault/internal/core/database"
	"github.com/paralegalhq/casevault/internal/core/embed"
	objectclient "github.com/paralegalhq/casevault/internal/core/object-client"
	"github.com/paralegalhq/casevault/internal/models"
)

// Embedder is the batch contract the orchestrator needs: one result per
// input text, failures isolated per slot. Satisfied by embed.RetryEmbedder.
type Embedder interface {
	EmbedEach(ctx context.Context, texts []string) []embed.Result
}

// ErrQueueFull is returned by Enqueue when the job queue cannot take another
// document. Callers surface it as a retry-later condition.
var ErrQueueFull = errors.New("ingestion queue is full")

// Ingestor is the public face of the ingestion pipeline.
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Enqueue(docID string) error
	ProcessOne(ctx context.Context, docID string) error
	Cancel(docID string)
}

// IngestConfig tunes the pipeline.
//
// ChunkSize:    characters per chunk window.
// ChunkOverlap: characters shared between consecutive windows.
// QueueSize:    job queue capacity; left zero it defaults to 64.
// RunTimeout:   per-document processing deadline; left zero it defaults
//               to 5 minutes.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	QueueSize    int
	RunTimeout   time.Duration
}

// DocumentIngestor owns each document's ingestion state machine:
//
//	uploaded -> extracting -> chunking -> embedding -> stored | partially_stored | failed
//
// partially_stored and failed are resumable: ProcessOne on such a document
// re-attempts only the chunks that have no stored embedding yet.
type DocumentIngestor struct {
	db         db.DbClient
	obj        objectclient.ObjectClient
	bucket     string
	embedder   Embedder
	extractor  core.DocumentExtractor
	chunker    *Chunker
	jobs       chan string
	runTimeout time.Duration

	mu       sync.Mutex
	inflight map[string]context.CancelFunc
}

var _ Ingestor = (*DocumentIngestor)(nil)

// NewDocumentIngestor constructs the ingestor with a bounded job queue.
func NewDocumentIngestor(dbc db.DbClient, obj objectclient.ObjectClient, bucket string, emb Embedder, extractor core.DocumentExtractor, cfg *IngestConfig) (*DocumentIngestor, error) {
	chunker, err := NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	runTimeout := cfg.RunTimeout
	if runTimeout <= 0 {
		runTimeout = 5 * time.Minute
	}
	return &DocumentIngestor{
		db:         dbc,
		obj:        obj,
		bucket:     bucket,
		embedder:   emb,
		extractor:  extractor,
		chunker:    chunker,
		jobs:       make(chan string, queueSize),
		runTimeout: runTimeout,
		inflight:   make(map[string]context.CancelFunc),
	}, nil
}

// Start runs numWorkers goroutines reading from the jobs channel. Concurrent
// workers never contend on rows: each document is owned by exactly one run.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		go func(w int) {
			for {
				select {
				case <-ctx.Done():
					log.Println("ingestor: worker shutting down")
					return
				case docID := <-i.jobs:
					log.Printf("ingestor: worker %d processing document %s", w, docID)
					if err := i.ProcessOne(ctx, docID); err != nil {
						log.Printf("ingestor: document %s: %v", docID, err)
					}
				}
			}
		}(w)
	}
}

// Enqueue schedules a document ID for ingestion. A full queue is reported
// immediately as ErrQueueFull rather than blocking the caller.
func (i *DocumentIngestor) Enqueue(docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Cancel aborts an in-flight ingestion of the given document, if any. No new
// embedding calls are scheduled after cancellation; the document keeps
// whatever state it had reached.
func (i *DocumentIngestor) Cancel(docID string) {
	i.mu.Lock()
	cancel, ok := i.inflight[docID]
	i.mu.Unlock()
	if ok {
		cancel()
	}
}

func (i *DocumentIngestor) track(docID string, cancel context.CancelFunc) {
	i.mu.Lock()
	i.inflight[docID] = cancel
	i.mu.Unlock()
}

func (i *DocumentIngestor) untrack(docID string) {
	i.mu.Lock()
	delete(i.inflight, docID)
	i.mu.Unlock()
}

// ProcessOne runs the full pipeline for one document: extract, sanitize,
// chunk, dedup, embed, persist. Safe to call again on partially_stored or
// failed documents; already-stored chunks are skipped and their embeddings
// seed the deduplicator.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) error {
	runCtx, cancel := context.WithTimeout(ctx, i.runTimeout)
	defer cancel()
	i.track(docID, cancel)
	defer i.untrack(docID)

	doc, err := i.db.GetDocumentByID(runCtx, docID)
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}
	if doc == nil {
		return fmt.Errorf("document not found: %s", docID)
	}
	if doc.Status == models.StatusStored {
		return nil
	}

	// Extracting.
	if err := i.db.UpdateDocumentStatus(runCtx, docID, models.StatusExtracting); err != nil {
		return err
	}

	bucket, key := objectclient.ParseStorageURL(doc.StorageURL)
	if bucket == "" {
		bucket = i.bucket
	}
	data, err := i.obj.GetFile(runCtx, bucket, key)
	if err != nil {
		return i.fail(ctx, docID, fmt.Errorf("fetch upload: %w", err))
	}

	text, err := i.extractor.Extract(data, doc.ContentType)
	if err != nil {
		return i.fail(ctx, docID, fmt.Errorf("extract: %w", err))
	}
	textLength := utf8.RuneCountInString(text)

	// Chunking.
	if err := i.db.UpdateDocumentStatus(runCtx, docID, models.StatusChunking); err != nil {
		return err
	}
	parts := i.chunker.Split(text)

	// Empty documents are complete the moment they are chunked.
	if len(parts) == 0 {
		return i.db.SetDocumentIngestResult(runCtx, docID, models.StatusStored, 0, textLength)
	}

	// Chunks from an earlier run stay; only the gaps are re-attempted. Their
	// embeddings seed the deduplicator so identical content costs nothing.
	existing, err := i.db.GetChunksByDocument(runCtx, docID)
	if err != nil {
		return fmt.Errorf("load existing chunks: %w", err)
	}
	storedSeq := make(map[int]bool, len(existing))
	dedup := NewDeduplicator()
	for _, ch := range existing {
		storedSeq[ch.SequenceIndex] = true
		dedup.Seed(ch.Checksum, ch.Embedding)
	}

	// Embedding.
	if err := i.db.UpdateDocumentStatus(runCtx, docID, models.StatusEmbedding); err != nil {
		return err
	}

	vectors := make([][]float32, len(parts))
	checksums := make([]string, len(parts))
	pending := make(map[string][]int) // checksum -> sequence indices awaiting it
	var order []string                // first-appearance order of pending checksums

	for idx, content := range parts {
		if storedSeq[idx] {
			continue
		}
		sum := Checksum(content)
		checksums[idx] = sum
		if vec, ok := dedup.Lookup(sum); ok {
			vectors[idx] = vec
			continue
		}
		if _, seen := pending[sum]; !seen {
			order = append(order, sum)
		}
		pending[sum] = append(pending[sum], idx)
	}

	if len(order) > 0 {
		texts := make([]string, len(order))
		for j, sum := range order {
			texts[j] = parts[pending[sum][0]]
		}

		results := i.embedder.EmbedEach(runCtx, texts)
		for j, sum := range order {
			if results[j].Err != nil {
				log.Printf("ingestor: document %s chunk %d: %v", docID, pending[sum][0], results[j].Err)
				continue
			}
			dedup.Remember(sum, results[j].Vector)
			for _, idx := range pending[sum] {
				vectors[idx] = results[j].Vector
			}
		}
	}

	if err := runCtx.Err(); err != nil {
		// A caller cancel means the document is being deleted; leave it
		// as-is for the cascade. The run's own deadline is different: the
		// document must land in a terminal status the reingest endpoint
		// accepts, or it could never be resumed.
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			status := models.StatusFailed
			if len(storedSeq) > 0 {
				status = models.StatusPartiallyStored
			}
			if uerr := i.db.SetDocumentIngestResult(ctx, docID, status, len(storedSeq), textLength); uerr != nil {
				log.Printf("ingestor: document %s: recording timeout: %v", docID, uerr)
			}
		}
		return err
	}

	// Storing. Per-row writes: a failed row is retried by a resumed run, not
	// rolled into an all-or-nothing transaction.
	var newChunks []models.DocumentChunk
	now := time.Now()
	for idx, content := range parts {
		if storedSeq[idx] || vectors[idx] == nil {
			continue
		}
		newChunks = append(newChunks, models.DocumentChunk{
			ID:            uuid.NewString(),
			DocumentID:    docID,
			SequenceIndex: idx,
			Content:       content,
			Checksum:      checksums[idx],
			TokenCount:    approxTokens(content),
			Embedding:     vectors[idx],
			CreatedAt:     now,
		})
	}

	failedSeq, insErr := i.db.InsertDocumentChunks(runCtx, newChunks)
	if insErr != nil {
		log.Printf("ingestor: document %s: %d chunk writes failed: %v", docID, len(failedSeq), insErr)
	}

	storedCount := len(storedSeq) + len(newChunks) - len(failedSeq)
	status := models.StatusPartiallyStored
	switch {
	case storedCount == len(parts):
		status = models.StatusStored
	case storedCount == 0:
		status = models.StatusFailed
	}

	if err := i.db.SetDocumentIngestResult(runCtx, docID, status, storedCount, textLength); err != nil {
		return err
	}
	if status == models.StatusFailed {
		return fmt.Errorf("document %s: no chunks could be embedded and stored", docID)
	}
	return nil
}

// fail records a terminal failure before any chunks exist.
func (i *DocumentIngestor) fail(ctx context.Context, docID string, cause error) error {
	if err := i.db.SetDocumentIngestResult(ctx, docID, models.StatusFailed, 0, 0); err != nil {
		log.Printf("ingestor: document %s: recording failure: %v", docID, err)
	}
	return cause
}
