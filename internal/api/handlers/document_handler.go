package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/paralegalhq/casevault/internal/config"
	db "github.com/paralegalhq/casevault/internal/core/database"
	"github.com/paralegalhq/casevault/internal/core/ingest"
	objectclient "github.com/paralegalhq/casevault/internal/core/object-client"
	"github.com/paralegalhq/casevault/internal/models"
)

// staleIngestAfter is how long a document may sit in an in-progress status
// before a reingest request is allowed to reclaim it.
const staleIngestAfter = 10 * time.Minute

type DocumentHandler struct {
	dbclient     db.DbClient
	objectclient objectclient.ObjectClient
	ingestor     ingest.Ingestor
	cfg          *config.Config
}

func NewDocumentHandler(dbclient db.DbClient, objectclient objectclient.ObjectClient, ing ingest.Ingestor, cfg *config.Config) *DocumentHandler {
	return &DocumentHandler{dbclient: dbclient, objectclient: objectclient, ingestor: ing, cfg: cfg}
}

// ingestResponse is the upload/reingest reply: enough for the caller to poll
// ingestion progress.
type ingestResponse struct {
	DocumentID      string `json:"document_id"`
	IngestionStatus string `json:"ingestion_status"`
	ChunkCount      int    `json:"chunk_count"`
}

// UploadDocument stores the raw upload, records the document in state
// "uploaded", and hands it to the ingestion workers. The reply is immediate;
// ingestion progress is visible on the list and get endpoints.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		http.Error(w, "missing case id", http.StatusBadRequest)
		return
	}

	if err := r.ParseMultipartForm(52 << 20); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "invalid file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	// Strip any path components from the client-supplied name.
	cleanFilename := filepath.Base(header.Filename)
	docID := uuid.NewString()
	s3Key := fmt.Sprintf("cases/%s/%s/%s", caseID, docID, cleanFilename)

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	uploadCtx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	url, err := h.objectclient.UploadFile(uploadCtx, h.cfg.BucketName, s3Key, file, contentType)
	if err != nil {
		http.Error(w, fmt.Sprintf("upload failed: %v", err), http.StatusInternalServerError)
		return
	}

	doc := &models.Document{
		ID:          docID,
		CaseID:      caseID,
		FileName:    cleanFilename,
		ContentType: contentType,
		ByteSize:    header.Size,
		Status:      models.StatusUploaded,
		StorageURL:  url,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}

	if err := h.dbclient.CreateDocument(uploadCtx, doc); err != nil {
		log.Printf("document %s: metadata insert failed: %v", docID, err)
		// Don't leave the blob behind when the row never existed.
		_ = h.objectclient.DeleteFile(uploadCtx, h.cfg.BucketName, s3Key)
		http.Error(w, "failed to store document metadata", http.StatusInternalServerError)
		return
	}

	if err := h.ingestor.Enqueue(doc.ID); err != nil {
		log.Printf("document %s: enqueue failed: %v", doc.ID, err)
		// The upload is withdrawn entirely so the client can simply retry.
		_ = h.dbclient.DeleteDocument(uploadCtx, doc.ID)
		_ = h.objectclient.DeleteFile(uploadCtx, h.cfg.BucketName, s3Key)
		http.Error(w, "ingestion queue is full, retry later", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(ingestResponse{
		DocumentID:      doc.ID,
		IngestionStatus: doc.Status,
		ChunkCount:      doc.ChunkCount,
	})
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "caseID")
	if caseID == "" {
		http.Error(w, "missing case id", http.StatusBadRequest)
		return
	}

	documents, err := h.dbclient.ListDocumentsByCase(r.Context(), caseID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(documents)
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.loadDocument(w, r)
	if doc == nil || err != nil {
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(doc)
}

// ReingestDocument resumes a failed or partially stored ingestion. Chunks
// that already have stored embeddings are not recomputed.
func (h *DocumentHandler) ReingestDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.loadDocument(w, r)
	if doc == nil || err != nil {
		return
	}

	switch doc.Status {
	case models.StatusUploaded, models.StatusFailed, models.StatusPartiallyStored:
		// resumable
	case models.StatusStored:
		http.Error(w, "document already ingested", http.StatusConflict)
		return
	default:
		// A crashed run leaves its document mid-state forever. A stale
		// timestamp means no worker is actually touching it, so the
		// operator may force a resume.
		if time.Since(doc.UpdatedAt) < staleIngestAfter {
			http.Error(w, "ingestion already in progress", http.StatusConflict)
			return
		}
	}

	if err := h.ingestor.Enqueue(doc.ID); err != nil {
		http.Error(w, "ingestion queue is full, retry later", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(ingestResponse{
		DocumentID:      doc.ID,
		IngestionStatus: doc.Status,
		ChunkCount:      doc.ChunkCount,
	})
}

// DeleteDocument cancels any in-flight ingestion, removes the document and
// its chunks (cascade), and cleans up the stored blob.
func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.loadDocument(w, r)
	if doc == nil || err != nil {
		return
	}

	h.ingestor.Cancel(doc.ID)

	if err := h.dbclient.DeleteDocument(r.Context(), doc.ID); err != nil {
		http.Error(w, fmt.Sprintf("delete failed: %v", err), http.StatusInternalServerError)
		return
	}

	bucket, key := objectclient.ParseStorageURL(doc.StorageURL)
	if bucket == "" {
		bucket = h.cfg.BucketName
	}
	if key != "" {
		if err := h.objectclient.DeleteFile(r.Context(), bucket, key); err != nil {
			log.Printf("document %s: blob cleanup failed: %v", doc.ID, err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) loadDocument(w http.ResponseWriter, r *http.Request) (*models.Document, error) {
	docID := chi.URLParam(r, "documentID")
	if docID == "" {
		http.Error(w, "missing document id", http.StatusBadRequest)
		return nil, fmt.Errorf("missing document id")
	}

	doc, err := h.dbclient.GetDocumentByID(r.Context(), docID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return nil, err
	}
	if doc == nil {
		http.Error(w, "document not found", http.StatusNotFound)
		return nil, nil
	}
	return doc, nil
}
