package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/paralegalhq/casevault/internal/core/rag"
	"github.com/paralegalhq/casevault/internal/models"
)

type ChatHandler struct {
	retriever *rag.Retriever
	answerer  *rag.Answerer
	maxCtx    int
}

func NewChatHandler(retriever *rag.Retriever, answerer *rag.Answerer, maxContextChars int) *ChatHandler {
	return &ChatHandler{retriever: retriever, answerer: answerer, maxCtx: maxContextChars}
}

type queryRequest struct {
	QueryText      string   `json:"query_text"`
	CaseScopeID    *string  `json:"case_scope_id,omitempty"`
	MatchThreshold *float64 `json:"match_threshold,omitempty"`
	MatchCount     *int     `json:"match_count,omitempty"`
}

type queryMatch struct {
	ChunkID string  `json:"chunk_id"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type queryResponse struct {
	Matches []queryMatch `json:"matches"`
	Context string       `json:"context"`
}

// Query runs retrieval only: ranked matching chunks plus the assembled
// context, no generation.
func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.QueryText == "" {
		http.Error(w, "query_text is required", http.StatusBadRequest)
		return
	}

	opts := rag.Options{CaseID: req.CaseScopeID}
	if req.MatchThreshold != nil {
		opts.Threshold = *req.MatchThreshold
	}
	if req.MatchCount != nil {
		opts.Count = *req.MatchCount
	}

	matches, err := h.retriever.Retrieve(r.Context(), req.QueryText, opts)
	if err != nil {
		if errors.Is(err, rag.ErrQueryEmbedding) {
			http.Error(w, "embedding service unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}

	resp := queryResponse{
		Matches: make([]queryMatch, 0, len(matches)),
		Context: rag.AssembleContext(matches, h.maxCtx),
	}
	for _, m := range matches {
		resp.Matches = append(resp.Matches, queryMatch{
			ChunkID: m.Chunk.ID,
			Content: m.Chunk.Content,
			Score:   m.Score,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type chatRequest struct {
	History     []models.ChatMessage `json:"history"`
	NewMessage  string               `json:"new_message"`
	CaseScopeID *string              `json:"case_scope_id,omitempty"`
}

type tokenEvent struct {
	Token string `json:"token"`
}

// Chat streams a grounded answer as server-sent events: one data event per
// token, then the [DONE] marker, or a single error event.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if req.NewMessage == "" {
		http.Error(w, "new_message is required", http.StatusBadRequest)
		return
	}

	matches, err := h.retriever.Retrieve(r.Context(), req.NewMessage, rag.Options{CaseID: req.CaseScopeID})
	if err != nil {
		if errors.Is(err, rag.ErrQueryEmbedding) {
			http.Error(w, "embedding service unavailable", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, fmt.Sprintf("search failed: %v", err), http.StatusInternalServerError)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	for ev := range h.answerer.Answer(r.Context(), req.History, req.NewMessage, matches) {
		if ev.Err != nil {
			writeSSE(w, "error", fmt.Sprintf(`{"error":%q}`, ev.Err.Error()))
			flusher.Flush()
			return
		}
		payload, err := json.Marshal(tokenEvent{Token: ev.Token})
		if err != nil {
			continue
		}
		writeSSE(w, "", string(payload))
		flusher.Flush()

		// The client went away; the context cancel stops the upstream call.
		if r.Context().Err() != nil {
			return
		}
	}

	writeSSE(w, "", "[DONE]")
	flusher.Flush()
}

func writeSSE(w http.ResponseWriter, event, data string) {
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}
