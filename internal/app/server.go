package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/paralegalhq/casevault/internal/api/handlers"
	appMiddleware "github.com/paralegalhq/casevault/internal/api/middlewares"
	"github.com/paralegalhq/casevault/internal/config"
	db "github.com/paralegalhq/casevault/internal/core/database"
	"github.com/paralegalhq/casevault/internal/core/ingest"
	objectclient "github.com/paralegalhq/casevault/internal/core/object-client"
	"github.com/paralegalhq/casevault/internal/core/rag"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, dbc db.DbClient, obj objectclient.ObjectClient, ing ingest.Ingestor, retriever *rag.Retriever, answerer *rag.Answerer) *Server {
	docHandler := handlers.NewDocumentHandler(dbc, obj, ing, cfg)
	chatHandler := handlers.NewChatHandler(retriever, answerer, cfg.MaxContextChars)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware)

		api.Post("/cases/{caseID}/documents", docHandler.UploadDocument)
		api.Get("/cases/{caseID}/documents", docHandler.ListDocuments)
		api.Get("/documents/{documentID}", docHandler.GetDocument)
		api.Post("/documents/{documentID}/reingest", docHandler.ReingestDocument)
		api.Delete("/documents/{documentID}", docHandler.DeleteDocument)

		api.Post("/query", chatHandler.Query)
		api.Post("/chat", chatHandler.Chat)
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
		// No WriteTimeout: /api/chat holds the connection open while tokens
		// stream. Idle and read limits still apply.
		ReadTimeout: 5 * time.Minute,
		IdleTimeout: 2 * time.Minute,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Printf("HTTP server listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server error: %v", err)
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down HTTP server...")
	return s.httpServer.Shutdown(ctx)
}
