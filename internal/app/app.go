package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/paralegalhq/casevault/internal/config"
	db "github.com/paralegalhq/casevault/internal/core/database"
	"github.com/paralegalhq/casevault/internal/core/embed"
	"github.com/paralegalhq/casevault/internal/core/extract"
	"github.com/paralegalhq/casevault/internal/core/ingest"
	"github.com/paralegalhq/casevault/internal/core/llm"
	objectclient "github.com/paralegalhq/casevault/internal/core/object-client"
	"github.com/paralegalhq/casevault/internal/core/rag"
)

// App wires the process: every external client is constructed once here and
// injected, so tests can substitute fakes for any of them.
type App struct {
	DBClient     db.DbClient
	ObjectClient objectclient.ObjectClient
	Ingestor     ingest.Ingestor
	Server       *Server

	embedder *llm.GeminiEmbedder
	llm      *llm.GeminiLLM
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	bootCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewDatabaseClient(bootCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and ready.")

	objClient, err := objectclient.NewS3Client(bootCtx, cfg)
	if err != nil {
		return nil, err
	}
	log.Println("Object client initialized and ready.")

	geminiEmbedder, err := llm.NewGeminiEmbedder(bootCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	llmProvider, err := llm.NewGeminiLLM(bootCtx, cfg.AIAPIKey, cfg.GenModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the llm provider: %w", err)
	}

	retryEmbedder := embed.NewRetryEmbedder(geminiEmbedder, embed.Config{
		MaxAttempts:    cfg.EmbedMaxAttempts,
		Concurrency:    cfg.EmbedConcurrency,
		RequestsPerSec: cfg.EmbedRPS,
	})

	extractor := extract.NewDocconvExtractor(false)

	ingestor, err := ingest.NewDocumentIngestor(dbClient, objClient, cfg.BucketName, retryEmbedder, extractor, &ingest.IngestConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't configure the ingestor: %w", err)
	}
	ingestor.Start(ctx, cfg.IngestWorkers)

	retriever := rag.NewRetriever(dbClient, retryEmbedder, cfg.MatchThreshold, cfg.MatchCount)
	answerer := rag.NewAnswerer(llmProvider, cfg.MaxContextChars)

	server := NewServer(cfg, dbClient, objClient, ingestor, retriever, answerer)

	return &App{
		DBClient:     dbClient,
		ObjectClient: objClient,
		Ingestor:     ingestor,
		Server:       server,
		embedder:     geminiEmbedder,
		llm:          llmProvider,
	}, nil
}

func (a *App) Close() {
	if a.embedder != nil {
		_ = a.embedder.Close()
	}
	if a.llm != nil {
		_ = a.llm.Close()
	}
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
