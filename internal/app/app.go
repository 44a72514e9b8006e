package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/config"
	"github.com/chatppc/chatppc/internal/core"
	db "github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/core/extract"
	"github.com/chatppc/chatppc/internal/core/ingest"
	"github.com/chatppc/chatppc/internal/core/llm"
	"github.com/chatppc/chatppc/internal/core/objectstore"
	"github.com/chatppc/chatppc/internal/services"
)

// App holds the wired application: storage, pipeline and HTTP server.
type App struct {
	DBClient db.DbClient
	Ingestor *ingest.Ingestor
	Server   *Server
	Logger   *zap.Logger
}

func NewApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.ValidateServer(); err != nil {
		return nil, err
	}

	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	dbClient, err := db.NewClient(appCtx, cfg)
	if err != nil {
		return nil, err
	}
	logger.Info("database initialized and ready")

	var objClient core.ObjectClient
	if cfg.ObjectStoreConfigured() {
		s3Client, err := objectstore.NewS3Client(appCtx, cfg)
		if err != nil {
			return nil, err
		}
		objClient = s3Client
		logger.Info("object store initialized", zap.String("bucket", cfg.BucketName))
	} else {
		logger.Info("object store not configured, upload archival disabled")
	}

	embedder, err := llm.NewGeminiEmbedder(appCtx, cfg.AIAPIKey, cfg.EmbedModel)
	if err != nil {
		return nil, fmt.Errorf("couldn't initialize the embedder: %w", err)
	}

	splitter := ingest.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)
	ingestor := ingest.NewIngestor(dbClient, embedder, splitter, logger)
	extractor := extract.NewDocconvExtractor(false)

	conversations := services.NewConversationService(dbClient, logger)
	admin := services.NewAdminService(dbClient, logger)

	server := NewServer(cfg, Deps{
		DB:            dbClient,
		Objects:       objClient,
		Embedder:      embedder,
		Extractor:     extractor,
		Ingestor:      ingestor,
		Conversations: conversations,
		Admin:         admin,
		Logger:        logger,
	})

	return &App{DBClient: dbClient, Ingestor: ingestor, Server: server, Logger: logger}, nil
}

func (a *App) Close() {
	if a.DBClient != nil {
		_ = a.DBClient.Close()
	}
}
