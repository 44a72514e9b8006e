package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/chatppc/chatppc/internal/api/handlers"
	appMiddleware "github.com/chatppc/chatppc/internal/api/middlewares"
	"github.com/chatppc/chatppc/internal/config"
	"github.com/chatppc/chatppc/internal/core"
	db "github.com/chatppc/chatppc/internal/core/database"
	"github.com/chatppc/chatppc/internal/core/ingest"
	"github.com/chatppc/chatppc/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	logger     *zap.Logger
}

// Deps carries everything the route tree needs. Objects may be nil.
type Deps struct {
	DB            db.DbClient
	Objects       core.ObjectClient
	Embedder      core.EmbeddingProvider
	Extractor     core.DocumentExtractor
	Ingestor      *ingest.Ingestor
	Conversations *services.ConversationService
	Admin         *services.AdminService
	Logger        *zap.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, deps Deps) *Server {
	chatHandler := handlers.NewChatHandler(deps.Conversations)
	retrievalHandler := handlers.NewRetrievalHandler(deps.DB, deps.Embedder)
	convHandler := handlers.NewAdminConversationHandler(deps.Admin)
	docHandler := handlers.NewAdminDocumentHandler(deps.Admin, deps.Ingestor, deps.Extractor, deps.Objects, deps.Logger)
	linkHandler := handlers.NewAdminLinkHandler(deps.Admin)
	statsHandler := handlers.NewAdminStatsHandler(deps.Admin)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Group(func(public chi.Router) {
			public.Use(appMiddleware.EnsureUserID)
			public.Post("/chat/store", chatHandler.StoreMessages)
			public.Get("/chat/history", chatHandler.History)
			public.Get("/chat/sessions", chatHandler.Sessions)
			public.Delete("/chat/sessions", chatHandler.DeleteSessions)
			public.Post("/chat/link-clicks", chatHandler.RecordLinkClick)
			public.Post("/retrieval/query", retrievalHandler.Query)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(appMiddleware.AdminAuth(cfg.JWTSecret))
			admin.Get("/conversations", convHandler.List)
			admin.Get("/conversations/{id}", convHandler.Get)
			admin.Delete("/conversations/{id}", convHandler.Delete)
			admin.Get("/documents", docHandler.List)
			admin.Get("/documents/sources", docHandler.Sources)
			admin.Get("/documents/id/{id}", docHandler.GetChunk)
			admin.Get("/documents/{source}", docHandler.Get)
			admin.Delete("/documents", docHandler.Delete)
			admin.Post("/documents/upload", docHandler.Upload)
			admin.Get("/link-clicks", linkHandler.Stats)
			admin.Get("/stats", statsHandler.Get)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv, logger: deps.Logger}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
