package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/docvault/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docvault/internal/api/middlewares"
	"github.com/markdave123-py/docvault/internal/config"
	"github.com/markdave123-py/docvault/internal/logger"
	"github.com/markdave123-py/docvault/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, ingest *services.IngestService, docs *services.DocumentService) *Server {
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, handlers.NewDocumentHandler(ingest, docs)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: httpSrv}
}

// NewRouter mounts the routes. The ingestion and read routes require a bearer
// token when cfg.JWTSecret is set.
func NewRouter(cfg *config.Config, docHandler *handlers.DocumentHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Synchronous ingestion of a large document takes minutes.
	r.Use(middleware.Timeout(15 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// public endpoints
	r.Get("/", docHandler.Root)

	r.Group(func(protected chi.Router) {
		if cfg.JWTSecret != "" {
			protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		}
		protected.Post("/process_pdf", docHandler.ProcessPDF)
		protected.Post("/process_pdf/", docHandler.ProcessPDF)

		protected.Route("/api", func(api chi.Router) {
			api.Post("/documents/ingest", docHandler.Ingest)
			api.Get("/jobs/{id}", docHandler.GetJob)
			api.Get("/stats", docHandler.Stats)
			api.Get("/pages/{number}", docHandler.GetPage)
		})
	})

	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	logger.Info("Server: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("Server: shutting down")
	return s.httpServer.Shutdown(ctx)
}
