package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"movielib/internal/api"
	"movielib/internal/config"
	"movielib/internal/media"
	"movielib/internal/storage"
)

type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	httpServer *http.Server
	router     *chi.Mux
	handler    *api.Handler
}

func New(cfg *config.Config, logger zerolog.Logger, store *storage.SQLiteStorage, scanner *media.Scanner, enricher *media.Enricher) *Server {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		handler: api.NewHandler(store, scanner, enricher, logger, cfg.Library.DefaultVideoPath),
	}

	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	// A zero WriteTimeout keeps long streams open
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(CORSMiddleware)
	s.router.Use(LoggingMiddleware(s.logger))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/health-check", s.handler.HealthCheck)

		r.Route("/videos", func(r chi.Router) {
			r.Get("/", s.handler.ListVideos)
			r.Post("/", s.handler.CreateVideo)
			r.Get("/{id}", s.handler.GetVideo)
			r.Put("/{id}", s.handler.UpdateVideo)
			r.Delete("/{id}", s.handler.DeleteVideo)
		})

		r.Get("/stream/{id}", s.handler.StreamVideo)

		// Server-sent event streams
		r.Post("/scan", s.handler.Scan)
		r.Get("/scan", s.handler.Scan)
		r.Get("/getOMDBData", s.handler.FetchOMDBData)

		r.Get("/app-settings", s.handler.GetSettings)
		r.Put("/app-settings", s.handler.UpdateSettings)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
