package monitor

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"movielib/internal/config"
	"movielib/internal/server"
	"movielib/internal/supervisor"
)

type Server struct {
	cfg        *config.MonitorConfig
	logger     zerolog.Logger
	sup        *supervisor.Supervisor
	metrics    MetricsSource
	handler    *Handler
	router     *chi.Mux
	httpServer *http.Server
	cron       *cron.Cron
}

func NewServer(cfg *config.MonitorConfig, sup *supervisor.Supervisor, metrics MetricsSource, logger zerolog.Logger) (*Server, error) {
	s := &Server{
		cfg:     cfg,
		logger:  logger,
		sup:     sup,
		metrics: metrics,
		handler: NewHandler(sup, metrics, cfg.MetricsInterval, cfg.StopTimeout, logger),
		router:  chi.NewRouter(),
		cron:    cron.New(cron.WithSeconds()),
	}

	s.router.Use(server.CORSMiddleware)
	s.router.Use(server.LoggingMiddleware(logger))
	s.setupRoutes()

	if cfg.HealthCheckSchedule != "" {
		if _, err := s.cron.AddFunc(cfg.HealthCheckSchedule, s.healthCheck); err != nil {
			return nil, fmt.Errorf("health check schedule %q: %w", cfg.HealthCheckSchedule, err)
		}
	}

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: s.router,
	}

	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Get("/status", s.handler.Status)

	s.router.Route("/processes", func(r chi.Router) {
		r.Post("/stop", s.handler.StopAll)
		r.Post("/{name}/start", s.handler.StartProcess)
		r.Post("/{name}/stop", s.handler.StopProcess)
	})

	s.router.Get("/logs", s.handler.GetLogs)
	s.router.Post("/logs/clear", s.handler.ClearLogs)

	s.router.Get("/metrics", s.handler.Metrics)
	s.router.Get("/metrics/ws", s.handler.MetricsSocket)
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// healthCheck restarts crashed processes and logs a host summary.
func (s *Server) healthCheck() {
	restarted := s.sup.Reconcile()
	if len(restarted) > 0 {
		s.logger.Warn().Strs("processes", restarted).Msg("restarted exited processes")
	}

	running := 0
	for _, st := range s.sup.Statuses() {
		if st.Running {
			running++
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	snap, err := s.metrics.Collect(ctx)
	if err != nil {
		s.logger.Debug().Err(err).Msg("some host metrics unavailable")
	}

	s.logger.Info().
		Int("running", running).
		Str("host", snap.String()).
		Msg("health check")
}

func (s *Server) Start() error {
	s.cron.Start()

	s.logger.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting monitor")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

// Shutdown stops the scheduler and the HTTP server. Supervised processes
// are left to the caller.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("shutting down monitor")

	<-s.cron.Stop().Done()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
