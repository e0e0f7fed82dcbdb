// Package server provides the HTTP server and routing for Keeper.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/jwchen/keeper/internal/config"
	"github.com/jwchen/keeper/internal/database"
	"github.com/jwchen/keeper/internal/modules/currency"
	"github.com/jwchen/keeper/internal/modules/portfolio"
	"github.com/jwchen/keeper/internal/modules/transactions"
	"github.com/jwchen/keeper/internal/scheduler"
)

// Config holds everything the server wires together.
type Config struct {
	Log      zerolog.Logger
	Cfg      *config.Config
	LedgerDB *database.DB
	CacheDB  *database.DB

	TransactionsHandler *transactions.Handler
	PortfolioHandler    *portfolio.Handler
	CurrencyHandler     *currency.Handler
	PriceRefreshJob     scheduler.Job
	Scheduler           *scheduler.Scheduler

	// Rate limiter usage surfaced on /api/system/status.
	SourceQuota SourceQuota
	SourceIDs   []string
}

// Server is the HTTP front of the service.
type Server struct {
	router *chi.Mux
	server *http.Server
	log    zerolog.Logger
	cfg    Config
}

// New creates the HTTP server and mounts all routes.
func New(cfg Config) *Server {
	s := &Server{
		router: chi.NewRouter(),
		log:    cfg.Log.With().Str("component", "server").Logger(),
		cfg:    cfg,
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	// Generous timeout: a cold price refresh walks rate limiters and retries.
	s.router.Use(middleware.Timeout(120 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	systemHandlers := NewSystemHandlers(s.log, s.cfg.Cfg.DataDir, s.cfg.LedgerDB, s.cfg.CacheDB, s.cfg.SourceQuota, s.cfg.SourceIDs)

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.TransactionsHandler != nil {
			s.cfg.TransactionsHandler.Routes(r)
		}
		if s.cfg.PortfolioHandler != nil {
			s.cfg.PortfolioHandler.Routes(r)
		}
		if s.cfg.CurrencyHandler != nil {
			s.cfg.CurrencyHandler.Routes(r)
		}

		r.Get("/system/status", systemHandlers.HandleSystemStatus)
		r.Get("/system/databases", systemHandlers.HandleDatabaseStats)
		r.Post("/jobs/price-refresh", s.handleTriggerPriceRefresh)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// handleTriggerPriceRefresh runs the scheduled refresh immediately.
func (s *Server) handleTriggerPriceRefresh(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Scheduler == nil || s.cfg.PriceRefreshJob == nil {
		http.Error(w, `{"error":"price refresh job not configured"}`, http.StatusServiceUnavailable)
		return
	}

	if err := s.cfg.Scheduler.RunNow(s.cfg.PriceRefreshJob); err != nil {
		s.log.Error().Err(err).Msg("Manual price refresh failed")
		http.Error(w, `{"error":"price refresh failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"completed"}`))
}

// Start starts the HTTP server. Blocks until shutdown or failure.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
