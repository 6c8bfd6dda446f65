// Package api serves the dataset, factor catalog and backtest runs over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/factor-backtest/internal/backtest"
	"github.com/yourusername/factor-backtest/internal/config"
	"github.com/yourusername/factor-backtest/internal/datacache"
	"github.com/yourusername/factor-backtest/internal/health"
	"github.com/yourusername/factor-backtest/internal/logger"
	"github.com/yourusername/factor-backtest/internal/metrics"
	"github.com/yourusername/factor-backtest/internal/repository"
)

// Config holds server dependencies
type Config struct {
	Cache   *datacache.Cache
	Repo    repository.BacktestResultRepository
	Health  *health.Server
	Logger  *logrus.Logger
	Server  config.ServerConfig
	Metrics config.MetricsConfig
}

// Server represents the HTTP server
type Server struct {
	router     *chi.Mux
	httpServer *http.Server
	cache      *datacache.Cache
	repo       repository.BacktestResultRepository
	store      *RunStore
	hub        *Hub
	health     *health.Server
	logger     *logrus.Logger
	log        *logger.APILogger
	cfg        config.ServerConfig
}

// New creates a new HTTP server over a loaded cache. Repo and Health are
// optional.
func New(cfg Config) (*Server, error) {
	if cfg.Cache == nil {
		return nil, fmt.Errorf("data cache is required")
	}
	base := logger.OrDefault(cfg.Logger)
	apiLog := logger.NewAPILogger(base)

	s := &Server{
		router: chi.NewRouter(),
		cache:  cfg.Cache,
		repo:   cfg.Repo,
		store:  NewRunStore(cfg.Server.RunTTL()),
		hub:    NewHub(apiLog, cfg.Server.AllowedOrigins),
		health: cfg.Health,
		logger: base,
		log:    apiLog,
		cfg:    cfg.Server,
	}
	if s.health == nil {
		s.health = health.NewServer(health.Config{ServiceName: "factor-backtest", Logger: base})
	}
	s.health.AddCheck("data_cache", func(ctx context.Context) error {
		if s.cache.Len() == 0 {
			return fmt.Errorf("no trading days loaded")
		}
		return nil
	})

	s.setupMiddleware()
	s.setupRoutes(cfg.Metrics)

	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.RequestTimeout() + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Recoverer)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(metricsCfg config.MetricsConfig) {
	s.health.Mount(s.router)
	if metricsCfg.Enabled {
		path := metricsCfg.Path
		if path == "" {
			path = "/metrics"
		}
		s.router.Handle(path, metrics.Handler())
	}

	// long-lived, so outside the request timeout
	s.router.Get("/ws", s.hub.ServeWS)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(s.cfg.RequestTimeout()))

		r.Get("/trading-dates", s.handleTradingDates)
		r.Get("/daily-data", s.handleDailyData)
		r.Get("/factors", s.handleFactors)
		r.Get("/field-info", s.handleFieldInfo)
		r.Get("/market-overview", s.handleMarketOverview)
		r.Get("/distribution-data", s.handleDistributionData)
		r.Get("/ranking-data", s.handleRankingData)

		r.Route("/backtest", func(r chi.Router) {
			r.Post("/", s.handleRunBacktest)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetRun)
				r.Get("/trades", s.handleGetTrades)
				r.Get("/daily", s.handleGetDaily)
				r.Get("/portfolio", s.handleGetPortfolio)
			})
		})

		r.Get("/sweep/latest", s.handleLatestSweep)

		r.Route("/results", func(r chi.Router) {
			r.Get("/", s.handleListResults)
			r.Get("/{id}", s.handleGetResult)
		})
	})
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Store returns the run store.
func (s *Server) Store() *RunStore {
	return s.store
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.log.WithField("address", s.cfg.Address).Info("Starting HTTP server")
	s.health.SetReady(true)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")
	s.health.SetReady(false)
	s.hub.Close()
	return s.httpServer.Shutdown(ctx)
}

// PublishSweep stores a finished sweep and notifies websocket clients.
func (s *Server) PublishSweep(result *backtest.SweepResult) {
	s.store.PutSweep(result)
	s.hub.Broadcast(Event{Type: EventSweepCompleted, Data: result.Stats()})
}

// loggingMiddleware logs HTTP requests and records request metrics
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		duration := time.Since(start)
		metrics.RecordAPIRequest(route, strconv.Itoa(status), duration.Seconds())
		s.log.LogRequest(r.Method, r.URL.Path, route, status, ww.BytesWritten(), duration,
			middleware.GetReqID(r.Context()))
	})
}
