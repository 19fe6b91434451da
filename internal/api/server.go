package api

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/FairForge/failsafe/internal/config"
	"github.com/FairForge/failsafe/internal/drtest"
	"github.com/FairForge/failsafe/internal/failover"
	"github.com/FairForge/failsafe/internal/notify"
	"github.com/FairForge/failsafe/internal/status"
)

// Server exposes the controller's operations over HTTP.
type Server struct {
	config     *config.Config
	logger     *zap.Logger
	router     *mux.Router
	httpServer *http.Server

	loop       *failover.MonitorLoop
	runner     *drtest.Runner
	store      status.Store
	attempts   failover.AttemptLog
	dispatcher *notify.Dispatcher

	requestCount int64
	startTime    time.Time
}

// NewServer wires the HTTP surface over the controller components.
func NewServer(
	cfg *config.Config,
	logger *zap.Logger,
	loop *failover.MonitorLoop,
	runner *drtest.Runner,
	store status.Store,
	attempts failover.AttemptLog,
	dispatcher *notify.Dispatcher,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:     cfg,
		logger:     logger,
		router:     mux.NewRouter(),
		loop:       loop,
		runner:     runner,
		store:      store,
		attempts:   attempts,
		dispatcher: dispatcher,
		startTime:  time.Now(),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(
		failover.NewMetrics().Registry(),
		promhttp.HandlerOpts{},
	)).Methods("GET")

	s.router.HandleFunc("/api/v1/monitor/start", s.handleStartMonitoring).Methods("POST")
	s.router.HandleFunc("/api/v1/monitor/stop", s.handleStopMonitoring).Methods("POST")
	s.router.HandleFunc("/api/v1/failover", s.handleTriggerFailover).Methods("POST")
	s.router.HandleFunc("/api/v1/dr-test", s.handleRunDRTest).Methods("POST")
	s.router.HandleFunc("/api/v1/status", s.handleGetStatus).Methods("GET")
	s.router.HandleFunc("/api/v1/attempts", s.handleGetAttempts).Methods("GET")

	s.router.Use(s.loggingMiddleware)
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&s.requestCount, 1)
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

func (s *Server) Start() error {
	s.logger.Info("starting server", zap.Int("port", s.config.Server.Port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
