// Package server exposes the engine's health, metrics and latest results over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/hefarica/ARBITRAGEXPLUS2025/memo"
	"github.com/hefarica/ARBITRAGEXPLUS2025/orchestrator"
	"github.com/hefarica/ARBITRAGEXPLUS2025/ranker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sugawarayuuta/sonnet"
)

const (
	defaultCycleLimit = 20
	maxCycleLimit     = 100
)

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Engine is the read-only view of the orchestrator the server needs.
type Engine interface {
	State() orchestrator.State
	LastResult() (orchestrator.CycleResult, bool)
	RecentCycles(limit int) []orchestrator.CycleSummary
	Weights() ranker.Weights
	CacheStats() memo.Stats
}

// Config holds the server's settings.
type Config struct {
	Addr     string
	Engine   Engine
	Gatherer prometheus.Gatherer
	Logger   Logger
}

func (c *Config) validate() error {
	if c.Addr == "" {
		return errors.New("config: Addr is required")
	}
	if c.Engine == nil {
		return errors.New("config: Engine is required")
	}
	if c.Gatherer == nil {
		return errors.New("config: Gatherer is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Server handles the ops HTTP API.
type Server struct {
	router *mux.Router
	engine Engine
	addr   string
	logger Logger
	now    func() time.Time
}

// New creates a server with all routes registered.
func New(cfg Config) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &Server{
		router: mux.NewRouter(),
		engine: cfg.Engine,
		addr:   cfg.Addr,
		logger: cfg.Logger,
		now:    time.Now,
	}
	s.setupRoutes(cfg.Gatherer)
	return s, nil
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/portfolio", s.handlePortfolio).Methods(http.MethodGet)
	api.HandleFunc("/routes", s.handleRoutes).Methods(http.MethodGet)
	api.HandleFunc("/cycles", s.handleCycles).Methods(http.MethodGet)
	api.HandleFunc("/cache", s.handleCache).Methods(http.MethodGet)
	api.HandleFunc("/weights", s.handleWeights).Methods(http.MethodGet)

	s.router.Use(s.loggingMiddleware)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting ops server", "addr", s.addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("Shutting down ops server")
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status        string    `json:"status"`
	State         string    `json:"state"`
	LastCycleAt   time.Time `json:"lastCycleAt,omitempty"`
	LastCycleAgeS float64   `json:"lastCycleAgeSeconds"`
	LastError     string    `json:"lastError,omitempty"`
}

// handleHealth reports OK while the orchestrator runs and its last cycle
// succeeded, DEGRADED after a failed cycle and 503 once stopped.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	state := s.engine.State()
	resp := healthResponse{Status: "OK", State: state.String()}

	if recent := s.engine.RecentCycles(1); len(recent) > 0 {
		last := recent[0]
		resp.LastCycleAt = last.StartedAt
		resp.LastCycleAgeS = s.now().Sub(last.StartedAt).Seconds()
		if last.Failed() {
			resp.Status = "DEGRADED"
			resp.LastError = last.Error
		}
	}

	code := http.StatusOK
	if state == orchestrator.Stopped {
		resp.Status = "STOPPED"
		code = http.StatusServiceUnavailable
	}
	s.writeJSONResponse(w, code, resp)
}

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	result, ok := s.engine.LastResult()
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"cycleId":   result.Summary.ID,
		"sequence":  result.Summary.Sequence,
		"startedAt": result.Summary.StartedAt,
		"portfolio": result.Portfolio,
	})
}

func (s *Server) handleRoutes(w http.ResponseWriter, r *http.Request) {
	result, ok := s.engine.LastResult()
	if !ok {
		s.writeErrorResponse(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	limit, err := parseLimit(r, len(result.Ranked))
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	s.writeJSONResponse(w, http.StatusOK, ranker.TopN(result.Ranked, limit))
}

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r, defaultCycleLimit)
	if err != nil {
		s.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	limit = min(limit, maxCycleLimit)
	cycles := s.engine.RecentCycles(limit)
	s.writeJSONResponse(w, http.StatusOK, map[string]any{
		"cycles": cycles,
		"count":  len(cycles),
	})
}

func (s *Server) handleCache(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.CacheStats())
}

func (s *Server) handleWeights(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, s.engine.Weights())
}

func parseLimit(r *http.Request, def int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, errors.New("limit must be a positive integer")
	}
	return limit, nil
}

// writeJSONResponse writes a JSON response
func (s *Server) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := sonnet.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

func (s *Server) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	s.writeJSONResponse(w, statusCode, map[string]string{"error": message})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		wrapped := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
