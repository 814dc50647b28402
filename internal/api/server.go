package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/genre-analyzer/internal/analysis"
	"github.com/JakeFAU/genre-analyzer/internal/dispatcher"
	"github.com/JakeFAU/genre-analyzer/internal/metrics"
)

// CalculatePath is the analysis trigger route.
const CalculatePath = "/calculate-text-genre-probability"

const (
	maxBodyBytes      = 1 << 20
	readyTimeout      = 2 * time.Second
	defaultRetryAfter = 5 * time.Second
)

// Pinger reports whether a downstream dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the server's middleware.
type Options struct {
	RequestTimeout time.Duration
	RetryAfter     time.Duration
}

// Server wires HTTP handlers to the dispatcher and store.
type Server struct {
	router     chi.Router
	dispatcher *dispatcher.Dispatcher
	store      Pinger
	clock      analysis.Clock
	opts       Options
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	dispatch *dispatcher.Dispatcher,
	store Pinger,
	clock analysis.Clock,
	opts Options,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = defaultRetryAfter
	}
	s := &Server{
		dispatcher: dispatch,
		store:      store,
		clock:      clock,
		opts:       opts,
		logger:     logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(opts.RequestTimeout))

	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Post(CalculatePath, s.calculate)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.logger.Warn("readiness check failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type calculateRequest struct {
	AnalysisRequestID *int64 `json:"analysis_request_id"`
}

// calculate validates the trigger and hands it to the worker pool. It never waits for scoring.
func (s *Server) calculate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req calculateRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.AnalysisRequestID == nil || *req.AnalysisRequestID == 0 {
		writeError(w, http.StatusBadRequest, "missing analysis_request_id")
		return
	}
	id := *req.AnalysisRequestID
	if id < 0 {
		writeError(w, http.StatusBadRequest, "analysis_request_id must be positive")
		return
	}

	item := analysis.QueueItem{
		RequestID:  id,
		AcceptedAt: s.now(),
		TraceID:    RequestIDFromContext(r.Context()),
	}
	if err := s.dispatcher.Enqueue(r.Context(), item); err != nil {
		s.logger.Warn("analysis trigger rejected",
			zap.Int64("analysis_request_id", id),
			zap.Error(err),
		)
		if errors.Is(err, dispatcher.ErrQueueFull) || errors.Is(err, analysis.ErrQueueClosed) {
			w.Header().Set("Retry-After", strconv.Itoa(int(s.opts.RetryAfter.Seconds())))
			writeError(w, http.StatusServiceUnavailable, "analysis queue is full")
			return
		}
		writeError(w, http.StatusServiceUnavailable, "analysis trigger not accepted")
		return
	}

	s.logger.Info("analysis trigger accepted", zap.Int64("analysis_request_id", id))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) now() time.Time {
	if s.clock == nil {
		return time.Now().UTC()
	}
	return s.clock.Now()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload) //nolint:errcheck // client went away
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
