package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/webspider/internal/metrics"
	"github.com/JakeFAU/webspider/pkg/spider"
)

// RequestIDHeader carries the per-request ID on responses.
const RequestIDHeader = "X-Request-ID"

// StatusSource reports on a crawl. *spider.Run satisfies it.
type StatusSource interface {
	ID() string
	State() spider.State
	Stats() spider.Stats
}

// Server wires HTTP handlers to a crawl run.
type Server struct {
	router   chi.Router
	run      StatusSource
	cancel   context.CancelFunc
	gatherer prometheus.Gatherer
	logger   *zap.Logger
}

// Option customizes a Server.
type Option func(*Server)

// WithCancel enables POST /v1/crawl/cancel.
func WithCancel(cancel context.CancelFunc) Option {
	return func(s *Server) { s.cancel = cancel }
}

// WithMetrics records request metrics on collector and serves gatherer at /metrics.
func WithMetrics(collector *metrics.Collector, gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
		if collector != nil {
			s.router.Use(collector.Middleware)
		}
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(run StatusSource, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{run: run, logger: logger}
	r := chi.NewRouter()
	s.router = r
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	for _, opt := range opts {
		opt(s)
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1/crawl", func(r chi.Router) {
		r.Get("/", s.status)
		r.Post("/cancel", s.cancelRun)
	})
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

type statusResponse struct {
	RunID string       `json:"run_id"`
	State spider.State `json:"state"`
	Stats spider.Stats `json:"stats"`
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// readyz reports ready while the run can still make progress.
func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.run == nil {
		s.writeError(w, http.StatusServiceUnavailable, "no crawl attached")
		return
	}
	state := s.run.State()
	if state.Terminal() {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": state.String()})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	if s.run == nil {
		s.writeError(w, http.StatusNotFound, "no crawl attached")
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		RunID: s.run.ID(),
		State: s.run.State(),
		Stats: s.run.Stats(),
	})
}

func (s *Server) cancelRun(w http.ResponseWriter, _ *http.Request) {
	if s.run == nil || s.cancel == nil {
		s.writeError(w, http.StatusNotImplemented, "cancel not supported")
		return
	}
	s.cancel()
	s.logger.Info("crawl cancel requested", zap.String("run_id", s.run.ID()))
	s.writeJSON(w, http.StatusAccepted, map[string]string{"run_id": s.run.ID(), "status": "canceling"})
}

type requestIDKey struct{}

// RequestID returns the ID assigned to the request carried by ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set(RequestIDHeader, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.String("request_id", RequestID(r.Context())),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
