package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/config"
	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/metrics"
	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/store"
)

// Enqueuer accepts crawl requests for asynchronous execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, req crawler.Request) error
}

// LocationSource turns a city and state into crawl targets.
type LocationSource interface {
	Discover(ctx context.Context, city, state string) ([]crawler.Target, error)
}

// ProgressReader exposes run-keyed progress to handlers.
type ProgressReader interface {
	Ensure(runID string) progress.State
	Get(runID string) (progress.State, bool)
}

// ReportSource computes the analytics report.
type ReportSource interface {
	Report(ctx context.Context) (analytics.Report, error)
}

// Deps are the collaborators the handlers call. Nil members disable the
// routes that need them with 503 responses.
type Deps struct {
	Runner    crawler.Runner
	Queue     Enqueuer
	Runs      store.RunRepository
	Tracker   ProgressReader
	Analytics ReportSource
	// Locations maps a platform to its city/state target discovery.
	Locations map[crawler.Platform]LocationSource
	// BaseURLs resolves relative links found in uploaded listing pages.
	BaseURLs map[crawler.Platform]string
	IDs      crawler.IDGenerator
	Clock    crawler.Clock
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the crawl pipeline and stores.
type Server struct {
	router chi.Router
	deps   Deps
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger,
	}

	runs := NewRunHandler(deps.Runs, deps.Tracker, logger)
	socket := NewProgressSocket(deps.Tracker, cfg.Progress.Interval(), cfg.Progress.IdleTimeout(), logger)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/crawls", s.triggerCrawl)
		r.Get("/progress/ws", socket.ServeHTTP)
		r.Group(func(r chi.Router) {
			if timeout := cfg.Server.RequestTimeout(); timeout > 0 {
				r.Use(timeoutMiddleware(timeout))
			}
			r.Get("/stats", s.stats)
			r.Route("/runs", func(r chi.Router) {
				r.Get("/", runs.ListRuns)
				r.Route("/{run_id}", func(r chi.Router) {
					r.Get("/", runs.GetRun)
					r.Get("/progress", runs.GetProgress)
				})
			})
		})
	})

	s.router = r
	return s
}

// Handler returns the traced router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "reviewtrends.api")
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "crawl runner unavailable")
		return
	}
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "dependencies not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Analytics == nil {
		writeError(w, http.StatusServiceUnavailable, "analytics unavailable")
		return
	}
	report, err := s.deps.Analytics.Report(r.Context())
	if err != nil {
		s.logger.Error("stats report failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logger.Debug("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID(r.Context())),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered", zap.Any("panic", rec), zap.String("path", r.URL.Path))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, `{"error":"request timed out"}`)
	}
}

type requestIDKey struct{}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("encode response failed", zap.Error(fmt.Errorf("encode json: %w", err)))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
