// Package server provides the HTTP API of the video refinery: job submission
// and inspection, live event streams, pipeline health, and the queue push
// endpoint that feeds the worker.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jonathan/video-refinery/internal/bus"
	"github.com/jonathan/video-refinery/internal/dispatch"
	"github.com/jonathan/video-refinery/internal/pipeline"
	"github.com/jonathan/video-refinery/internal/server/middleware"
	"github.com/jonathan/video-refinery/internal/server/ratelimit"
	"github.com/jonathan/video-refinery/internal/store"
	"github.com/jonathan/video-refinery/internal/types"
)

// JobService submits and cancels jobs.
type JobService interface {
	Submit(ctx context.Context, req types.SubmitJobRequest) (*types.Job, error)
	Cancel(ctx context.Context, jobID string) (*types.Job, error)
}

// DeliveryHandler consumes one decoded queue delivery.
type DeliveryHandler interface {
	Handle(ctx context.Context, p dispatch.Payload, attempt pipeline.Attempt) error
}

// Deps are the collaborators the server routes to. Follower, Worker,
// PushAuth and RateLimiter are optional.
type Deps struct {
	Jobs        store.JobStore
	Events      store.EventLog
	Service     JobService
	Follower    bus.Follower
	Worker      DeliveryHandler
	PushAuth    *PushTokenService
	RateLimiter *ratelimit.Limiter
	MaxRetry    int
	Logger      *slog.Logger
}

// Config holds server configuration
type Config struct {
	Port int
	// PollInterval paces the event stream when no Follower is configured.
	PollInterval time.Duration
}

// Server represents the HTTP server
type Server struct {
	httpServer   *http.Server
	deps         Deps
	logger       *slog.Logger
	pollInterval time.Duration
}

// New creates a server. It does not start listening.
func New(cfg Config, deps Deps) (*Server, error) {
	if deps.Jobs == nil || deps.Events == nil || deps.Service == nil {
		return nil, errors.New("server requires a job store, an event log and a job service")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.MaxRetry <= 0 {
		deps.MaxRetry = dispatch.DefaultMaxRetry
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	s := &Server{deps: deps, logger: deps.Logger, pollInterval: cfg.PollInterval}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // event streams stay open until the job is terminal
		IdleTimeout:  60 * time.Second,
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /jobs", s.handleSubmitJob)
	mux.HandleFunc("GET /jobs", s.handleListJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleGetJob)
	mux.HandleFunc("DELETE /jobs/{id}", s.handleCancelJob)
	mux.HandleFunc("GET /jobs/{id}/events", s.handleListEvents)
	mux.HandleFunc("GET /jobs/{id}/stream", s.handleStreamEvents)

	mux.HandleFunc("GET /pipeline", s.handlePipeline)
	mux.HandleFunc("GET /pipeline/agents", s.handleAgents)
	mux.HandleFunc("GET /health", s.handleHealth)

	if s.deps.Worker != nil {
		var worker http.Handler = http.HandlerFunc(s.handleWorkerPush)
		if s.deps.PushAuth != nil {
			worker = middleware.PushAuth(s.deps.PushAuth)(worker)
		}
		mux.Handle("POST /worker", worker)
	}

	var h http.Handler = mux
	h = s.withCORS(h)
	h = s.withLogging(h)
	if s.deps.RateLimiter != nil {
		h = s.withRateLimit(h)
	}
	return h
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if s.deps.RateLimiter != nil {
		s.deps.RateLimiter.Stop()
	}
	s.logger.Info("server stopped")
	return nil
}

// withCORS adds CORS headers
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// withLogging adds request logging
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", rec.status),
			slog.Duration("duration", time.Since(start)))
	})
}

// withRateLimit rejects clients over their endpoint budget.
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, info := s.deps.RateLimiter.Allow(clientID(r), r.URL.Path, r.Method)
		if info.Limit > 0 {
			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", info.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", info.Remaining))
			w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", info.ResetTime.Unix()))
		}
		if !allowed {
			body := map[string]any{
				"error":    "rate_limit_exceeded",
				"message":  "Rate limit exceeded. Please try again later.",
				"limit":    info.Limit,
				"reset_at": info.ResetTime.Format(time.RFC3339),
			}
			if info.RetryAfter > 0 {
				secs := int(info.RetryAfter.Seconds())
				body["retry_after"] = secs
				w.Header().Set("Retry-After", fmt.Sprintf("%d", secs))
			}
			s.jsonResponse(w, http.StatusTooManyRequests, body)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientID identifies the caller by remote IP.
func clientID(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// jsonResponse writes a JSON response
func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// errorResponse writes an error JSON response
func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.jsonResponse(w, status, map[string]string{"error": message})
}

// errorFrom maps err onto a status and a one-line message.
func (s *Server) errorFrom(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.Any("error", err))
	}
	s.errorResponse(w, status, types.Humanize(err))
}
