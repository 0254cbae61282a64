package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"rollout/internal/deployment"
	"rollout/internal/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout   = 30 * time.Second
	HTTPIdleTimeout   = 60 * time.Second
	ShutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeoutPad   = 30 * time.Second
)

// Server receives signed deploy requests and runs them.
type Server struct {
	Verifier *webhook.Verifier
	Executor deployment.Executor
	Logger   *slog.Logger

	// RateLimit is the number of requests allowed per minute per client IP.
	// Zero disables rate limiting.
	RateLimit int

	// TrustProxy makes the server take the client IP from X-Forwarded-For
	// or X-Real-IP. Enable it only behind a proxy that sets those headers,
	// otherwise clients can pick their own rate limit bucket.
	TrustProxy bool

	// CommandTimeout is the executor's timeout, used to size the write
	// timeout. Zero means commands are unbounded.
	CommandTimeout time.Duration

	mu         sync.Mutex
	httpServer *http.Server
}

// NewServer creates a new server instance
func NewServer(verifier *webhook.Verifier, executor deployment.Executor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		Verifier: verifier,
		Executor: executor,
		Logger:   logger,
	}
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	if s.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	if s.RateLimit > 0 {
		r.Use(NewRateLimitMiddleware(s.RateLimit, s.Logger))
	}

	// Routes
	r.Get("/health", s.HandleHealth)
	r.Post("/", s.HandleDeploy)
	r.Post("/*", s.HandleDeploy)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.Logger.Info("http_request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()))
		}()

		next.ServeHTTP(ww, r)
	})
}

// WriteTimeout returns the HTTP write timeout for the configured command
// timeout. A deploy response is written only after the command finishes, so
// the write timeout must outlast it.
func (s *Server) WriteTimeout() time.Duration {
	if s.CommandTimeout <= 0 {
		return 0
	}
	return s.CommandTimeout + writeTimeoutPad
}

// Start listens on host:port and serves until Shutdown is called.
// It returns nil after a graceful shutdown.
func (s *Server) Start(host string, port int) error {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadTimeout:       HTTPReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      s.WriteTimeout(),
		IdleTimeout:       HTTPIdleTimeout,
	}

	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()

	s.Logger.Info("Starting server", "addr", addr, "modes", s.Verifier.Modes())

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight deploys
// until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
