// Package http serves health checks and Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"songbird/internal/core"
)

const (
	shutdownTimeout  = 10 * time.Second
	readinessTimeout = 2 * time.Second
)

// ReadinessChecker reports whether a dependency can serve requests.
type ReadinessChecker interface {
	Ping(ctx context.Context) error
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

// NewServer builds the server. ready may be nil, in which case /readyz
// always succeeds.
func NewServer(config *core.ServerConfig, metrics *Metrics, ready ReadinessChecker, logger *zap.Logger) *Server {
	logger = logger.Named("http")
	mux := setupRoutes(metrics, ready, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, mux),
		metrics: metrics,
	}
}

func createHTTPServer(config *core.ServerConfig, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:           handler,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadTimeout,
		WriteTimeout:      config.WriteTimeout,
	}
}

func setupRoutes(metrics *Metrics, ready ReadinessChecker, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, `{"status":"ok","service":"songbird"}`, logger)
	})

	mux.HandleFunc("/readyz", readyHandler(ready, logger))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

func readyHandler(ready ReadinessChecker, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ready != nil {
			ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
			defer cancel()

			if err := ready.Ping(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.Error(err))
				writeJSON(w, http.StatusServiceUnavailable, `{"status":"unavailable","service":"songbird"}`, logger)
				return
			}
		}
		writeJSON(w, http.StatusOK, `{"status":"ready","service":"songbird"}`, logger)
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(homePage)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body string, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write([]byte(body)); err != nil {
		logger.Debug("Failed to write response", zap.Error(err))
	}
}

const homePage = `<!DOCTYPE html>
<html>
<head>
    <title>Songbird</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎵 Songbird</h1>
    <p>Turns links, song names and voice messages into playable songs.</p>

    <h2>Endpoints</h2>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check (database)</div>
</body>
</html>`

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}
