// Package server exposes the search service over HTTP.
//
// Routes:
//
//	GET /search          JSON results
//	GET /searchxml       Atom feed with OpenSearch paging
//	GET /full-text       untruncated text of one document
//	GET /index-info      document counts and languages per index
//	GET /opensearch.xml  OpenSearch description document
//	GET /stats           in-memory query statistics
//	GET /healthz         liveness
//	GET /metrics         Prometheus metrics
//
// Handlers detach from the request context: a search runs to completion even
// when the client goes away.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/mosaic/internal/app"
)

// NotFoundMessage is the title of the 404 response.
const NotFoundMessage = "This is MOSAIC search service. The requested resource could not be found."

// Server serves one App over HTTP.
type Server struct {
	app    *app.App
	logger *slog.Logger
	router chi.Router
}

// New builds the router for a.
func New(a *app.App) (*Server, error) {
	if a == nil {
		return nil, errors.New("app is required")
	}
	s := &Server{app: a, logger: a.Logger}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(jsonRecoverer(s.logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(s.app.Metrics.Middleware())

	r.Get("/search", s.handleSearch)
	r.Get("/searchxml", s.handleSearchXML)
	r.Get("/full-text", s.handleFullText)
	r.Get("/index-info", s.handleIndexInfo)
	r.Get("/opensearch.xml", s.handleOpenSearch)
	r.Get("/stats", s.handleStats)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.app.Metrics.Handler())

	r.NotFound(s.handleNotFound)
	r.MethodNotAllowed(s.handleNotFound)
	return r
}

// Run listens on the configured address until ctx is done, then shuts down
// gracefully within the configured timeout.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.app.Config
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout(),
		IdleTimeout:       cfg.IdleTimeout(),
		BaseContext:       func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server_started", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", srv.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("server_stopped")
	return nil
}

// jsonRecoverer turns a handler panic into a 500 error body.
func jsonRecoverer(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if rvr == http.ErrAbortHandler {
						panic(rvr)
					}
					logger.Error("panic_recovered",
						slog.String("path", r.URL.Path),
						slog.Any("panic", rvr))
					writeProblem(w, http.StatusInternalServerError, "Internal server error", fmt.Sprint(rvr))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// requestLogMiddleware writes one log line per request and echoes the
// request id in X-Request-ID.
func requestLogMiddleware(logger *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			logger.Info("http_request",
				slog.String("request_id", requestID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("query", r.URL.RawQuery),
				slog.Int("status", ww.Status()),
				slog.Duration("latency", time.Since(start)),
				slog.String("ip", r.RemoteAddr),
				slog.Int("response_bytes", ww.BytesWritten()))
		})
	}
}
