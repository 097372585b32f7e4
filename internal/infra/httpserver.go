package infra

import (
	"context"
	"net/http"
	"time"
)

// HTTPServer wraps http.Server with the lifecycle cmd/api needs: Start
// blocks on the listener, Shutdown drains in-flight requests. The write
// timeout from Config must stay generous enough for long-lived SSE streams.
type HTTPServer struct {
	server *http.Server
}

// NewHTTPServer builds the API server from the loaded configuration.
func NewHTTPServer(cfg *Config, handler http.Handler) *HTTPServer {
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
	}

	return &HTTPServer{server: srv}
}

// Start listens and serves until Shutdown or a listener error; it returns
// http.ErrServerClosed after a clean shutdown.
func (s *HTTPServer) Start() error {
	if s.server == nil {
		return nil
	}
	return s.server.ListenAndServe()
}

// Shutdown stops accepting connections and waits for in-flight requests up
// to the context deadline.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
