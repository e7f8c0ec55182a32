package workers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

// HTTPServer serves the REST API and the websocket endpoint until the
// context is canceled, then drains in-flight requests.
type HTTPServer struct {
	server          *http.Server
	log             *slog.Logger
	shutdownTimeout time.Duration
}

func NewHTTPServer(address string, handler http.Handler, log *slog.Logger, shutdownTimeout time.Duration) *HTTPServer {
	return &HTTPServer{
		server: &http.Server{
			Addr:              address,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log:             log,
		shutdownTimeout: shutdownTimeout,
	}
}

// RegisterOnShutdown runs f when the server starts shutting down.
// Hijacked websocket connections are not tracked by Shutdown, so they rely on it.
func (w *HTTPServer) RegisterOnShutdown(f func()) {
	w.server.RegisterOnShutdown(f)
}

func (w *HTTPServer) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		w.log.Info("Starting HTTP server", "address", w.server.Addr, "at", time.Now().UTC())
		if err := w.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err, ok := <-errChan:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	w.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
	defer cancel()
	if err := w.server.Shutdown(shutdownCtx); err != nil {
		w.log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	return nil
}
