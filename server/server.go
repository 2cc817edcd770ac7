package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jianli1806/Autotok/logger"
	"github.com/jianli1806/Autotok/metrics"
)

const shutdownTimeout = 10 * time.Second

// NewRouter wires the handler, request logging and metrics into a chi router
func NewRouter(h *Handler, log *slog.Logger, met *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))

	r.Get("/healthz", h.Health)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		met.Handler().ServeHTTP(w, r)
	})
	r.Route("/videos", func(r chi.Router) {
		r.Post("/", h.CreateVideo)
		r.Get("/", h.ListVideos)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetVideo)
			r.Get("/events", h.StreamEvents)
			r.Get("/file", h.DownloadVideo)
		})
	})
	return r
}

// Serve listens on addr until ctx is cancelled, then drains connections
func Serve(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
