// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/health"
	middleware "github.com/mohammed-shakir/bikeshare-aggregator/internal/core/middleware"
	"github.com/mohammed-shakir/bikeshare-aggregator/internal/core/router"
)

type Deps struct {
	Service   router.Service
	Providers router.ProviderLookup
	// Ready gates /readyz; nil means always ready.
	Ready health.ReadinessReporter
	// Metrics is mounted on MetricsPath when set.
	Metrics     http.Handler
	MetricsPath string
}

func NewHandler(logger *slog.Logger, d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	ready := d.Ready
	if ready == nil {
		ready = health.AlwaysReady{}
	}
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(ready))
	if d.Metrics != nil {
		path := d.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, d.Metrics)
	}

	r.Get(router.RouteBikes, router.HandleBikes(logger, d.Service, d.Providers))
	r.Get(router.RouteCapacities, router.HandleCapacities(logger, d.Service))
	return r
}

// Run serves until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, addr string, logger *slog.Logger, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
