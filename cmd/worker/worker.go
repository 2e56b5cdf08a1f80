// Package worker implements the long-running queue consumer.
package worker

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/joshsymonds/advisor/internal/app"
	"github.com/joshsymonds/advisor/internal/database"
	"github.com/joshsymonds/advisor/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

// NewCommand creates the worker command.
func NewCommand(global *app.Options) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Consume queued jobs and serve Prometheus metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := app.Open(cmd.Context(), *global)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			if listen != "" {
				a.Config.Metrics.Listen = listen
			}
			return Run(cmd.Context(), a)
		},
	}

	cmd.Flags().StringVar(&listen, "metrics-listen", "", "Metrics listen address (overrides configuration)")
	return cmd
}

// Run consumes jobs until ctx is cancelled.
func Run(ctx context.Context, a *app.App) error {
	log := a.Logger

	requeue, err := a.Producer()
	if err != nil {
		return fmt.Errorf("creating requeue producer: %w", err)
	}
	defer func() { _ = requeue.Close() }()

	consumer, err := a.Consumer(requeue)
	if err != nil {
		return fmt.Errorf("creating consumer: %w", err)
	}
	if err := consumer.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := consumer.Stop(); err != nil {
			log.Error("Failed to stop consumer", "error", err)
		}
	}()

	srv := &http.Server{
		Addr:              a.Config.Metrics.Listen,
		Handler:           NewHandler(a.DB, log),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
	}

	log.Info("Shutting down worker")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// NewHandler serves /metrics and a /healthz check backed by the database.
func NewHandler(db *database.DB, log logger.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(r.Context()); err != nil {
			log.Warn("Health check failed", "error", err)
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
