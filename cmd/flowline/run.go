package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/randalmurphal/flowline/pkg/flowline/config"
	"github.com/randalmurphal/flowline/pkg/flowline/engine"
	"github.com/randalmurphal/flowline/pkg/flowline/observability"
	"github.com/randalmurphal/flowline/pkg/flowline/statestore"
)

const shutdownTimeout = 10 * time.Second

type runOptions struct {
	path        string
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipelines in a definition until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, err := config.LoadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("metrics-addr") {
				settings.MetricsAddr = opts.metricsAddr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts.path, settings, newLogger(cmd.ErrOrStderr(), settings))
		},
	}
	cmd.Flags().StringVarP(&opts.path, "config", "c", "", "pipeline definition file (.yaml, .yml or .json)")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "address to serve /metrics on, empty to disable (overrides FLOWLINE_METRICS_ADDR)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newLogger(w io.Writer, s config.Settings) *slog.Logger {
	opts := &slog.HandlerOptions{Level: s.Level()}
	if s.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// run builds and starts every pipeline, serves metrics, and blocks until
// ctx ends.
func run(ctx context.Context, path string, settings config.Settings, logger *slog.Logger) error {
	def, err := config.LoadDefinition(path)
	if err != nil {
		return err
	}

	store, err := statestore.Open(settings.StateStore)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	if store != nil {
		defer store.Close()
	}

	eng := engine.New(
		engine.WithSettings(settings),
		engine.WithLogger(logger),
		engine.WithStateStore(store),
		engine.WithMetrics(observability.NewMetricsRecorder()),
	)
	if err := eng.Build(def); err != nil {
		return err
	}
	if err := eng.Initialise(ctx); err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := eng.Dispose(dctx); err != nil {
			logger.Error("dispose failed", slog.String("error", err.Error()))
		}
	}()

	if settings.MetricsAddr != "" {
		srv := metricsServer(settings.MetricsAddr, eng)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(sctx)
		}()
		logger.Info("serving metrics", slog.String("addr", settings.MetricsAddr))
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func metricsServer(addr string, stats observability.StatsSource) *http.Server {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		observability.NewStatsCollector(stats),
	)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
}
