package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-relay/internal/api"
	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/services"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report endpoint over gRPC",
	Long: `Serve mirador.relay.v1.IncidentRelay so CI jobs can share one relay process and
one dedup backend. Prometheus metrics are exposed on server.metricsAddress.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	logger.Info("starting mirador-relay", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return err
	}

	r, err := buildRelay(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	relayService := services.NewRelayService(logger, r.driver)
	server, err := api.NewServer(cfg.Server, relayService)
	if err != nil {
		return err
	}

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("relay serving", slog.String("address", server.Address()), slog.String("mode", r.gateway.Mode()))
		serveErr <- server.Start()
	}()

	var result error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		logger.Error("gRPC server exited", slog.Any("error", err))
		result = err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-relay stopped", slog.Duration("p95", relayService.LatencyP95()))
	return result
}
