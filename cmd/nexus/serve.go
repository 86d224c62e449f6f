package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/loykin/nexus/internal/config"
	"github.com/loykin/nexus/internal/metrics"
	"github.com/loykin/nexus/internal/server"
	nexustls "github.com/loykin/nexus/internal/tls"
)

const shutdownTimeout = 5 * time.Second

// createServeCommand creates the serve subcommand
func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the nexus daemon (HTTP API, metrics, tick driver)",
		Long: `Run the kernel as a daemon. The HTTP API is served on [server].listen,
Prometheus metrics on [server].metrics_listen when set, and the scheduler
ticks on [kernel].tick_schedule.

Examples:
  nexus serve
  nexus serve --config=nexus.toml
  NEXUS_SERVER_LISTEN=:9000 nexus serve`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, cfg.Log.Logger().NewSlogger())
		},
	}
}

// runServe blocks until ctx is done, then shuts every listener down.
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	k, err := bootKernel(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := k.Close(sctx); err != nil {
			log.Warn("kernel close", slog.Any("error", err))
		}
	}()

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		log.Warn("failed to register metrics", slog.Any("error", err))
	}
	var metricsSrv *http.Server
	if cfg.Server.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsSrv = &http.Server{Addr: cfg.Server.MetricsListen, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server error", slog.Any("error", err))
			}
		}()
	}

	tlsCfg, err := nexustls.Setup(cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}
	opts := []server.Option{
		server.WithLogger(log),
		server.WithRequireAuth(cfg.Server.RequireAuth),
	}
	protocol := "HTTP"
	if tlsCfg != nil {
		protocol = "HTTPS"
		opts = append(opts, server.WithTLS(tlsCfg))
	}
	srv, err := server.NewServer(cfg.Server.Listen, cfg.Server.BasePath, k, opts...)
	if err != nil {
		return fmt.Errorf("failed to create %s server: %w", protocol, err)
	}
	log.Info("server started", slog.String("protocol", protocol),
		slog.String("listen", cfg.Server.Listen), slog.String("base_path", cfg.Server.BasePath))

	tickDone := make(chan struct{})
	go func() {
		defer close(tickDone)
		if cfg.Kernel.TickSchedule == "" {
			return
		}
		if err := k.RunTicker(ctx); err != nil {
			log.Error("tick driver", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err = srv.Shutdown(sctx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(sctx)
	}
	<-tickDone
	return err
}
