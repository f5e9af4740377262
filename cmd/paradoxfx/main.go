// Command paradoxfx is the process entry point for the zone runtime: it
// loads the INI configuration, dials the transport and per-zone player
// sockets, wires each zone's channels into a ZoneStateMachine, and runs
// the router and supervisor tree until a shutdown signal arrives.
//
// Startup order: load config, initialize logging, build the supervisor
// tree, add services, start it in the background, and wait on either the
// supervisor's error channel or a signal-derived context cancellation.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/MStylesMS/ParadoxFX-sub001/internal/config"
	"github.com/MStylesMS/ParadoxFX-sub001/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "pfx.ini", "path to the INI configuration file")
	pflag.Parse()
	if args := pflag.Args(); configPath == "pfx.ini" && len(args) > 0 {
		configPath = args[0]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		startupLogger := logging.ForComponent("startup")
		startupLogger.Fatal().Err(err).Str("path", configPath).Msg("failed to load configuration")
	}

	logging.Init(logging.Config{Level: cfg.Global.LogLevel, Format: "console", Output: os.Stderr})
	logger := logging.ForComponent("startup")
	logger.Info().Str("config", configPath).Int("zones", len(cfg.Zones)).Msg("paradoxfx starting")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		logger.Info().Str("signal", s.String()).Msg("shutdown signal received")
		cancel()
	}()

	app, err := newApp(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("failed to construct runtime")
		return 1
	}
	defer app.close(context.Background())

	metricsServer := startMetricsServer(logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer shutdownCancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	errCh := app.tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logger.Info().Msg("context canceled, waiting for supervisor tree to drain")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("supervisor tree exited with error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("supervisor shutdown error")
		}
	}

	if unstopped, reportErr := app.tree.UnstoppedServiceReport(); reportErr == nil && len(unstopped) > 0 {
		logger.Warn().Int("count", len(unstopped)).Msg("services failed to stop within the shutdown timeout")
		for _, svc := range unstopped {
			logger.Warn().Str("service", svc.Name).Msg("service failed to stop")
		}
		return 1
	}

	logger.Info().Msg("paradoxfx stopped")
	return 0
}

// startMetricsServer exposes the Prometheus registry populated by
// internal/metrics on a fixed local port; operators scrape it the way
// any other component in this stack is scraped.
func startMetricsServer(logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: ":9090", Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn().Err(err).Msg("metrics server stopped")
		}
	}()
	return srv
}
