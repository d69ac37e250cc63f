// Command leaderboard-server scores forecast submissions over HTTP and
// serves the leaderboard.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/ahrav/go-leaderboard/infrastructure/groundtruth"
	"github.com/ahrav/go-leaderboard/infrastructure/httpapi"
	"github.com/ahrav/go-leaderboard/infrastructure/middleware"
	"github.com/ahrav/go-leaderboard/infrastructure/store"
	"github.com/ahrav/go-leaderboard/internal/application"
	"github.com/ahrav/go-leaderboard/internal/ports"
)

const defaultConfigPath = "configs/leaderboard.yaml"

func main() {
	configPath := flag.String("config", "", "Path to the YAML configuration (default $"+application.EnvConfigPath+" or "+defaultConfigPath+")")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, resolveConfigPath(*configPath)); err != nil {
		slog.Error("leaderboard server stopped", "err", err)
		os.Exit(1)
	}
}

func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if env := os.Getenv(application.EnvConfigPath); env != "" {
		return env
	}
	return defaultConfigPath
}

func run(ctx context.Context, configPath string) error {
	cfg, err := application.LoadConfig(configPath)
	if err != nil {
		return err
	}

	logger := application.NewLogger(cfg.Logging, os.Stdout)
	slog.SetDefault(logger)
	logger.Info("starting leaderboard server", "config", configPath, "addr", cfg.Server.Addr)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := middleware.NewPrometheusMetrics(registry)

	backend, closer, err := store.Open(store.BackendConfig{
		Backend:             cfg.Store.Backend,
		Path:                cfg.Store.Path,
		Key:                 cfg.Store.Key,
		MaxConflictAttempts: cfg.Store.MaxConflictAttempts,
	}, logger)
	if err != nil {
		return fmt.Errorf("open leaderboard store: %w", err)
	}
	defer closer.Close()

	var leaderboard ports.LeaderboardStore = store.NewRetryingStore(backend, store.RetryConfig{
		MaxRetries:    cfg.Retry.MaxRetries,
		BaseDelay:     cfg.Retry.InitialWait(),
		MaxDelay:      cfg.Retry.MaxWait(),
		JitterPercent: store.DefaultJitterPercent,
	}, metrics, logger)
	if cfg.CircuitBreaker.MaxFailures > 0 {
		leaderboard = store.NewCircuitBreakerStore(leaderboard, cfg.CircuitBreaker.MaxFailures, cfg.CircuitBreaker.Cooldown(), metrics, logger)
	}

	source := groundtruth.NewCSVSource(groundtruth.Options{
		Path:              cfg.GroundTruth.Path,
		DayColumn:         cfg.GroundTruth.DayColumn,
		TemperatureColumn: cfg.GroundTruth.TemperatureColumn,
		Anchor:            cfg.Anchor(),
		Logger:            logger,
	})
	if _, err := source.Load(ctx); err != nil {
		// Submissions answer 503 until the file becomes readable.
		logger.Warn("ground truth not loadable at startup", "path", cfg.GroundTruth.Path, "err", err)
	}

	opts := []application.CoordinatorOption{
		application.WithMetrics(metrics),
		application.WithCoordinatorLogger(logger),
	}
	if cfg.Outbox.Enabled {
		outbox, err := store.NewOutbox(leaderboard, store.OutboxConfig{
			Schedule: cfg.Outbox.Schedule,
			Capacity: cfg.Outbox.Capacity,
		}, metrics, logger)
		if err != nil {
			return err
		}
		outbox.Start()
		defer drainOutbox(outbox, cfg.Server.ShutdownTimeout(), logger)
		opts = append(opts, application.WithDeferredWriter(outbox))
	}

	coord, err := application.NewSubmissionCoordinator(source, leaderboard, opts...)
	if err != nil {
		return err
	}

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := httpapi.NewHandler(coord, cfg.Server.MaxUploadBytes, logger)
	srv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: httpapi.NewRouter(handler, httpapi.RouterOptions{
			AllowedOrigins: cfg.Server.AllowedOrigins,
			Gatherer:       registry,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}

// drainOutbox stops the flush schedule and makes a final attempt to write
// anything still queued.
func drainOutbox(outbox *store.Outbox, timeout time.Duration, logger *slog.Logger) {
	<-outbox.Stop().Done()
	if outbox.Pending() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := outbox.Flush(ctx); err != nil {
		logger.Error("entries lost on shutdown", "pending", outbox.Pending(), "err", err)
	}
}
