// Command reset-leaderboard removes every entry from the configured
// leaderboard store.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ahrav/go-leaderboard/infrastructure/groundtruth"
	"github.com/ahrav/go-leaderboard/infrastructure/store"
	"github.com/ahrav/go-leaderboard/internal/application"
)

func main() {
	configPath := flag.String("config", os.Getenv(application.EnvConfigPath), "Path to the YAML configuration")
	timeout := flag.Duration("timeout", 30*time.Second, "Maximum time to spend on the reset")
	flag.Parse()

	if *configPath == "" {
		*configPath = "configs/leaderboard.yaml"
	}

	cfg, err := application.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := application.NewLogger(cfg.Logging, os.Stderr)

	backend, closer, err := store.Open(store.BackendConfig{
		Backend:             cfg.Store.Backend,
		Path:                cfg.Store.Path,
		Key:                 cfg.Store.Key,
		MaxConflictAttempts: cfg.Store.MaxConflictAttempts,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to open leaderboard store: %v", err)
	}
	defer closer.Close()

	leaderboard := store.NewRetryingStore(backend, store.RetryConfig{
		MaxRetries:    cfg.Retry.MaxRetries,
		BaseDelay:     cfg.Retry.InitialWait(),
		MaxDelay:      cfg.Retry.MaxWait(),
		JitterPercent: store.DefaultJitterPercent,
	}, nil, logger)

	// The ground truth file is never read during a reset.
	source := groundtruth.NewCSVSource(groundtruth.Options{Path: cfg.GroundTruth.Path, Anchor: cfg.Anchor(), Logger: logger})
	coord, err := application.NewSubmissionCoordinator(source, leaderboard, application.WithCoordinatorLogger(logger))
	if err != nil {
		log.Fatalf("Failed to build coordinator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	removed, err := coord.ResetLeaderboard(ctx)
	if err != nil {
		closer.Close()
		log.Fatalf("Failed to reset leaderboard: %v", err)
	}

	if removed == 0 {
		fmt.Println("Leaderboard was already empty.")
		return
	}
	fmt.Printf("Leaderboard reset: %d entries removed.\n", removed)
}
