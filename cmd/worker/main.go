// Command worker runs scheduled settlement and market drift for the
// configured households without serving the HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/family-bank/internal/app"
	"github.com/dvloznov/family-bank/internal/config"
	jobstore "github.com/dvloznov/family-bank/internal/jobs/inmemory"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/spf13/pflag"
)

func main() {
	configPath := pflag.String("config", "", "Path to the YAML config file (or set "+config.EnvConfigPath+")")
	households := pflag.StringSlice("household", nil, "Household to settle (repeatable, overrides scheduler.households)")
	interval := pflag.Duration("interval", 0, "Scheduling interval (overrides scheduler.interval)")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if len(*households) > 0 {
		cfg.Scheduler.Households = *households
	}
	if *interval > 0 {
		cfg.Scheduler.Interval = *interval
	}

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)

	if len(cfg.Scheduler.Households) == 0 {
		log.Fatal().Msg("Error: no households to settle; set scheduler.households or --household")
	}
	if cfg.Backend == config.BackendMemory {
		log.Warn().Msg("Worker is using the in-memory backend - nothing it settles is persisted")
	}

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	a, err := app.Build(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	// Job history lives only in this process; the ledger is the durable record.
	queue, err := a.StartJobs(ctx, jobstore.NewStore())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	// Cancel context to stop the scheduler and workers
	cancel()

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	// Stop the queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
