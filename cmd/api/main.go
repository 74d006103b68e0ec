package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/family-bank/internal/api/handlers"
	"github.com/dvloznov/family-bank/internal/app"
	"github.com/dvloznov/family-bank/internal/config"
	jobstore "github.com/dvloznov/family-bank/internal/jobs/inmemory"
	"github.com/dvloznov/family-bank/internal/logger"
	"github.com/dvloznov/family-bank/internal/notify"
	"github.com/spf13/pflag"
)

func main() {
	// Parse command-line flags
	var (
		configPath = pflag.String("config", "", "Path to the YAML config file (or set "+config.EnvConfigPath+")")
		port       = pflag.String("port", "", "HTTP server port (overrides server.port)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	// Initialize logger
	log := logger.NewWithLevel(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	hub := notify.NewHub(log)
	hub.Start(ctx)

	a, err := app.Build(ctx, cfg, log, app.WithHub(hub))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer a.Close()

	if cfg.Backend == config.BackendMemory {
		log.Warn().Msg("Using the in-memory backend - data is lost on restart")
	}

	// Initialize job infrastructure
	jobs := jobstore.NewStore()
	queue, err := a.StartJobs(ctx, jobs)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}

	router := handlers.NewRouter(log, a.Clock,
		handlers.NewMembersHandler(a.Members, a.Repo, a.Ledger, a.Rates, a.Engine, a.Guard, log),
		handlers.NewTransactionsHandler(a.Ledger, a.Members, log),
		handlers.NewRatesHandler(a.Rates, log),
		handlers.NewJobsHandler(jobs, log),
		handlers.NewFeedHandler(hub, a.Subscriber, a.Engine, a.Rates, a.Clock, cfg.Settlement.Cooldown, log),
	)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Str("backend", string(cfg.Backend)).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Stop the scheduler, the hub and the queue workers
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop job queue and wait for in-flight jobs
	if err := queue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("Server exited")
}
