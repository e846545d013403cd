package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tigro/internal/config"
	"tigro/internal/database"
	"tigro/internal/modules/marketdata"
	"tigro/internal/modules/optimization"
	"tigro/internal/modules/sizing"
	"tigro/internal/modules/strategy"
	"tigro/internal/scheduler"
	"tigro/internal/server"
	"tigro/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New(logger.Config{Level: "info"})
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting Tigro")

	// Initialize database
	db, err := database.New(database.Config{
		Path:    cfg.DatabasePath,
		Profile: database.ProfileStandard,
		Name:    "tigro",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	// Repository applies its schema on construction
	repo, err := marketdata.NewRepository(db, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize repository")
	}

	// Wire the optimization pipeline
	settings := optimization.DefaultSettings()
	settings.TargetReturn = cfg.TargetReturn
	settings.TargetVolatility = cfg.TargetVolatility
	settings.VaRConfidence = cfg.VaRConfidence
	settings.MaxWeight = cfg.MaxWeight
	settings.Simulations = cfg.Simulations
	settings.Seed = cfg.Seed

	svc := optimization.NewService(
		settings,
		cfg.LookbackDays,
		strategy.NewAdjuster(cfg.MaxCashInvestment, cfg.MinBackupBudget, log),
		sizing.NewSizer(cfg.MaxCashInvestment, cfg.MinBackupBudget, log),
		repo,
		repo,
		log,
	)

	// Initialize scheduler
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.CronSchedule, scheduler.NewOptimizationJob(svc)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register optimization job")
	}
	sched.Start()
	defer sched.Stop()

	// Initialize HTTP server
	srv := server.New(server.Config{
		Port:    cfg.Port,
		Log:     log,
		DB:      db,
		Service: svc,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
