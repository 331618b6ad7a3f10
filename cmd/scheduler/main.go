/**
 * @description
 * Entry point of the RAVITO scheduler. This is a non-HTTP, long-running process that
 * triggers the monthly commission jobs through the API's internal routes.
 */
package main

import (
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ravito/ravito-backend/internal/config"
	"github.com/ravito/ravito-backend/internal/scheduler"
	"github.com/ravito/ravito-backend/pkg/ravitoclient"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		logger.Error("invalid business timezone", "error", err)
		os.Exit(1)
	}

	client := ravitoclient.NewClient(cfg.APIBaseURL, cfg.InternalAPIKey)
	jobs := scheduler.NewJobs(client, logger, loc)
	cronScheduler := scheduler.NewScheduler(jobs, logger, *cfg, loc)

	if scheduled := cronScheduler.Start(); scheduled == 0 {
		logger.Error("no job could be scheduled")
		os.Exit(1)
	}
	logger.Info("scheduler started", "timezone", cfg.BusinessTimezone)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received, stopping scheduler")
	stopCtx := cronScheduler.Stop()
	<-stopCtx.Done()
	logger.Info("scheduler stopped gracefully")
}
