package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nlrail-data/internal/common/config"
	"github.com/nlrail-data/internal/common/db"
	"github.com/nlrail-data/internal/common/logger"
	"github.com/nlrail-data/internal/common/webhook"
	"github.com/nlrail-data/internal/ingest"
	"github.com/nlrail-data/internal/ingest/client"
)

// run returns the process exit code: 0 on a committed batch, non-zero
// on unrecoverable fetch/store failure
func run() int {
	// Load .env file if it exists; a cron environment usually injects
	// variables directly
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic("Failed to load .env file: " + err.Error())
	}

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log := logger.FromConfig(logger.Config{
		Level:           logger.ParseLevel(cfg.Logging.Level),
		Console:         true,
		File:            true,
		FilePath:        cfg.Logging.FilePath,
		MaxSizeMB:       10,
		MaxBackups:      5,
		MaxAgeDays:      30,
		Compress:        true,
		TimeFieldFormat: "2006-01-02T15:04:05Z07:00",
	})

	log.Info("NL Rail disruption ETL starting",
		"version", "1.0.0",
		"log_level", cfg.Logging.Level,
		"api_base_url", cfg.API.BaseURL,
	)

	if err := cfg.Database.Validate(); err != nil {
		log.Error("Invalid database configuration", "error", err)
		return 2
	}
	if err := cfg.API.Validate(); err != nil {
		log.Error("Invalid API configuration", "error", err)
		return 2
	}

	database, err := db.New(cfg.Database.ConnectionString(), log)
	if err != nil {
		log.Error("Failed to connect to database", "error", err)
		return 2
	}
	defer database.Close()

	// A SIGINT/SIGTERM mid-run cancels the cycle; the open transaction
	// rolls back and the run is recorded as failed
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.EnsureSchema(ctx); err != nil {
		log.Error("Failed to ensure schema", "error", err)
		return 2
	}

	alerts := webhook.NewClient(cfg.Pipeline.AlertWebhookURL)
	apiClient := client.NewClient(cfg.API, log)
	pipeline := ingest.NewPipeline(apiClient, database, cfg.Pipeline, log)

	summary, err := pipeline.Run(ctx)
	if err != nil {
		log.Error("Ingest run failed", "error", err)
		if alertErr := alerts.NotifyRunFailure(err, map[string]interface{}{
			"api_base_url": cfg.API.BaseURL,
			"database":     cfg.Database.DBName,
		}); alertErr != nil {
			log.Warn("Failed to send failure alert", "error", alertErr)
		}
		return 1
	}

	log.Info("Ingest run succeeded",
		"run_id", summary.RunID,
		"fetched", summary.Fetched,
		"valid", summary.Valid,
		"rejected", summary.Rejected,
		"upserted", summary.Upserted,
	)
	return 0
}

func main() {
	os.Exit(run())
}
