package main

import (
	"pilotage/internal/amqp"
	"pilotage/internal/cli"
	"pilotage/internal/log"
	gsheet "pilotage/internal/sheets/google"
	"pilotage/internal/storage"
	"pilotage/internal/worker"
)

func main() {
	// Load .env file for local development (ignored when missing)
	cli.LoadEnvFile()

	cfg, err := cli.LoadWorkerConfig()
	if err != nil {
		cli.Exit(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentWorker)
	logger.Info("Starting pilotage-worker", log.FieldOperation, log.OpStartup)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath, logger)
	if err != nil {
		cli.Exit(logger, "Failed to initialize SQLite repository", err)
	}
	defer repo.Close()

	sheetsClient, err := gsheet.NewFromSettings(ctx, gsheet.Settings{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	}, logger)
	if err != nil {
		repo.Close()
		cli.Exit(logger, "Failed to initialize Google Sheets client", err)
	}
	logger.Info("Google Sheets client initialized", "sheet", cfg.GoogleSheetName)

	// Without AMQP the periodic mirror is the only trigger.
	var consumer worker.Consumer
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			repo.Close()
			cli.Exit(logger, "Failed to initialize AMQP client", err)
		}
		defer amqpClient.Close()
		consumer = amqpClient
	} else {
		logger.Info("AMQP disabled, relying on periodic mirror", "interval", cfg.SyncInterval)
	}

	syncWorker := worker.NewSyncWorker(repo, sheetsClient, cfg.SyncInterval, logger)
	if err := syncWorker.Run(ctx, consumer); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		return
	}
	logger.Info("Worker stopped gracefully")
}
