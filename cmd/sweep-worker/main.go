package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"tally/internal/amqp"
	"tally/internal/config"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	// Setup structured logging
	logger := log.New(log.DefaultConfig()).WithComponent("sweep-worker")
	log.SetDefault(logger)

	logger.Info("Starting sweep-worker")

	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	// Initialize SQLite repository
	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Initialize AMQP client for publishing processed events.
	// The export-worker consumes these and mirrors history to Sheets.
	var events services.EventPublisher
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing in SQLite-only mode", "error", err)
		} else {
			defer amqpClient.Close()
			events = amqpClient
			logger.Info("AMQP client initialized - processed transactions will be exported")
		}
	} else {
		logger.Info("AMQP disabled - processed transactions will not be exported")
	}

	processor := services.NewProcessor(repo, events)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Sweep worker configured",
		"interval", cfg.SweepInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	// Run initial sweep on startup
	logger.Info("Running initial sweep...")
	if result, err := processor.RunSweep(ctx, time.Now(), false); err != nil {
		logger.Error("Initial sweep failed", "error", err)
	} else {
		logger.Info("Initial sweep complete",
			"processed", len(result.ProcessedIDs),
			"blocked_reason", result.BlockedReason)
	}

	// Start periodic sweeping
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				result, err := processor.RunSweep(ctx, now, false)
				if err != nil {
					logger.Error("Periodic sweep failed", "error", err)
					continue
				}
				logger.Info("Periodic sweep complete",
					"processed", len(result.ProcessedIDs),
					"blocked_reason", result.BlockedReason,
					"next_check", now.Add(cfg.SweepInterval).Format("15:04:05"))
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down sweep-worker...")
	cancel()

	// Give the in-flight sweep time to finish
	time.Sleep(2 * time.Second)
	logger.Info("Sweep-worker shutdown complete")
}
