// Package cli holds the start-up steps shared by cmd/pilotage and
// cmd/pilotage-worker.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pilotage/internal/config"
	"pilotage/internal/core"
	"pilotage/internal/log"
)

// LoadEnvFile loads .env files for local development. Missing files are
// ignored; already set variables win.
func LoadEnvFile(files ...string) {
	_ = godotenv.Load(files...)
}

// SetupLogger builds the process logger for component at the configured
// level and installs it as the slog default.
func SetupLogger(level, component string) *log.Logger {
	lvl, err := config.ParseLogLevel(level)
	logger := log.New(log.Config{Level: lvl, Component: component, Output: os.Stdout})
	log.SetDefault(logger)
	if err != nil {
		logger.Warn("Unknown log level, using info", log.FieldError, err)
	}
	return logger
}

// LoadAndValidateConfig loads configuration and the month rules it points
// to. Any problem is returned as a single error.
func LoadAndValidateConfig() (*config.Config, core.RuleSet, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, core.RuleSet{}, err
	}
	rules, err := config.LoadMonthRules(cfg.MonthRulesFile)
	if err != nil {
		return nil, core.RuleSet{}, fmt.Errorf("load month rules: %w", err)
	}
	return cfg, rules, nil
}

// LoadWorkerConfig loads configuration for the sheet mirror worker.
func LoadWorkerConfig() (*config.Config, error) {
	cfg := config.Load()
	if err := cfg.ValidateWorker(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)
	}()
	return ctx, stop
}

// Exit logs err and terminates the process.
func Exit(logger *log.Logger, msg string, err error) {
	logger.Error(msg, log.FieldError, err)
	os.Exit(1)
}
