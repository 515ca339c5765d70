package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pilotage/internal/auth"
	"pilotage/internal/backend"
	"pilotage/internal/cache"
	"pilotage/internal/cli"
	"pilotage/internal/config"
	"pilotage/internal/core"
	apphttp "pilotage/internal/http"
	"pilotage/internal/log"
	"pilotage/internal/services"
)

const (
	janitorInterval = 10 * time.Minute
	shutdownTimeout = 30 * time.Second
)

func main() {
	// Load .env file for local development (ignored when missing)
	cli.LoadEnvFile()

	cfg, rules, err := cli.LoadAndValidateConfig()
	if err != nil {
		cli.Exit(log.New(log.DefaultConfig()), "Configuration validation failed", err)
	}
	logger := cli.SetupLogger(cfg.LogLevel, log.ComponentApp)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	factory := backend.NewFactory(logger.WithComponent(log.ComponentBackend))
	if err := run(ctx, cfg, rules, factory, logger); err != nil {
		stop()
		cli.Exit(logger, "Server error", err)
	}
	logger.Info("Server stopped gracefully")
}

// run serves until ctx is done or the listener fails. The backend is closed
// before run returns.
func run(ctx context.Context, cfg *config.Config, rules core.RuleSet, factory backend.Factory, logger *log.Logger) error {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return fmt.Errorf("invalid backend configuration: %w", err)
	}
	result, err := factory.CreateBackend(ctx, backendCfg)
	if err != nil {
		return fmt.Errorf("initialize backend: %w", err)
	}
	defer func() {
		if err := result.Close(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	sales := services.NewSalesService(result.Store, services.SalesOptions{
		Rules:            rules,
		ProductLines:     cfg.ProductLines,
		FirstYear:        cfg.FirstYear,
		InitYear:         cfg.InitYear,
		OptimisticWrites: cfg.OptimisticWrites,
		SummaryCacheTTL:  cfg.SummaryCacheTTL,
		Publisher:        result.Publisher,
		Logger:           logger,
	})
	gate := auth.NewGate(cfg.AccessPassword, cfg.SessionTTL, logger)

	srv := apphttp.NewServer(":"+cfg.Port, sales, gate, apphttp.Options{
		RequestsPerMinute: cfg.RateLimitPerMinute,
		SecureCookies:     cfg.SecureCookies,
		Logger:            logger,
		Ready: func(ctx context.Context) error {
			_, err := sales.Load(ctx)
			return err
		},
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	janitor := cache.NewJanitor(logger)
	janitor.Register(gate.Sessions())
	janitor.Register(sales.SummaryCache())
	janitor.Register(srv.RateLimiter())
	go janitor.Run(ctx, janitorInterval)

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	}()

	logger.Info("Starting pilotage server",
		log.FieldOperation, log.OpStartup,
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"optimistic_writes", cfg.OptimisticWrites)
	err = srv.ListenAndServe()
	// In-flight requests finish before the backend closes.
	cancel()
	<-shutdownDone
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
