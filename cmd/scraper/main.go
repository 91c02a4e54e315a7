package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/sand/nicehash-speculator/config"
	"github.com/sand/nicehash-speculator/internal/exchange"
	"github.com/sand/nicehash-speculator/internal/runner"
	"github.com/sand/nicehash-speculator/internal/scraper"
	"github.com/sand/nicehash-speculator/internal/store"
	"github.com/sand/nicehash-speculator/pkg/database"
)

const (
	migrationsPath = "./migrations"
	scrapeInterval = time.Minute
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Info("starting scraper", "app", cfg.App.Name, "env", cfg.App.Environment)

	if cfg.Exchange.APIKey == "" {
		logger.Error("exchange API key is not configured")
		os.Exit(1)
	}

	pg, err := database.New(cfg.DB.DatabaseURL,
		database.MaxPoolSize(cfg.DB.PoolMax),
		database.ConnTimeout(cfg.DB.ConnectTimeout),
		database.HealthCheckPeriod(cfg.DB.HealthCheckPeriod),
		database.Isolation(pgx.ReadCommitted),
	)
	if err != nil {
		logger.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer pg.Close()

	if err := database.RunMigrations(logger, cfg.DB.DatabaseURL, migrationsPath); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	st := store.New(pg)
	client := exchange.New(logger, exchange.Credentials{
		OrganizationID: cfg.Exchange.OrganizationID,
		APIKey:         cfg.Exchange.APIKey,
		APISecretKey:   cfg.Exchange.APISecretKey,
	}, cfg.Exchange.BaseURL)

	s := scraper.New(logger, st, client, cfg.Fetch)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down scraper...")
		cancel()
	}()

	runner.Periodic(ctx, logger, "scraper", scrapeInterval, s.RunOnce)
	logger.Info("scraper exited properly")
}
