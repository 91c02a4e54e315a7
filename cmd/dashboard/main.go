package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5"
	"github.com/rs/cors"

	"github.com/sand/nicehash-speculator/config"
	"github.com/sand/nicehash-speculator/internal/handlers"
	"github.com/sand/nicehash-speculator/internal/runner"
	"github.com/sand/nicehash-speculator/internal/store"
	"github.com/sand/nicehash-speculator/pkg/database"
)

const (
	readTimeoutSeconds     = 15
	writeTimeoutSeconds    = 15
	idleTimeoutSeconds     = 60
	shutdownTimeoutSeconds = 5
	migrationsPath         = "./migrations"
	priceFeedInterval      = 10 * time.Second
)

func main() {
	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	opts := &slog.HandlerOptions{AddSource: true, Level: slog.LevelInfo}
	logger := slog.New(slog.NewTextHandler(os.Stdout, opts))
	logger.Info("starting dashboard", "app", cfg.App.Name, "port", cfg.HTTP.Port)

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
	dashboardService := handlers.NewDashboardService(st)
	manager := handlers.NewManager(nil)
	httpHandler := handlers.NewHTTPHandler(logger, dashboardService)
	wsHandler := handlers.NewWebSocketHandler(logger, dashboardService, manager)

	router := mux.NewRouter()
	wsHandler.RegisterRoutes(router)
	httpHandler.RegisterRoutes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTP.Port,
		Handler:      c.Handler(router),
		ReadTimeout:  readTimeoutSeconds * time.Second,
		WriteTimeout: writeTimeoutSeconds * time.Second,
		IdleTimeout:  idleTimeoutSeconds * time.Second,
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go runner.Periodic(runCtx, logger, "price-feed", priceFeedInterval, wsHandler.PublishLatestPrices)

	go func() {
		logger.Info("listening", "port", cfg.HTTP.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down dashboard...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeoutSeconds*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		return
	}
	logger.Info("dashboard exited properly")
}
