package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"tradedesk/internal/config"
	"tradedesk/internal/database"
	"tradedesk/internal/fees"
	"tradedesk/internal/logger"
	"tradedesk/internal/server"
	"tradedesk/internal/services"
	"tradedesk/internal/validator"
)

// @title           Tradedesk API
// @version         1.0
// @description     Tradedesk executes buy and sell orders against user portfolios and keeps cash, holdings and the transaction ledger consistent.

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

const shutdownTimeout = 15 * time.Second

func main() {
	// Initialize logger (use ENV var if available, default to development)
	logger.Init(os.Getenv("ENV"))
	defer logger.Sync()

	if err := run(); err != nil {
		logger.Get().Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	log := logger.Get()

	appConfig, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	schedule, err := fees.ParseSchedule(appConfig.FeeRate, appConfig.FeeRateOverrides)
	if err != nil {
		return fmt.Errorf("invalid fee configuration: %w", err)
	}

	dbManager, err := database.NewManager(database.NewConfig(appConfig))
	if err != nil {
		return fmt.Errorf("failed to create database manager: %w", err)
	}
	defer func() {
		if err := dbManager.Close(); err != nil {
			log.Warnf("database close error: %v", err)
		}
	}()

	if err := dbManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}

	validator.Register()

	// Order placement, cash flows and the sweeper share one locker so they
	// serialize on the same per-portfolio gate.
	db := dbManager.DB()
	locker := services.NewPortfolioLocker(db, appConfig.LockTimeout)

	router := server.NewRouter(server.Deps{
		Users:          services.NewUserService(db),
		Securities:     services.NewSecurityService(db),
		Orders:         services.NewOrderService(db, locker, schedule),
		Portfolios:     services.NewPortfolioService(db, locker),
		Audit:          services.NewAuditService(db),
		PipelineAPIKey: appConfig.PipelineAPIKey,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	sweeper := services.NewOrderSweeper(db, locker, schedule)
	wg.Add(1)
	go func() {
		defer wg.Done()
		sweeper.Run(ctx, appConfig.SweepInterval)
	}()

	srv := &http.Server{
		Addr:              ":" + appConfig.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infof("Starting Tradedesk server on port %s", appConfig.Port)
		log.Infof("Swagger documentation available at http://localhost:%s/swagger/index.html", appConfig.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		stop()
		wg.Wait()
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	wg.Wait()
	return nil
}
