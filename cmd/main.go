package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"crm-service/internal/identity"
	"crm-service/internal/server"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/jwtutil"
	"crm-service/pkg/logger"
	"crm-service/pkg/tokenclient"
	"crm-service/prometheus"
)

func main() {
	// Load configuration
	appConfig, err := config.Load("crm-service")
	if err != nil {
		// Can't use structured logger yet since it's not initialized
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       appConfig.Log.Level,
		Environment: appConfig.Server.Env,
		ServiceName: appConfig.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	log.Info("Starting crm-service", appConfig.LogConfig()...)

	// Initialize Prometheus metrics
	if err := prometheus.InitMetrics(appConfig, promclient.DefaultRegisterer); err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}
	log.Info("Prometheus metrics initialized", zap.String("metrics_prefix", appConfig.Metrics.Prefix))

	// Initialize database
	db, err := database.InitDB(&appConfig.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if appConfig.DB.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
		log.Info("Database schema migrated")
	}

	// Token service: remote when configured, local HS256 otherwise
	var tokens identity.TokenService
	if appConfig.Services.TokenServiceURL != "" {
		tokens = tokenclient.New(appConfig.Services.TokenServiceURL)
		log.Info("Using remote token service", zap.String("url", appConfig.Services.TokenServiceURL))
	} else {
		tokens = jwtutil.NewJWTUtil(&appConfig.JWT)
		log.Info("Using local token service")
	}

	e := server.New(server.Options{
		Config:  appConfig,
		Store:   tenantdb.New(db, log),
		Tokens:  tokens,
		Log:     log,
		Metrics: promhttp.Handler(),
	})

	// Start server
	go func() {
		port := appConfig.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", zap.Error(err))
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
