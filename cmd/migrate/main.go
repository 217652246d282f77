// Command migrate applies the embedded PostgreSQL schema migrations.
package main

import (
	"flag"

	"go.uber.org/zap"

	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	appConfig, err := config.Load("crm-migrate")
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       appConfig.Log.Level,
		Environment: appConfig.Server.Env,
		ServiceName: appConfig.ServiceName,
	}); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	log := logger.GetLogger()
	defer func() { _ = log.Sync() }()

	if appConfig.DB.Driver != config.DriverPostgres {
		log.Fatal("Migrations target PostgreSQL; use DB_AUTO_MIGRATE for sqlite",
			zap.String("driver", appConfig.DB.Driver))
	}

	log.Info("Running migrations", zap.String("direction", *direction))
	if err := database.Migrate(appConfig.DB.GetDSN(), *direction); err != nil {
		log.Fatal("Migration failed", zap.Error(err))
	}
	log.Info("Migrations complete")
}
