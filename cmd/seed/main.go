// Command seed bootstraps a deployment: it registers a tenant and creates a
// platform superuser. Either part can be skipped by leaving its flags empty.
package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/zap"

	"crm-service/internal/apperr"
	"crm-service/internal/identity"
	"crm-service/internal/registry"
	"crm-service/internal/tenantdb"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
	"crm-service/pkg/logger"
)

func main() {
	tenantName := flag.String("tenant-name", "", "name of the tenant to register")
	tenantDomain := flag.String("tenant-domain", "", "domain of the tenant to register")
	username := flag.String("username", "", "superuser username")
	email := flag.String("email", "", "superuser email")
	flag.Parse()

	appConfig, err := config.Load("crm-seed")
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

	db, err := database.InitDB(&appConfig.DB, log)
	if err != nil {
		log.Fatal("Failed to initialize database", zap.Error(err))
	}
	if appConfig.DB.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
	}
	store := tenantdb.New(db, log)
	ctx := context.Background()

	if *tenantDomain != "" {
		tenant, err := registry.New(store, log).Register(ctx, *tenantName, *tenantDomain)
		switch {
		case apperr.Is(err, apperr.EConflict):
			log.Warn("Tenant already registered", zap.String("domain", *tenantDomain))
		case err != nil:
			log.Fatal("Failed to register tenant", zap.Error(err), zap.Any("fields", apperr.ErrorFields(err)))
		default:
			log.Info("Tenant registered", zap.Uint("tenant_id", tenant.ID), zap.String("domain", tenant.Domain))
		}
	}

	if *username != "" {
		// The password is read from the environment so it stays out of shell history.
		password := os.Getenv("SEED_PASSWORD")
		ident := identity.NewService(store, identity.NewPasswordHasher(appConfig.Password))
		user, err := ident.CreateSuperuser(ctx, identity.NewUser{
			Username: *username,
			Email:    *email,
			Password: password,
		})
		switch {
		case apperr.Is(err, apperr.EConflict):
			log.Warn("Superuser already exists", zap.String("username", *username))
		case err != nil:
			log.Fatal("Failed to create superuser", zap.Error(err), zap.Any("fields", apperr.ErrorFields(err)))
		default:
			log.Info("Superuser created", zap.Uint("user_id", user.ID))
		}
	}
}
