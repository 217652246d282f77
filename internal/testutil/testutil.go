// Package testutil builds throwaway sqlite databases for package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"crm-service/internal/model"
	"crm-service/pkg/config"
	"crm-service/pkg/database"
)

// NewDB returns a migrated sqlite database living in t.TempDir().
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	cfg := &config.DBConfig{
		Driver:       config.DriverSQLite,
		URL:          filepath.Join(t.TempDir(), "crm.db"),
		MaxIdleConns: 2,
		MaxOpenConns: 4,
		LogLevel:     logger.Silent,
	}
	db, err := database.InitDB(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// CreateTenant inserts a tenant directly, bypassing domain normalization.
func CreateTenant(t testing.TB, db *gorm.DB, name, domain string) *model.Tenant {
	t.Helper()

	tenant := &model.Tenant{Name: name, Domain: domain}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// CreateUser inserts u as given; PasswordHash must already be a hash.
func CreateUser(t testing.TB, db *gorm.DB, u *model.User) *model.User {
	t.Helper()

	if u.PasswordHash == "" {
		u.PasswordHash = "!"
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
