package database

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm/logger"

	"crm-service/internal/model"
	"crm-service/pkg/config"
)

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t, "crm.db?_foreign_keys=on&_busy_timeout=5000", SQLiteDSN("crm.db"))
	assert.Equal(t, "file:crm.db?mode=rwc&_foreign_keys=on&_busy_timeout=5000", SQLiteDSN("file:crm.db?mode=rwc"))
}

func TestInitDB_SQLiteEnforcesForeignKeys(t *testing.T) {
	cfg := &config.DBConfig{
		Driver:       config.DriverSQLite,
		URL:          filepath.Join(t.TempDir(), "crm.db"),
		MaxIdleConns: 1,
		MaxOpenConns: 1,
		LogLevel:     logger.Silent,
	}
	db, err := InitDB(cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	tenant := model.Tenant{Name: "Acme", Domain: "acme.example.com"}
	require.NoError(t, db.Create(&tenant).Error)
	user := model.User{Username: "ana", Email: "ana@acme.example.com", PasswordHash: "x", IsActive: true, TenantID: &tenant.ID}
	require.NoError(t, db.Create(&user).Error)
	rec := model.AuditRecord{TenantID: &tenant.ID, UserID: &user.ID, Action: model.ActionLogin}
	require.NoError(t, db.Create(&rec).Error)

	// user deletion keeps the record and clears its actor
	require.NoError(t, db.Delete(&model.User{}, user.ID).Error)
	var got model.AuditRecord
	require.NoError(t, db.First(&got, rec.ID).Error)
	assert.Nil(t, got.UserID)

	// tenant deletion cascades to its records
	require.NoError(t, db.Delete(&model.Tenant{}, tenant.ID).Error)
	var n int64
	require.NoError(t, db.Model(&model.AuditRecord{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestInitDB_UnsupportedDriver(t *testing.T) {
	_, err := InitDB(&config.DBConfig{Driver: "oracle"}, zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestMigrate_Validation(t *testing.T) {
	assert.Error(t, Migrate("", "up"))

	for _, direction := range []string{"", "UP", "sideways"} {
		err := Migrate("postgres://localhost/crm", direction)
		assert.ErrorContains(t, err, "direction", direction)
	}
}

func TestMigrationFS_HasPairs(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	require.NoError(t, err)

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	assert.True(t, names["000001_init.up.sql"])
	assert.True(t, names["000001_init.down.sql"])
}
