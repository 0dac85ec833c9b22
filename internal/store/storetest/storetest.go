// Package storetest provides an isolated in-memory database for tests.
package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"equipment-queue-backend/internal/db"
	"equipment-queue-backend/internal/model"
)

// NewDB opens a migrated in-memory SQLite database private to the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.Migrate(gormDB))
	return gormDB
}

// SeedEquipment inserts equipment rows with the given ids.
func SeedEquipment(t *testing.T, gormDB *gorm.DB, ids ...int64) {
	t.Helper()
	for _, id := range ids {
		eq := model.Equipment{ID: id, Name: fmt.Sprintf("Rack %d", id), Category: "strength"}
		require.NoError(t, gormDB.Create(&eq).Error)
	}
}
