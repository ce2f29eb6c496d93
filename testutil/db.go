package testutil

import (
	"testing"

	"github.com/fieldops/workorder_backend/config"
	"github.com/fieldops/workorder_backend/models"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// NewTestDB opens a migrated in-memory database through config.OpenDatabase.
// One connection keeps every statement on the same in-memory database.
func NewTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := config.OpenDatabase(sqlite.Open(":memory:"), config.PoolSettings{MaxOpen: 1, MaxIdle: 1})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if err := models.MigrateTable(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// MemoryStorage is an in-process BlobStorage.
type MemoryStorage struct {
	Objects map[string][]byte
	Removed []string
	next    int
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{Objects: map[string][]byte{}}
}
