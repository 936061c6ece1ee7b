// Package dbtest opens migrated throwaway sqlite databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"nexus-chat/internal/database"

	"gorm.io/gorm"
)

func New(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "chat.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
