// Package dbtest opens migrated in-memory stores for tests.
package dbtest

import (
	"context"
	"testing"

	"reconledger/internal/infra/db"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const memoryDSN = ":memory:?_pragma=foreign_keys(1)"

// Open returns a fresh migrated SQLite store that is closed with the test.
func Open(t testing.TB) *db.Store {
	t.Helper()
	gdb, err := db.Open(sqlite.Open(memoryDSN), zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel)))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)

	store := db.NewStoreFromDB(gdb)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}
