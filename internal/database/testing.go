package database

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestDSNEnv names the variable holding the integration test database DSN.
const TestDSNEnv = "FACTOR_BACKTEST_TEST_DSN"

// SetupTestDB connects to the integration database, skipping the test when
// TestDSNEnv is unset.
func SetupTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv(TestDSNEnv)
	if dsn == "" {
		t.Skipf("integration test - set %s to run", TestDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := NewDBFromDSN(ctx, dsn, 2)
	if err != nil {
		t.Fatalf("failed to create test database connection: %v", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		db.Close()
		t.Fatalf("failed to prepare test schema: %v", err)
	}
	return db
}

// TeardownTestDB removes test rows and closes the pool.
func TeardownTestDB(t *testing.T, db *DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := db.Exec(ctx, "DELETE FROM backtest_results WHERE strategy_name LIKE 'test_%'"); err != nil {
		t.Logf("warning: failed to clean test rows: %v", err)
	}
	db.Close()
}
