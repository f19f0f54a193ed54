package repository

import (
	"database/sql"
	"testing"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/database/migrations"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	_ "github.com/tursodatabase/go-libsql"
)

// setupTestDB creates a migrated in-memory database that is closed when the
// test completes.
func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("libsql", ":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	// Each :memory: connection is its own database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := migrations.Run(db, nil); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// setupTestRepos creates all repositories using a test database.
func setupTestRepos(t *testing.T) *Repositories {
	t.Helper()
	return NewRepositories(setupTestDB(t))
}

// fixedClock returns a clock that advances one second per call.
func fixedClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func testCostRecord(id, userID string, op models.OperationType, usd float64, at time.Time) *models.OperationCostRecord {
	return &models.OperationCostRecord{
		ID:               id,
		CorrelationID:    "corr-" + id,
		UserID:           userID,
		Operation:        op,
		Provider:         "gemini",
		Model:            "gemini-2.5-flash-image-preview",
		ImageCount:       1,
		EstimatedCostUSD: usd,
		EstimatedCostCLP: usd * 950,
		Success:          usd > 0,
		CreatedAt:        at,
	}
}
