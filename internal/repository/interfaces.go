// Package repository defines data access for the cost ledger, token balances
// and batch jobs, with libsql implementations and an in-memory ledger.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

var (
	// ErrNotFound is returned by updates that matched no row.
	ErrNotFound = errors.New("record not found")

	// ErrInsufficientTokens is returned when a debit would make a balance negative.
	ErrInsufficientTokens = errors.New("insufficient token balance")
)

// timeFormat is fixed-width so stored timestamps sort lexicographically.
const timeFormat = "2006-01-02T15:04:05.000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, s)
	}
	return t
}

// CostRecordRepository is the append-only cost ledger sink.
type CostRecordRepository interface {
	Append(ctx context.Context, rec *models.OperationCostRecord) error
	// Query returns records in [r.From, r.To) ordered by creation time.
	// An empty userID returns every user's records.
	Query(ctx context.Context, userID string, r models.DateRange) ([]*models.OperationCostRecord, error)
	GetByID(ctx context.Context, id string) (*models.OperationCostRecord, error)
	// SetActualCost amends a record with the vendor's true charge.
	SetActualCost(ctx context.Context, id string, actualUSD float64) error
}

// TokenRepository stores generation token balances.
type TokenRepository interface {
	GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error)
	// Apply moves tokens and records the transaction atomically. Replaying a
	// (Reference, Kind) pair returns the original transaction unchanged.
	Apply(ctx context.Context, tx *models.TokenTransaction) (*models.TokenTransaction, error)
	GetTransaction(ctx context.Context, reference string, kind models.TokenTransactionKind) (*models.TokenTransaction, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]*models.TokenTransaction, error)
}

// BatchJobRepository is the async batch queue.
type BatchJobRepository interface {
	Create(ctx context.Context, job *models.BatchJob) error
	GetByID(ctx context.Context, id string) (*models.BatchJob, error)
	// ClaimPending atomically claims the oldest pending job. Returns nil, nil
	// when the queue is empty.
	ClaimPending(ctx context.Context) (*models.BatchJob, error)
	Complete(ctx context.Context, id string, resultJSON string) error
	Fail(ctx context.Context, id string, message string) error
	// MarkStaleRunningJobsFailed fails jobs running longer than maxAge and
	// returns how many were updated.
	MarkStaleRunningJobsFailed(ctx context.Context, maxAge time.Duration) (int64, error)
}

// Repositories holds all repository instances.
type Repositories struct {
	CostRecord CostRecordRepository
	Token      TokenRepository
	BatchJob   BatchJobRepository
}

// NewRepositories creates the libsql repositories.
func NewRepositories(db *sql.DB) *Repositories {
	return &Repositories{
		CostRecord: NewSQLiteCostRecordRepository(db),
		Token:      NewSQLiteTokenRepository(db),
		BatchJob:   NewSQLiteBatchJobRepository(db),
	}
}
