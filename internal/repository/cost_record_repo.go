package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// ========================================
// SQLite Cost Record Repository
// ========================================

// SQLiteCostRecordRepository implements CostRecordRepository for libsql.
// Appends are single INSERTs, so concurrent callers need no extra locking.
type SQLiteCostRecordRepository struct {
	db *sql.DB
}

// NewSQLiteCostRecordRepository creates a new SQLite cost record repository.
func NewSQLiteCostRecordRepository(db *sql.DB) *SQLiteCostRecordRepository {
	return &SQLiteCostRecordRepository{db: db}
}

const costRecordColumns = `id, correlation_id, user_id, operation, provider, model, input_tokens, output_tokens,
	image_count, estimated_cost_usd, estimated_cost_clp, actual_cost_usd, provider_cost_usd, premium, success,
	error_kind, created_at`

func (r *SQLiteCostRecordRepository) Append(ctx context.Context, rec *models.OperationCostRecord) error {
	query := `INSERT INTO cost_records (` + costRecordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.CorrelationID, rec.UserID, rec.Operation, rec.Provider, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.ImageCount,
		rec.EstimatedCostUSD, rec.EstimatedCostCLP, rec.ActualCostUSD, rec.ProviderCostUSD,
		boolToInt(rec.Premium), boolToInt(rec.Success), string(rec.ErrorKind),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append cost record: %w", err)
	}
	return nil
}

func (r *SQLiteCostRecordRepository) Query(ctx context.Context, userID string, dr models.DateRange) ([]*models.OperationCostRecord, error) {
	var (
		where []string
		args  []any
	)
	if userID != "" {
		where = append(where, "user_id = ?")
		args = append(args, userID)
	}
	if !dr.From.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(dr.From))
	}
	if !dr.To.IsZero() {
		where = append(where, "created_at < ?")
		args = append(args, formatTime(dr.To))
	}

	query := `SELECT ` + costRecordColumns + ` FROM cost_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost records: %w", err)
	}
	defer rows.Close()

	var records []*models.OperationCostRecord
	for rows.Next() {
		rec, err := scanCostRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *SQLiteCostRecordRepository) GetByID(ctx context.Context, id string) (*models.OperationCostRecord, error) {
	query := `SELECT ` + costRecordColumns + ` FROM cost_records WHERE id = ?`
	rec, err := scanCostRecord(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *SQLiteCostRecordRepository) SetActualCost(ctx context.Context, id string, actualUSD float64) error {
	result, err := r.db.ExecContext(ctx, `UPDATE cost_records SET actual_cost_usd = ? WHERE id = ?`, actualUSD, id)
	if err != nil {
		return fmt.Errorf("failed to set actual cost: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCostRecord(s scanner) (*models.OperationCostRecord, error) {
	var (
		rec                  models.OperationCostRecord
		actual, providerCost sql.NullFloat64
		premium, success     int
		errorKind, createdAt string
	)
	err := s.Scan(
		&rec.ID, &rec.CorrelationID, &rec.UserID, &rec.Operation, &rec.Provider, &rec.Model,
		&rec.InputTokens, &rec.OutputTokens, &rec.ImageCount,
		&rec.EstimatedCostUSD, &rec.EstimatedCostCLP, &actual, &providerCost,
		&premium, &success, &errorKind, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if actual.Valid {
		rec.ActualCostUSD = &actual.Float64
	}
	if providerCost.Valid {
		rec.ProviderCostUSD = &providerCost.Float64
	}
	rec.Premium = premium == 1
	rec.Success = success == 1
	rec.ErrorKind = models.ErrorKind(errorKind)
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ========================================
// In-Memory Cost Record Repository
// ========================================

// MemoryCostRecordRepository keeps the ledger in process memory. Used when no
// database is configured and in tests.
type MemoryCostRecordRepository struct {
	mu      sync.RWMutex
	records []*models.OperationCostRecord
	byID    map[string]*models.OperationCostRecord
}

// NewMemoryCostRecordRepository creates an empty in-memory ledger.
func NewMemoryCostRecordRepository() *MemoryCostRecordRepository {
	return &MemoryCostRecordRepository{byID: make(map[string]*models.OperationCostRecord)}
}

func (r *MemoryCostRecordRepository) Append(_ context.Context, rec *models.OperationCostRecord) error {
	cp := *rec
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byID[cp.ID]; dup {
		return fmt.Errorf("cost record %s already exists", cp.ID)
	}
	r.records = append(r.records, &cp)
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MemoryCostRecordRepository) Query(_ context.Context, userID string, dr models.DateRange) ([]*models.OperationCostRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.OperationCostRecord
	for _, rec := range r.records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		if !dr.Contains(rec.CreatedAt) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryCostRecordRepository) GetByID(_ context.Context, id string) (*models.OperationCostRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (r *MemoryCostRecordRepository) SetActualCost(_ context.Context, id string, actualUSD float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	rec.ActualCostUSD = &actualUSD
	return nil
}

// Len returns the number of records.
func (r *MemoryCostRecordRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
