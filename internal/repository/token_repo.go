package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// SQLiteTokenRepository implements TokenRepository for libsql.
type SQLiteTokenRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteTokenRepository creates a new SQLite token repository.
func NewSQLiteTokenRepository(db *sql.DB) *SQLiteTokenRepository {
	return &SQLiteTokenRepository{db: db, now: time.Now}
}

func (r *SQLiteTokenRepository) GetBalance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	var (
		b         models.TokenBalance
		updatedAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, balance, updated_at FROM token_balances WHERE user_id = ?`, userID,
	).Scan(&b.UserID, &b.Balance, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	b.UpdatedAt = parseTime(updatedAt)
	return &b, nil
}

func (r *SQLiteTokenRepository) Apply(ctx context.Context, t *models.TokenTransaction) (*models.TokenTransaction, error) {
	if t.Amount <= 0 {
		return nil, fmt.Errorf("token amount must be positive, got %d", t.Amount)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tx.Rollback()
		}
	}()

	existing, err := scanTokenTransaction(tx.QueryRowContext(ctx,
		`SELECT `+tokenTxColumns+` FROM token_transactions WHERE reference = ? AND kind = ?`,
		t.Reference, t.Kind,
	))
	if err != nil && err != sql.ErrNoRows {
		return nil, fmt.Errorf("failed to check existing transaction: %w", err)
	}
	if existing != nil {
		return existing, nil
	}

	now := r.now()
	var balance int64
	switch t.Kind {
	case models.TokenDebit:
		// The conditional update is the balance check.
		err = tx.QueryRowContext(ctx, `
			UPDATE token_balances SET balance = balance - ?, updated_at = ?
			WHERE user_id = ? AND balance >= ?
			RETURNING balance`,
			t.Amount, formatTime(now), t.UserID, t.Amount,
		).Scan(&balance)
		if err == sql.ErrNoRows {
			return nil, ErrInsufficientTokens
		}
	case models.TokenCredit, models.TokenGrant:
		err = tx.QueryRowContext(ctx, `
			INSERT INTO token_balances (user_id, balance, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(user_id) DO UPDATE SET
				balance = token_balances.balance + excluded.balance,
				updated_at = excluded.updated_at
			RETURNING balance`,
			t.UserID, t.Amount, formatTime(now),
		).Scan(&balance)
	default:
		return nil, fmt.Errorf("unknown token transaction kind %q", t.Kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	out := *t
	out.BalanceAfter = balance
	out.CreatedAt = now
	_, err = tx.ExecContext(ctx, `INSERT INTO token_transactions (`+tokenTxColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		out.ID, out.UserID, out.Kind, out.Amount, out.BalanceAfter, out.Reference, formatTime(out.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			// Lost a race with a concurrent replay; the balance update rolls back.
			tx.Rollback()
			return r.GetTransaction(ctx, t.Reference, t.Kind)
		}
		return nil, fmt.Errorf("failed to record transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return &out, nil
}

const tokenTxColumns = `id, user_id, kind, amount, balance_after, reference, created_at`

func (r *SQLiteTokenRepository) GetTransaction(ctx context.Context, reference string, kind models.TokenTransactionKind) (*models.TokenTransaction, error) {
	t, err := scanTokenTransaction(r.db.QueryRowContext(ctx,
		`SELECT `+tokenTxColumns+` FROM token_transactions WHERE reference = ? AND kind = ?`, reference, kind,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (r *SQLiteTokenRepository) ListTransactions(ctx context.Context, userID string, limit int) ([]*models.TokenTransaction, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+tokenTxColumns+` FROM token_transactions WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.TokenTransaction
	for rows.Next() {
		t, err := scanTokenTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTokenTransaction(s scanner) (*models.TokenTransaction, error) {
	var (
		t         models.TokenTransaction
		kind      string
		createdAt string
	)
	if err := s.Scan(&t.ID, &t.UserID, &kind, &t.Amount, &t.BalanceAfter, &t.Reference, &createdAt); err != nil {
		return nil, err
	}
	t.Kind = models.TokenTransactionKind(kind)
	t.CreatedAt = parseTime(createdAt)
	return &t, nil
}
