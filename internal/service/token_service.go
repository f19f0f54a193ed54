package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/oklog/ulid/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
)

// TokenDebiter reserves and refunds generation tokens. Both calls are
// idempotent per reference.
type TokenDebiter interface {
	Debit(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error)
	Credit(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error)
}

// TokenService manages user token balances.
type TokenService struct {
	repo   repository.TokenRepository
	logger *slog.Logger
}

// NewTokenService creates a token service.
func NewTokenService(repo repository.TokenRepository, logger *slog.Logger) *TokenService {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenService{repo: repo, logger: logger.With("component", "tokens")}
}

// Balance returns a user's balance. Users without a row have zero tokens.
func (s *TokenService) Balance(ctx context.Context, userID string) (*models.TokenBalance, error) {
	b, err := s.repo.GetBalance(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get balance: %w", err)
	}
	if b == nil {
		return &models.TokenBalance{UserID: userID}, nil
	}
	return b, nil
}

// Debit reserves amount tokens against reference.
func (s *TokenService) Debit(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error) {
	return s.apply(ctx, userID, models.TokenDebit, amount, reference)
}

// Credit refunds a debit made under the same reference.
func (s *TokenService) Credit(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error) {
	return s.apply(ctx, userID, models.TokenCredit, amount, reference)
}

// Grant tops up a user's balance.
func (s *TokenService) Grant(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error) {
	return s.apply(ctx, userID, models.TokenGrant, amount, reference)
}

// Transactions lists a user's most recent token movements.
func (s *TokenService) Transactions(ctx context.Context, userID string, limit int) ([]*models.TokenTransaction, error) {
	return s.repo.ListTransactions(ctx, userID, limit)
}

func (s *TokenService) apply(ctx context.Context, userID string, kind models.TokenTransactionKind, amount int64, reference string) (*models.TokenTransaction, error) {
	if userID == "" {
		return nil, invalid("user_id", "user id is required")
	}
	if amount <= 0 {
		return nil, invalid("amount", "amount must be positive")
	}
	if reference == "" {
		return nil, invalid("reference", "reference is required")
	}

	tx, err := s.repo.Apply(ctx, &models.TokenTransaction{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Kind:      kind,
		Amount:    amount,
		Reference: reference,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientTokens) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to apply token %s: %w", kind, err)
	}

	s.logger.Debug("token balance changed",
		"user_id", userID,
		"kind", kind,
		"amount", amount,
		"balance_after", tx.BalanceAfter,
		"reference", reference,
	)
	return tx, nil
}
