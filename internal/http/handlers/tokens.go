package handlers

import (
	"context"
	"fmt"

	"github.com/danielgtaylor/huma/v2"
	"github.com/oklog/ulid/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// TokenLedger manages generation token balances.
type TokenLedger interface {
	Balance(ctx context.Context, userID string) (*models.TokenBalance, error)
	Grant(ctx context.Context, userID string, amount int64, reference string) (*models.TokenTransaction, error)
	Transactions(ctx context.Context, userID string, limit int) ([]*models.TokenTransaction, error)
}

// TokenHandler handles token balance endpoints.
type TokenHandler struct {
	tokens TokenLedger
}

// NewTokenHandler creates a new token handler.
func NewTokenHandler(tokens TokenLedger) *TokenHandler {
	return &TokenHandler{tokens: tokens}
}

// GetBalanceOutput represents the caller's balance.
type GetBalanceOutput struct {
	Body *models.TokenBalance
}

// GetBalance returns the caller's token balance.
func (h *TokenHandler) GetBalance(ctx context.Context, input *struct{}) (*GetBalanceOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	balance, err := h.tokens.Balance(ctx, userID)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get balance")
	}
	return &GetBalanceOutput{Body: balance}, nil
}

// ListTransactionsInput represents a transaction history request.
type ListTransactionsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500"`
}

// ListTransactionsOutput represents token history.
type ListTransactionsOutput struct {
	Body struct {
		Transactions []*models.TokenTransaction `json:"transactions"`
	}
}

// ListTransactions returns the caller's recent token movements.
func (h *TokenHandler) ListTransactions(ctx context.Context, input *ListTransactionsInput) (*ListTransactionsOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	txs, err := h.tokens.Transactions(ctx, userID, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list transactions")
	}
	out := &ListTransactionsOutput{}
	out.Body.Transactions = txs
	if out.Body.Transactions == nil {
		out.Body.Transactions = []*models.TokenTransaction{}
	}
	return out, nil
}

// GrantTokensInput represents an admin top-up.
type GrantTokensInput struct {
	Body struct {
		UserID    string `json:"user_id" minLength:"1"`
		Amount    int64  `json:"amount" minimum:"1"`
		Reference string `json:"reference,omitempty" doc:"Idempotency reference; generated when empty"`
	}
}

// GrantTokensOutput represents the resulting transaction.
type GrantTokensOutput struct {
	Body *models.TokenTransaction
}

// GrantTokens tops up a user's balance. Repeating a reference is a no-op.
func (h *TokenHandler) GrantTokens(ctx context.Context, input *GrantTokensInput) (*GrantTokensOutput, error) {
	adminID := getUserID(ctx)
	if adminID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	ref := input.Body.Reference
	if ref == "" {
		ref = fmt.Sprintf("grant:%s:%s", adminID, ulid.Make())
	}
	tx, err := h.tokens.Grant(ctx, input.Body.UserID, input.Body.Amount, ref)
	if err != nil {
		return nil, serviceError(err, "failed to grant tokens")
	}
	return &GrantTokensOutput{Body: tx}, nil
}
