package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// CostLedger summarizes and amends recorded operation costs.
type CostLedger interface {
	Summarize(ctx context.Context, userID string, dr models.DateRange) (*models.CostSummary, error)
	PlatformSummary(ctx context.Context, dr models.DateRange) (*models.PlatformCostSummary, error)
	AmendActualCost(ctx context.Context, id string, actualUSD float64) (*models.OperationCostRecord, error)
}

// UsageHandler handles usage and cost endpoints.
type UsageHandler struct {
	ledger CostLedger
}

// NewUsageHandler creates a new usage handler.
func NewUsageHandler(ledger CostLedger) *UsageHandler {
	return &UsageHandler{ledger: ledger}
}

// UsageRangeInput is a [from, to) window; omitted bounds are open.
type UsageRangeInput struct {
	From string `query:"from" doc:"Start of the window (RFC3339 or YYYY-MM-DD)"`
	To   string `query:"to" doc:"End of the window, exclusive (RFC3339 or YYYY-MM-DD)"`
}

func (in *UsageRangeInput) dateRange() (models.DateRange, error) {
	var dr models.DateRange
	var err error
	if dr.From, err = parseBound(in.From); err != nil {
		return dr, huma.Error422UnprocessableEntity("invalid from: " + err.Error())
	}
	if dr.To, err = parseBound(in.To); err != nil {
		return dr, huma.Error422UnprocessableEntity("invalid to: " + err.Error())
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && !dr.From.Before(dr.To) {
		return dr, huma.Error422UnprocessableEntity("from must be before to")
	}
	return dr, nil
}

func parseBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}

// GetUsageOutput represents the caller's cost summary.
type GetUsageOutput struct {
	Body *models.CostSummary
}

// GetUsage summarizes the caller's operations.
func (h *UsageHandler) GetUsage(ctx context.Context, input *UsageRangeInput) (*GetUsageOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	dr, err := input.dateRange()
	if err != nil {
		return nil, err
	}

	summary, err := h.ledger.Summarize(ctx, userID, dr)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get usage")
	}
	return &GetUsageOutput{Body: summary}, nil
}

// GetPlatformUsageOutput represents the platform-wide summary.
type GetPlatformUsageOutput struct {
	Body *models.PlatformCostSummary
}

// GetPlatformUsage summarizes every user's operations.
func (h *UsageHandler) GetPlatformUsage(ctx context.Context, input *UsageRangeInput) (*GetPlatformUsageOutput, error) {
	dr, err := input.dateRange()
	if err != nil {
		return nil, err
	}

	summary, err := h.ledger.PlatformSummary(ctx, dr)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to get platform usage")
	}
	return &GetPlatformUsageOutput{Body: summary}, nil
}

// AmendActualCostInput sets the vendor-reported cost of a record.
type AmendActualCostInput struct {
	ID   string `path:"id" doc:"Cost record ID"`
	Body struct {
		ActualCostUSD float64 `json:"actual_cost_usd" minimum:"0"`
	}
}

// AmendActualCostOutput represents the amended record.
type AmendActualCostOutput struct {
	Body *models.OperationCostRecord
}

// AmendActualCost corrects a ledger record with the vendor's charge.
func (h *UsageHandler) AmendActualCost(ctx context.Context, input *AmendActualCostInput) (*AmendActualCostOutput, error) {
	if input.Body.ActualCostUSD < 0 {
		return nil, huma.Error422UnprocessableEntity("actual_cost_usd must not be negative")
	}
	rec, err := h.ledger.AmendActualCost(ctx, input.ID, input.Body.ActualCostUSD)
	if err != nil {
		return nil, serviceError(err, "failed to amend cost record")
	}
	return &AmendActualCostOutput{Body: rec}, nil
}
