package cost

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
)

// Accountant prices operations and writes them to the ledger.
type Accountant struct {
	pricing Pricing
	ledger  repository.CostRecordRepository
	logger  *slog.Logger
	now     func() time.Time
}

// NewAccountant creates an accountant. A nil ledger keeps records in memory.
func NewAccountant(pricing Pricing, ledger repository.CostRecordRepository, logger *slog.Logger) *Accountant {
	if ledger == nil {
		ledger = repository.NewMemoryCostRecordRepository()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Accountant{
		pricing: pricing.withDefaults(),
		ledger:  ledger,
		logger:  logger.With("component", "cost"),
		now:     time.Now,
	}
}

// Pricing returns the rate table in use.
func (a *Accountant) Pricing() Pricing {
	return a.pricing
}

// Estimate prices an operation from flat rates.
func (a *Accountant) Estimate(p Params) (models.CostEstimate, error) {
	return a.pricing.Estimate(p)
}

// Record appends rec to the ledger, assigning an ID and timestamp when unset.
func (a *Accountant) Record(ctx context.Context, rec *models.OperationCostRecord) (*models.OperationCostRecord, error) {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = a.now().UTC()
	}
	if err := a.ledger.Append(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to record cost: %w", err)
	}

	a.logger.Debug("cost recorded",
		"record_id", rec.ID,
		"correlation_id", rec.CorrelationID,
		"user_id", rec.UserID,
		"operation", rec.Operation,
		"provider", rec.Provider,
		"cost_usd", rec.EstimatedCostUSD,
		"success", rec.Success,
	)
	return rec, nil
}

// AmendActualCost stores the vendor's true charge for a record.
func (a *Accountant) AmendActualCost(ctx context.Context, id string, actualUSD float64) (*models.OperationCostRecord, error) {
	if actualUSD < 0 {
		return nil, fmt.Errorf("actual cost must not be negative, got %v", actualUSD)
	}
	if err := a.ledger.SetActualCost(ctx, id, actualUSD); err != nil {
		return nil, err
	}
	return a.ledger.GetByID(ctx, id)
}

// Summarize folds one user's records in the range into totals. Amended
// records count at their actual cost.
func (a *Accountant) Summarize(ctx context.Context, userID string, dr models.DateRange) (*models.CostSummary, error) {
	records, err := a.ledger.Query(ctx, userID, dr)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}
	s := a.fold(records)
	s.UserID = userID
	return s, nil
}

// PlatformSummary summarizes every user's records and adds per-user figures.
func (a *Accountant) PlatformSummary(ctx context.Context, dr models.DateRange) (*models.PlatformCostSummary, error) {
	records, err := a.ledger.Query(ctx, "", dr)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger: %w", err)
	}

	users := make(map[string]struct{})
	for _, r := range records {
		users[r.UserID] = struct{}{}
	}

	out := &models.PlatformCostSummary{CostSummary: *a.fold(records), UniqueUsers: len(users)}
	if out.UniqueUsers > 0 {
		out.AverageCostPerUserUSD = out.TotalCostUSD / float64(out.UniqueUsers)
		out.AverageCostPerUserCLP = out.TotalCostCLP / float64(out.UniqueUsers)
	}
	return out, nil
}

func (a *Accountant) fold(records []*models.OperationCostRecord) *models.CostSummary {
	s := &models.CostSummary{ByOperation: make(map[models.OperationType]models.OperationBreakdown)}
	for _, r := range records {
		usd := r.EffectiveCostUSD()
		clp := r.EstimatedCostCLP
		if r.ActualCostUSD != nil {
			clp = a.pricing.ToCLP(*r.ActualCostUSD)
		}

		s.TotalOperations++
		if r.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
		s.TotalImages += r.ImageCount
		s.TotalInputTokens += r.InputTokens
		s.TotalOutputTokens += r.OutputTokens
		s.TotalCostUSD += usd
		s.TotalCostCLP += clp

		b := s.ByOperation[r.Operation]
		b.Count++
		b.Images += r.ImageCount
		b.CostUSD += usd
		b.CostCLP += clp
		s.ByOperation[r.Operation] = b
	}

	s.TotalCostUSD = roundUSD(s.TotalCostUSD)
	if s.TotalOperations > 0 {
		s.AverageCostUSD = s.TotalCostUSD / float64(s.TotalOperations)
		s.AverageCostCLP = s.TotalCostCLP / float64(s.TotalOperations)
	}
	return s
}
