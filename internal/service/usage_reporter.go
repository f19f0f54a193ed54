package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// UsageReporter logs the platform cost summary for a trailing window.
type UsageReporter struct {
	accountant *cost.Accountant
	window     time.Duration
	logger     *slog.Logger
	now        func() time.Time
}

// NewUsageReporter creates a reporter over the trailing 24 hours.
func NewUsageReporter(accountant *cost.Accountant, logger *slog.Logger) *UsageReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &UsageReporter{
		accountant: accountant,
		window:     24 * time.Hour,
		logger:     logger.With("component", "usage_report"),
		now:        time.Now,
	}
}

// Report summarizes the trailing window and logs it.
func (r *UsageReporter) Report(ctx context.Context) (*models.PlatformCostSummary, error) {
	to := r.now().UTC()
	dr := models.DateRange{From: to.Add(-r.window), To: to}

	s, err := r.accountant.PlatformSummary(ctx, dr)
	if err != nil {
		return nil, fmt.Errorf("failed to build usage report: %w", err)
	}

	r.logger.Info("platform usage",
		"from", dr.From.Format(time.RFC3339),
		"to", dr.To.Format(time.RFC3339),
		"operations", s.TotalOperations,
		"failures", s.FailureCount,
		"images", s.TotalImages,
		"cost_usd", s.TotalCostUSD,
		"cost_clp", cost.FormatCLP(s.TotalCostCLP),
		"unique_users", s.UniqueUsers,
		"avg_cost_per_user_usd", s.AverageCostPerUserUSD,
	)
	return s, nil
}
