package service

import (
	"context"
	"testing"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
)

func TestUsageReporter_Report(t *testing.T) {
	now := time.Date(2026, 10, 2, 6, 0, 0, 0, time.UTC)
	accountant := cost.NewAccountant(cost.DefaultPricing(), repository.NewMemoryCostRecordRepository(), testLogger())

	records := []struct {
		id, user string
		usd      float64
		at       time.Time
		ok       bool
	}{
		{"in-1", "user-1", 0.039, now.Add(-2 * time.Hour), true},
		{"in-2", "user-2", 0.04, now.Add(-20 * time.Hour), true},
		{"in-3", "user-2", 0, now.Add(-time.Hour), false},
		{"old", "user-3", 0.5, now.Add(-48 * time.Hour), true},
	}
	for _, r := range records {
		_, err := accountant.Record(context.Background(), &models.OperationCostRecord{
			ID:               r.id,
			UserID:           r.user,
			Operation:        models.OperationVirtualStaging,
			Provider:         "gemini",
			ImageCount:       1,
			EstimatedCostUSD: r.usd,
			Success:          r.ok,
			CreatedAt:        r.at,
		})
		if err != nil {
			t.Fatalf("Record(%s) error = %v", r.id, err)
		}
	}

	reporter := NewUsageReporter(accountant, testLogger())
	reporter.now = func() time.Time { return now }

	s, err := reporter.Report(context.Background())
	if err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if s.TotalOperations != 3 {
		t.Errorf("TotalOperations = %d, want 3", s.TotalOperations)
	}
	if s.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", s.FailureCount)
	}
	if s.UniqueUsers != 2 {
		t.Errorf("UniqueUsers = %d, want 2", s.UniqueUsers)
	}
}
