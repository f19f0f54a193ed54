package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// Both ledger implementations must behave identically.
func ledgers(t *testing.T) map[string]CostRecordRepository {
	return map[string]CostRecordRepository{
		"sqlite": NewSQLiteCostRecordRepository(setupTestDB(t)),
		"memory": NewMemoryCostRecordRepository(),
	}
}

var base = time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)

// ========================================
// Append / GetByID Tests
// ========================================

func TestCostRecord_AppendAndGet(t *testing.T) {
	for name, repo := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			provCost := 0.041
			rec := testCostRecord("rec-1", "user-1", models.OperationVirtualStaging, 0.0393, base)
			rec.InputTokens = 1000
			rec.OutputTokens = 1290
			rec.Premium = true
			rec.ProviderCostUSD = &provCost

			if err := repo.Append(ctx, rec); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			got, err := repo.GetByID(ctx, "rec-1")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got == nil {
				t.Fatal("GetByID() returned nil")
			}
			if got.UserID != "user-1" || got.Operation != models.OperationVirtualStaging {
				t.Errorf("unexpected record: %+v", got)
			}
			if got.InputTokens != 1000 || got.OutputTokens != 1290 {
				t.Errorf("tokens = %d/%d, want 1000/1290", got.InputTokens, got.OutputTokens)
			}
			if !got.Premium || !got.Success {
				t.Errorf("flags lost: premium=%v success=%v", got.Premium, got.Success)
			}
			if got.ProviderCostUSD == nil || *got.ProviderCostUSD != 0.041 {
				t.Errorf("ProviderCostUSD = %v, want 0.041", got.ProviderCostUSD)
			}
			if got.ActualCostUSD != nil {
				t.Errorf("ActualCostUSD = %v, want nil", *got.ActualCostUSD)
			}
			if !got.CreatedAt.Equal(base) {
				t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, base)
			}
		})
	}
}

func TestCostRecord_GetByID_NotFound(t *testing.T) {
	for name, repo := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			got, err := repo.GetByID(context.Background(), "missing")
			if err != nil {
				t.Fatalf("GetByID() error = %v", err)
			}
			if got != nil {
				t.Errorf("GetByID() = %+v, want nil", got)
			}
		})
	}
}

func TestCostRecord_AppendDuplicateID(t *testing.T) {
	for name, repo := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := testCostRecord("dup", "user-1", models.OperationImageGeneration, 0.04, base)
			if err := repo.Append(ctx, rec); err != nil {
				t.Fatalf("Append() error = %v", err)
			}
			if err := repo.Append(ctx, rec); err == nil {
				t.Error("second Append() with the same id should fail")
			}
		})
	}
}

// ========================================
// Query Tests
// ========================================

func TestCostRecord_Query(t *testing.T) {
	for name, repo := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []*models.OperationCostRecord{
				testCostRecord("a", "user-1", models.OperationImageGeneration, 0.04, base),
				testCostRecord("b", "user-1", models.OperationImageAnalysis, 0.01, base.Add(time.Hour)),
				testCostRecord("c", "user-2", models.OperationVirtualStaging, 0.05, base.Add(2*time.Hour)),
				testCostRecord("d", "user-1", models.OperationVirtualStaging, 0, base.Add(48*time.Hour)),
			}
			for _, rec := range seed {
				if err := repo.Append(ctx, rec); err != nil {
					t.Fatalf("Append(%s) error = %v", rec.ID, err)
				}
			}

			tests := []struct {
				name   string
				userID string
				dr     models.DateRange
				want   []string
			}{
				{"all users open range", "", models.DateRange{}, []string{"a", "b", "c", "d"}},
				{"single user", "user-1", models.DateRange{}, []string{"a", "b", "d"}},
				{"from is inclusive", "user-1", models.DateRange{From: base.Add(time.Hour)}, []string{"b", "d"}},
				{"to is exclusive", "", models.DateRange{To: base.Add(2 * time.Hour)}, []string{"a", "b"}},
				{"window", "", models.DateRange{From: base.Add(30 * time.Minute), To: base.Add(24 * time.Hour)}, []string{"b", "c"}},
				{"unknown user", "user-9", models.DateRange{}, nil},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					got, err := repo.Query(ctx, tt.userID, tt.dr)
					if err != nil {
						t.Fatalf("Query() error = %v", err)
					}
					if len(got) != len(tt.want) {
						t.Fatalf("Query() returned %d records, want %d", len(got), len(tt.want))
					}
					for i, id := range tt.want {
						if got[i].ID != id {
							t.Errorf("record %d = %s, want %s", i, got[i].ID, id)
						}
					}
				})
			}
		})
	}
}

// ========================================
// Actual Cost Amendment Tests
// ========================================

func TestCostRecord_SetActualCost(t *testing.T) {
	for name, repo := range ledgers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Append(ctx, testCostRecord("r", "user-1", models.OperationImageGeneration, 0.04, base)); err != nil {
				t.Fatalf("Append() error = %v", err)
			}

			if err := repo.SetActualCost(ctx, "r", 0.035); err != nil {
				t.Fatalf("SetActualCost() error = %v", err)
			}
			got, _ := repo.GetByID(ctx, "r")
			if got.ActualCostUSD == nil || *got.ActualCostUSD != 0.035 {
				t.Errorf("ActualCostUSD = %v, want 0.035", got.ActualCostUSD)
			}
			if got.EstimatedCostUSD != 0.04 {
				t.Errorf("estimate must be preserved, got %v", got.EstimatedCostUSD)
			}

			if err := repo.SetActualCost(ctx, "missing", 1); !errors.Is(err, ErrNotFound) {
				t.Errorf("SetActualCost(missing) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestMemoryCostRecord_ConcurrentAppend(t *testing.T) {
	repo := NewMemoryCostRecordRepository()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := testCostRecord(fmt.Sprintf("rec-%d", i), "user-1", models.OperationImageGeneration, 0.04, base)
			if err := repo.Append(ctx, rec); err != nil {
				t.Errorf("Append() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if repo.Len() != 50 {
		t.Errorf("Len() = %d, want 50", repo.Len())
	}
}
