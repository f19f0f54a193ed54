package models

import "time"

// ========================================
// Cost Ledger
// ========================================

// OperationType is the kind of billable AI operation.
type OperationType string

const (
	OperationTextGeneration  OperationType = "text_generation"
	OperationImageGeneration OperationType = "image_generation"
	OperationImageAnalysis   OperationType = "image_analysis"
	OperationVirtualStaging  OperationType = "virtual_staging"
)

// OperationCostRecord is an append-only ledger entry. Records are created once
// when an operation completes and only ever amended with an actual cost.
type OperationCostRecord struct {
	ID               string        `json:"id"`
	CorrelationID    string        `json:"correlation_id"`
	UserID           string        `json:"user_id"`
	Operation        OperationType `json:"operation"`
	Provider         string        `json:"provider"`
	Model            string        `json:"model"`
	InputTokens      int           `json:"input_tokens"`
	OutputTokens     int           `json:"output_tokens"`
	ImageCount       int           `json:"image_count"`
	EstimatedCostUSD float64       `json:"estimated_cost_usd"`
	EstimatedCostCLP float64       `json:"estimated_cost_clp"`
	ActualCostUSD    *float64      `json:"actual_cost_usd,omitempty"`
	ProviderCostUSD  *float64      `json:"provider_cost_usd,omitempty"` // Vendor-native cost when known
	Premium          bool          `json:"premium"`
	Success          bool          `json:"success"`
	ErrorKind        ErrorKind     `json:"error_kind,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
}

// EffectiveCostUSD returns the actual cost when amended, otherwise the estimate.
func (r *OperationCostRecord) EffectiveCostUSD() float64 {
	if r.ActualCostUSD != nil {
		return *r.ActualCostUSD
	}
	return r.EstimatedCostUSD
}

// DateRange is an inclusive-exclusive time window [From, To).
// A zero bound is open.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether t falls inside the range.
func (d DateRange) Contains(t time.Time) bool {
	if !d.From.IsZero() && t.Before(d.From) {
		return false
	}
	if !d.To.IsZero() && !t.Before(d.To) {
		return false
	}
	return true
}

// OperationBreakdown aggregates one operation type.
type OperationBreakdown struct {
	Count   int     `json:"count"`
	Images  int     `json:"images"`
	CostUSD float64 `json:"cost_usd"`
	CostCLP float64 `json:"cost_clp"`
}

// CostSummary folds ledger records into totals.
type CostSummary struct {
	UserID            string                               `json:"user_id,omitempty"`
	TotalOperations   int                                  `json:"total_operations"`
	SuccessCount      int                                  `json:"success_count"`
	FailureCount      int                                  `json:"failure_count"`
	TotalImages       int                                  `json:"total_images"`
	TotalInputTokens  int                                  `json:"total_input_tokens"`
	TotalOutputTokens int                                  `json:"total_output_tokens"`
	TotalCostUSD      float64                              `json:"total_cost_usd"`
	TotalCostCLP      float64                              `json:"total_cost_clp"`
	AverageCostUSD    float64                              `json:"average_cost_usd"`
	AverageCostCLP    float64                              `json:"average_cost_clp"`
	ByOperation       map[OperationType]OperationBreakdown `json:"by_operation"`
}

// PlatformCostSummary adds cross-user figures to a summary.
type PlatformCostSummary struct {
	CostSummary
	UniqueUsers           int     `json:"unique_users"`
	AverageCostPerUserUSD float64 `json:"average_cost_per_user_usd"`
	AverageCostPerUserCLP float64 `json:"average_cost_per_user_clp"`
}

// ========================================
// Token Balances
// ========================================

// TokenTransactionKind is the direction of a token movement.
type TokenTransactionKind string

const (
	TokenDebit  TokenTransactionKind = "debit"  // Reserved for a generation
	TokenCredit TokenTransactionKind = "credit" // Compensation for a failed generation
	TokenGrant  TokenTransactionKind = "grant"  // Admin top-up
)

// TokenBalance is a user's spendable generation tokens.
type TokenBalance struct {
	UserID    string    `json:"user_id"`
	Balance   int64     `json:"balance"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TokenTransaction is the audit trail for token movements. (Reference, Kind)
// is unique so debits and credits are idempotent.
type TokenTransaction struct {
	ID           string               `json:"id"`
	UserID       string               `json:"user_id"`
	Kind         TokenTransactionKind `json:"kind"`
	Amount       int64                `json:"amount"`
	BalanceAfter int64                `json:"balance_after"`
	Reference    string               `json:"reference"`
	CreatedAt    time.Time            `json:"created_at"`
}

// ========================================
// Batch Jobs
// ========================================

// BatchJobStatus is the lifecycle state of an async batch.
type BatchJobStatus string

const (
	BatchJobPending   BatchJobStatus = "pending"
	BatchJobRunning   BatchJobStatus = "running"
	BatchJobCompleted BatchJobStatus = "completed"
	BatchJobFailed    BatchJobStatus = "failed"
)

// BatchItemFailure pairs a failed item with its error message.
type BatchItemFailure struct {
	ItemID string `json:"item_id"`
	Error  string `json:"error"`
}

// BatchItemResult is the stored outcome of one batch item.
type BatchItemResult struct {
	ItemID string            `json:"item_id"`
	Result *GenerationResult `json:"result,omitempty"`
}

// BatchResult is the combined outcome of a batch run.
type BatchResult struct {
	Total     int                `json:"total"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
	Failures  []BatchItemFailure `json:"failures"`
	Items     []BatchItemResult  `json:"items,omitempty"`
}

// BatchItem is one request inside a batch.
type BatchItem struct {
	ID      string            `json:"id"`
	Request GenerationRequest `json:"request"`
}

// BatchJob is a queued batch processed by the worker.
type BatchJob struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Status       BatchJobStatus `json:"status"`
	ItemCount    int            `json:"item_count"`
	ItemsJSON    string         `json:"-"`
	ResultJSON   string         `json:"-"`
	ErrorMessage string         `json:"error_message,omitempty"`
	StartedAt    *time.Time     `json:"started_at,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
