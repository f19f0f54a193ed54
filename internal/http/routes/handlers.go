// Package routes provides shared route registration for the decollage API.
// This allows both the main server and the OpenAPI generator to use
// the same route definitions, so the OpenAPI document always matches the server.
package routes

import (
	"context"

	"github.com/lukas-andre/decollage-cl-sub000/internal/http/handlers"
)

// StagingHandlers defines the interface for generation and catalog operations.
type StagingHandlers interface {
	Generate(ctx context.Context, input *handlers.GenerateInput) (*handlers.GenerateOutput, error)
	AnalyzeRoom(ctx context.Context, input *handlers.AnalyzeRoomInput) (*handlers.AnalyzeRoomOutput, error)
	Estimate(ctx context.Context, input *handlers.EstimateInput) (*handlers.EstimateOutput, error)
	ListStyles(ctx context.Context, input *struct{}) (*handlers.ListStylesOutput, error)
	ListProviders(ctx context.Context, input *struct{}) (*handlers.ListProvidersOutput, error)
}

// BatchHandlers defines the interface for batch operations.
type BatchHandlers interface {
	CreateBatch(ctx context.Context, input *handlers.CreateBatchInput) (*handlers.CreateBatchOutput, error)
	GetBatch(ctx context.Context, input *handlers.GetBatchInput) (*handlers.GetBatchOutput, error)
}

// TokenHandlers defines the interface for token balance operations.
type TokenHandlers interface {
	GetBalance(ctx context.Context, input *struct{}) (*handlers.GetBalanceOutput, error)
	ListTransactions(ctx context.Context, input *handlers.ListTransactionsInput) (*handlers.ListTransactionsOutput, error)
	// Admin only
	GrantTokens(ctx context.Context, input *handlers.GrantTokensInput) (*handlers.GrantTokensOutput, error)
}

// UsageHandlers defines the interface for cost ledger operations.
type UsageHandlers interface {
	GetUsage(ctx context.Context, input *handlers.UsageRangeInput) (*handlers.GetUsageOutput, error)
	// Admin only
	GetPlatformUsage(ctx context.Context, input *handlers.UsageRangeInput) (*handlers.GetPlatformUsageOutput, error)
	AmendActualCost(ctx context.Context, input *handlers.AmendActualCostInput) (*handlers.AmendActualCostOutput, error)
}

// Handlers aggregates all handler interfaces for route registration.
// For the main server, pass real handler implementations.
// For OpenAPI generation, pass StubHandlers.
type Handlers struct {
	// Public endpoints
	HealthCheck func(ctx context.Context, input *struct{}) (*handlers.HealthCheckOutput, error)

	// Kubernetes probes (hidden from docs)
	Livez  func(ctx context.Context, input *struct{}) (*handlers.LivezOutput, error)
	Readyz func(ctx context.Context, input *struct{}) (*handlers.ReadyzOutput, error)

	// Protected endpoint handlers
	Staging StagingHandlers
	Batch   BatchHandlers
	Token   TokenHandlers
	Usage   UsageHandlers
}

// StubHandlers returns handlers without backing services. Huma only needs
// the function signatures to build the OpenAPI document.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(nil).Readyz,
		Staging:     handlers.NewStagingHandler(nil),
		Batch:       handlers.NewBatchHandler(nil, nil),
		Token:       handlers.NewTokenHandler(nil),
		Usage:       handlers.NewUsageHandler(nil),
	}
}
