package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/http/mw"
)

// Register registers all API routes on one Huma API. The OpenAPI generator
// uses it; the server splits public and protected routes across two APIs.
func Register(api huma.API, h *Handlers) {
	RegisterPublic(api, h)
	RegisterProtected(api, h)
}

// RegisterPublic registers routes that need no authentication.
func RegisterPublic(api huma.API, h *Handlers) {
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))

	// Kubernetes probes (hidden from docs - internal use only)
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)

	mw.PublicGet(api, "/api/v1/styles", h.Staging.ListStyles,
		mw.WithTags("Catalog"),
		mw.WithSummary("List staging styles"),
		mw.WithOperationID("listStyles"))
}

// RegisterProtected registers routes that require bearer auth.
func RegisterProtected(api huma.API, h *Handlers) {
	// --- Staging ---
	mw.ProtectedPost(api, "/api/v1/generations", h.Staging.Generate,
		mw.WithTags("Staging"),
		mw.WithSummary("Generate a staged image"),
		mw.WithDescription("Runs the generation synchronously. The request is routed by quality, retried with backoff and falls back to the next provider when the selected one fails."),
		mw.WithOperationID("createGeneration"))
	mw.ProtectedPost(api, "/api/v1/analyses", h.Staging.AnalyzeRoom,
		mw.WithTags("Staging"),
		mw.WithSummary("Analyze a room photo"),
		mw.WithOperationID("createAnalysis"))
	mw.ProtectedPost(api, "/api/v1/estimate", h.Staging.Estimate,
		mw.WithTags("Staging"),
		mw.WithSummary("Estimate operation cost"),
		mw.WithOperationID("estimateCost"))

	// --- Catalog ---
	mw.ProtectedGet(api, "/api/v1/providers", h.Staging.ListProviders,
		mw.WithTags("Catalog"),
		mw.WithSummary("List providers with circuit state"),
		mw.WithOperationID("listProviders"))

	// --- Batches ---
	mw.ProtectedPost(api, "/api/v1/batches", h.Batch.CreateBatch,
		mw.WithTags("Batches"),
		mw.WithSummary("Submit a batch"),
		mw.WithOperationID("createBatch"))
	mw.ProtectedGet(api, "/api/v1/batches/{id}", h.Batch.GetBatch,
		mw.WithTags("Batches"),
		mw.WithSummary("Get batch status and result"),
		mw.WithOperationID("getBatch"))

	// --- Tokens ---
	mw.ProtectedGet(api, "/api/v1/tokens", h.Token.GetBalance,
		mw.WithTags("Tokens"),
		mw.WithSummary("Get token balance"),
		mw.WithOperationID("getTokenBalance"))
	mw.ProtectedGet(api, "/api/v1/tokens/transactions", h.Token.ListTransactions,
		mw.WithTags("Tokens"),
		mw.WithSummary("List token transactions"),
		mw.WithOperationID("listTokenTransactions"))

	// --- Usage ---
	mw.ProtectedGet(api, "/api/v1/usage", h.Usage.GetUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Get cost summary"),
		mw.WithOperationID("getUsage"))

	// =========================================================================
	// Admin Routes (require the admin role)
	// =========================================================================

	mw.ProtectedGet(api, "/api/v1/admin/usage", h.Usage.GetPlatformUsage,
		mw.WithTags("Admin"),
		mw.WithSummary("Get platform cost summary"),
		mw.WithOperationID("adminGetUsage"),
		mw.WithAdmin())
	mw.ProtectedPost(api, "/api/v1/admin/tokens", h.Token.GrantTokens,
		mw.WithTags("Admin"),
		mw.WithSummary("Grant tokens to a user"),
		mw.WithOperationID("adminGrantTokens"),
		mw.WithAdmin())
	mw.ProtectedPut(api, "/api/v1/admin/cost-records/{id}/actual", h.Usage.AmendActualCost,
		mw.WithTags("Admin"),
		mw.WithSummary("Amend the actual cost of a record"),
		mw.WithOperationID("adminAmendActualCost"),
		mw.WithAdmin())
}
