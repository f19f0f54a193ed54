package mw

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// SecurityScheme is the name of the security scheme used in OpenAPI.
const SecurityScheme = "bearerAuth"

// OperationMetadataKey is the key for storing additional operation requirements.
type OperationMetadataKey string

const (
	// MetaKeyRequireAdmin is metadata key for the admin role requirement.
	MetaKeyRequireAdmin OperationMetadataKey = "requireAdmin"
)

// HumaAuth returns a Huma middleware that enforces operation security against
// the claims placed in the request context by Auth.
func HumaAuth(api huma.API) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op == nil || !operationRequiresAuth(op) {
			next(ctx)
			return
		}

		claims := GetUserClaims(ctx.Context())
		if claims == nil || claims.UserID == "" {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "authentication required")
			return
		}

		if requiresAdmin(op) && !claims.IsAdmin {
			_ = huma.WriteErr(api, ctx, http.StatusForbidden, "admin access required")
			return
		}

		next(ctx)
	}
}

// operationRequiresAuth checks if the operation has bearerAuth in its security requirements.
func operationRequiresAuth(op *huma.Operation) bool {
	for _, secReq := range op.Security {
		if _, ok := secReq[SecurityScheme]; ok {
			return true
		}
	}
	return false
}

func requiresAdmin(op *huma.Operation) bool {
	if op.Metadata == nil {
		return false
	}
	b, _ := op.Metadata[string(MetaKeyRequireAdmin)].(bool)
	return b
}
