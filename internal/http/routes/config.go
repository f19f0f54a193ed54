package routes

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/http/mw"
	"github.com/lukas-andre/decollage-cl-sub000/internal/version"
)

// NewHumaConfig creates the shared Huma configuration for the API.
// This includes API metadata, security schemes, and tag definitions.
func NewHumaConfig(baseURL string) huma.Config {
	cfg := huma.DefaultConfig("Decollage API", version.Get().Short())
	cfg.Info.Description = "AI virtual staging: routed image generation with retries, provider fallback and cost accounting."

	// Disable $schema field in responses
	cfg.CreateHooks = nil

	if baseURL != "" {
		cfg.Servers = []*huma.Server{
			{URL: baseURL, Description: "API Server"},
		}
	}

	cfg.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		mw.SecurityScheme: {
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
			Description:  "Session token issued by the decollage web app, sent as `Bearer <token>`.",
		},
	}

	cfg.Tags = []*huma.Tag{
		{Name: "Staging", Description: "Virtual staging generation and room analysis", Extensions: map[string]any{"x-displayName": "Staging"}},
		{Name: "Batches", Description: "Multi-image batch generation", Extensions: map[string]any{"x-displayName": "Batches"}},
		{Name: "Catalog", Description: "Styles and provider availability", Extensions: map[string]any{"x-displayName": "Catalog"}},
		{Name: "Tokens", Description: "Generation token balance", Extensions: map[string]any{"x-displayName": "Tokens"}},
		{Name: "Usage", Description: "Operation costs", Extensions: map[string]any{"x-displayName": "Usage"}},
		{Name: "Admin", Description: "Platform administration", Extensions: map[string]any{"x-displayName": "Admin"}},
		{Name: "Health", Description: "System health and status", Extensions: map[string]any{"x-displayName": "Health"}},
	}

	return cfg
}
