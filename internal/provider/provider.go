// Package provider implements the image-generation vendors behind a common
// interface. Wire formats stay inside each implementation.
package provider

import (
	"context"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// Provider names.
const (
	NameGemini = "gemini"
	NameFal    = "fal"
)

// Capabilities advertised through Info.
const (
	CapabilityTextToImage  = "text_to_image"
	CapabilityImageToImage = "image_to_image"
	CapabilityInlineOutput = "inline_output"
	CapabilityURLOutput    = "url_output"
	CapabilityUsageReport  = "usage_metadata"
)

// Provider is implemented once per image-generation vendor.
type Provider interface {
	// Name returns the provider identifier used for routing and ledger records.
	Name() string

	// TestConnection reports whether the vendor is reachable with the configured credentials.
	TestConnection(ctx context.Context) bool

	// GenerateStaging renders the prompt, optionally against a source photo.
	// A nil image means text-to-image mode.
	GenerateStaging(ctx context.Context, image *models.ImageInput, prompt string, opts Options) (*Output, error)

	// GetInfo describes the provider.
	GetInfo() Info
}

// Options are per-call generation settings.
type Options struct {
	ImageCount int
	Dimensions *models.Dimensions
	Quality    string
}

// Info describes a provider's capabilities and list price.
type Info struct {
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Capabilities []string `json:"capabilities"`
	CostPerImage float64  `json:"cost_per_image_usd"`
	MaxBatchSize int      `json:"max_batch_size"`
}

// Output is the raw result of a successful provider call.
type Output struct {
	Images []models.GeneratedImage
	Model  string

	// BilledImages counts images the vendor charged for, including ones
	// filtered out of Images. Zero means len(Images).
	BilledImages int

	// Usage is nil when the vendor does not report token counts.
	Usage *models.TokenUsage
}

func imageCount(opts Options) int {
	if opts.ImageCount <= 0 {
		return 1
	}
	return opts.ImageCount
}
