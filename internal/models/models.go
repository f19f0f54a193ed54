// Package models defines the domain models for the application.
package models

import (
	"time"
)

// ========================================
// Generation Requests
// ========================================

// Quality tiers accepted on a generation request.
const (
	QualityStandard = "standard"
	QualityHigh     = "high"
)

// Environment identifies what kind of space a photo shows.
type Environment string

const (
	EnvironmentInterior   Environment = "interior"
	EnvironmentExterior   Environment = "exterior"
	EnvironmentCommercial Environment = "commercial"
)

// Valid reports whether e is a known environment.
func (e Environment) Valid() bool {
	switch e {
	case EnvironmentInterior, EnvironmentExterior, EnvironmentCommercial:
		return true
	}
	return false
}

// FurnitureMode controls how existing furniture is treated.
type FurnitureMode string

const (
	FurnitureReplace  FurnitureMode = "replace"  // Restage the room from scratch
	FurniturePreserve FurnitureMode = "preserve" // Keep existing pieces, restyle around them
	FurnitureEmpty    FurnitureMode = "empty"    // Remove all furniture
)

// ImageInput is an uploaded photo.
type ImageInput struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mime_type"`
}

// Dimensions are optional output size hints.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// GenerationRequest describes one virtual staging generation.
// A nil Image means text-to-image mode.
type GenerationRequest struct {
	UserID        string        `json:"user_id"`
	Image         *ImageInput   `json:"image,omitempty"`
	StyleID       string        `json:"style_id,omitempty"`
	CustomStyleID string        `json:"custom_style_id,omitempty"`
	RoomType      string        `json:"room_type,omitempty"`
	Environment   Environment   `json:"environment,omitempty"`
	Instructions  string        `json:"instructions,omitempty"`
	FurnitureMode FurnitureMode `json:"furniture_mode,omitempty"`
	Dimensions    *Dimensions   `json:"dimensions,omitempty"`
	ColorScheme   string        `json:"color_scheme,omitempty"`
	Provider      string        `json:"provider,omitempty"` // Explicit provider override
	Quality       string        `json:"quality,omitempty"`
	ImageCount    int           `json:"image_count,omitempty"`
	Priority      bool          `json:"priority,omitempty"` // Use the higher-budget retry policy
	Premium       bool          `json:"premium,omitempty"`  // Apply the premium cost multiplier
}

// Images returns the requested image count, defaulting to one.
func (r *GenerationRequest) Images() int {
	if r.ImageCount <= 0 {
		return 1
	}
	return r.ImageCount
}

// TextToImage reports whether the request has no source photo.
func (r *GenerationRequest) TextToImage() bool {
	return r.Image == nil
}

// ========================================
// Generation Results
// ========================================

// TokenUsage is provider-reported token usage.
type TokenUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// GeneratedImage is one output image. Either Data or URL is set, possibly both
// once inline data has been uploaded to storage.
type GeneratedImage struct {
	Data     []byte `json:"data,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
}

// CostEstimate carries a cost in the billing and display currencies.
type CostEstimate struct {
	USD float64 `json:"usd"`
	CLP float64 `json:"clp"`
}

// GenerationError is the caller-visible failure of a generation.
type GenerationError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *GenerationError) Error() string {
	return string(e.Kind) + ": " + e.Message
}

// GenerationResult is the outcome of a Generate call.
// Success and Error are never both populated.
type GenerationResult struct {
	Success        bool             `json:"success"`
	CorrelationID  string           `json:"correlation_id"`
	Images         []GeneratedImage `json:"images,omitempty"`
	Provider       string           `json:"provider,omitempty"`
	Model          string           `json:"model,omitempty"`
	Duration       time.Duration    `json:"duration"`
	Usage          *TokenUsage      `json:"usage,omitempty"`
	Cost           CostEstimate     `json:"cost"`
	EstimatedCost  CostEstimate     `json:"estimated_cost"`
	Attempts       int              `json:"attempts"`
	ProvidersTried []string         `json:"providers_tried,omitempty"`
	Error          *GenerationError `json:"error,omitempty"`
}

// ========================================
// Error Taxonomy
// ========================================

// ErrorKind classifies a failed operation.
type ErrorKind string

const (
	ErrorKindValidation         ErrorKind = "validation"
	ErrorKindRetryable          ErrorKind = "retryable_provider"
	ErrorKindNonRetryable       ErrorKind = "non_retryable_provider"
	ErrorKindExhaustedRetries   ErrorKind = "exhausted_retries"
	ErrorKindCircuitOpen        ErrorKind = "circuit_open"
	ErrorKindCostRecording      ErrorKind = "cost_recording"
	ErrorKindInsufficientTokens ErrorKind = "insufficient_tokens"
	ErrorKindInternal           ErrorKind = "internal"
)

// ========================================
// Room Analysis
// ========================================

// RoomAnalysis is the result of analyzing an uploaded photo.
type RoomAnalysis struct {
	Success       bool             `json:"success"`
	CorrelationID string           `json:"correlation_id"`
	RoomType      string           `json:"room_type,omitempty"`
	Environment   Environment      `json:"environment,omitempty"`
	Description   string           `json:"description,omitempty"`
	Suggestions   []string         `json:"suggestions,omitempty"`
	Usage         *TokenUsage      `json:"usage,omitempty"`
	Cost          CostEstimate     `json:"cost"`
	Error         *GenerationError `json:"error,omitempty"`
}
