package provider

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/version"
)

// fal defaults.
const (
	DefaultFalBaseURL   = "https://fal.run"
	DefaultFalModel     = "fal-ai/flux/dev/image-to-image"
	DefaultFalTextModel = "fal-ai/flux/dev"

	// FalSchnellModel is billed at a special-cased lower rate.
	FalSchnellModel = "fal-ai/flux/schnell"

	FalCostPerImage        = 0.04
	FalSchnellCostPerImage = 0.003

	falMaxBatchSize = 4
)

// FalCostPerImageFor returns the per-image list price for a fal model.
func FalCostPerImageFor(model string) float64 {
	if model == FalSchnellModel {
		return FalSchnellCostPerImage
	}
	return FalCostPerImage
}

// FalConfig configures the fal provider.
type FalConfig struct {
	APIKey  string
	BaseURL string
	// Model serves requests with a source photo, TextModel those without.
	Model     string
	TextModel string
	Timeout   time.Duration
}

// Fal is the speed-oriented provider. It returns hosted image URLs and no
// token usage.
type Fal struct {
	client    *resty.Client
	model     string
	textModel string
	logger    *slog.Logger
}

// NewFal creates a fal provider.
func NewFal(cfg FalConfig, logger *slog.Logger) *Fal {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultFalBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultFalModel
	}
	if cfg.TextModel == "" {
		cfg.TextModel = DefaultFalTextModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetHeader("Authorization", "Key "+cfg.APIKey)

	return &Fal{
		client:    client,
		model:     cfg.Model,
		textModel: cfg.TextModel,
		logger:    logger.With("component", "provider", "provider", NameFal),
	}
}

// Name implements Provider.
func (f *Fal) Name() string { return NameFal }

// GetInfo implements Provider.
func (f *Fal) GetInfo() Info {
	return Info{
		Name:  NameFal,
		Model: f.model,
		Capabilities: []string{
			CapabilityTextToImage,
			CapabilityImageToImage,
			CapabilityURLOutput,
		},
		CostPerImage: FalCostPerImageFor(f.model),
		MaxBatchSize: falMaxBatchSize,
	}
}

// modelFor picks the endpoint for the request mode. Image-to-image endpoints
// reject requests without image_url.
func (f *Fal) modelFor(image *models.ImageInput) string {
	if image == nil || len(image.Data) == 0 {
		return f.textModel
	}
	return f.model
}

// TestConnection implements Provider. fal has no cheap ping endpoint; any
// answer other than an auth failure or a server error counts as reachable.
func (f *Fal) TestConnection(ctx context.Context) bool {
	resp, err := f.client.R().
		SetContext(ctx).
		Get("/" + f.model)
	if err != nil {
		f.logger.Debug("connection test failed", "error", err)
		return false
	}
	code := resp.StatusCode()
	return code != http.StatusUnauthorized && code != http.StatusForbidden && code < 500
}

type falImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type falRequest struct {
	Prompt              string        `json:"prompt"`
	ImageURL            string        `json:"image_url,omitempty"`
	NumImages           int           `json:"num_images"`
	ImageSize           *falImageSize `json:"image_size,omitempty"`
	OutputFormat        string        `json:"output_format"`
	EnableSafetyChecker bool          `json:"enable_safety_checker"`
	SyncMode            bool          `json:"sync_mode"`
}

type falResponse struct {
	Images []struct {
		URL         string `json:"url"`
		ContentType string `json:"content_type"`
		Width       int    `json:"width"`
		Height      int    `json:"height"`
	} `json:"images"`
	Seed            int64  `json:"seed"`
	HasNSFWConcepts []bool `json:"has_nsfw_concepts"`
	Prompt          string `json:"prompt"`
}

type falErrorResponse struct {
	Detail any `json:"detail"`
}

// GenerateStaging implements Provider.
func (f *Fal) GenerateStaging(ctx context.Context, image *models.ImageInput, prompt string, opts Options) (*Output, error) {
	model := f.modelFor(image)
	if strings.TrimSpace(prompt) == "" {
		return nil, Classify(errors.New("empty prompt"), NameFal, model, http.StatusBadRequest)
	}

	n := imageCount(opts)
	if n > falMaxBatchSize {
		n = falMaxBatchSize
	}

	body := falRequest{
		Prompt:              prompt,
		NumImages:           n,
		OutputFormat:        "jpeg",
		EnableSafetyChecker: true,
		SyncMode:            false,
	}
	if image != nil && len(image.Data) > 0 {
		body.ImageURL = fmt.Sprintf("data:%s;base64,%s", image.MimeType, base64.StdEncoding.EncodeToString(image.Data))
	}
	if opts.Dimensions != nil && opts.Dimensions.Width > 0 && opts.Dimensions.Height > 0 {
		body.ImageSize = &falImageSize{Width: opts.Dimensions.Width, Height: opts.Dimensions.Height}
	}

	var result falResponse
	var apiErr falErrorResponse
	resp, err := f.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post("/" + model)
	if err != nil {
		return nil, Wrap(fmt.Errorf("fal request failed: %w", err), NameFal, model)
	}

	if resp.IsError() {
		msg := falDetail(apiErr.Detail)
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		return nil, Classify(errors.New(msg), NameFal, model, resp.StatusCode())
	}

	// Filtered images are still billed.
	out := &Output{Model: model, BilledImages: len(result.Images)}
	for i, img := range result.Images {
		if i < len(result.HasNSFWConcepts) && result.HasNSFWConcepts[i] {
			continue
		}
		if img.URL == "" {
			continue
		}
		mime := img.ContentType
		if mime == "" {
			mime = "image/jpeg"
		}
		out.Images = append(out.Images, models.GeneratedImage{URL: img.URL, MimeType: mime})
	}

	if len(out.Images) == 0 {
		if len(result.HasNSFWConcepts) > 0 {
			return nil, Classify(errors.New("all images flagged nsfw"), NameFal, model, 0)
		}
		return nil, &ProviderError{
			Err:      ErrNoImage,
			Provider: NameFal,
			Model:    model,
			Code:     CodeNoImage,
			Message:  "response contained no image",
			sentinel: ErrNoImage,
		}
	}

	f.logger.Debug("generation completed",
		"model", model,
		"images", len(out.Images),
		"billed_images", out.BilledImages,
		"seed", result.Seed,
	)
	return out, nil
}

// falDetail flattens fal's error detail, which is either a string or a list
// of validation entries.
func falDetail(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []any:
		var msgs []string
		for _, entry := range d {
			if m, ok := entry.(map[string]any); ok {
				if s, ok := m["msg"].(string); ok {
					msgs = append(msgs, s)
				}
			}
		}
		return strings.Join(msgs, "; ")
	}
	return ""
}
