package handlers

import (
	"context"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
	"github.com/lukas-andre/decollage-cl-sub000/internal/router"
)

// Stager is the orchestration surface the staging endpoints need.
type Stager interface {
	Generate(ctx context.Context, req *models.GenerationRequest) *models.GenerationResult
	AnalyzeRoom(ctx context.Context, userID string, image models.ImageInput) *models.RoomAnalysis
	Validate(req *models.GenerationRequest) error
	EstimateRequest(req *models.GenerationRequest) (models.CostEstimate, string, error)
	EstimateCost(p cost.Params) (models.CostEstimate, error)
	Styles() []prompt.Style
	Providers() []router.Status
}

// StagingHandler handles generation, analysis and catalog endpoints.
type StagingHandler struct {
	svc Stager
}

// NewStagingHandler creates a new staging handler.
func NewStagingHandler(svc Stager) *StagingHandler {
	return &StagingHandler{svc: svc}
}

// ImageBody is an uploaded photo.
type ImageBody struct {
	Data     []byte `json:"data" doc:"Base64-encoded image bytes"`
	MimeType string `json:"mime_type" doc:"image/jpeg, image/png or image/webp"`
}

func (b *ImageBody) toModel() *models.ImageInput {
	if b == nil {
		return nil
	}
	return &models.ImageInput{Data: b.Data, MimeType: b.MimeType}
}

// GenerationBody is a staging request as sent by clients.
type GenerationBody struct {
	Image         *ImageBody         `json:"image,omitempty" doc:"Source photo; omit for text-to-image"`
	StyleID       string             `json:"style_id,omitempty" doc:"Named style from GET /styles"`
	CustomStyleID string             `json:"custom_style_id,omitempty" doc:"Custom style from the style catalog"`
	RoomType      string             `json:"room_type,omitempty" example:"living_room"`
	Environment   string             `json:"environment,omitempty" doc:"interior, exterior or commercial"`
	Instructions  string             `json:"instructions,omitempty" maxLength:"2000"`
	FurnitureMode string             `json:"furniture_mode,omitempty" doc:"replace, preserve or empty"`
	Dimensions    *models.Dimensions `json:"dimensions,omitempty"`
	ColorScheme   string             `json:"color_scheme,omitempty"`
	Provider      string             `json:"provider,omitempty" doc:"Force a provider instead of routing by quality"`
	Quality       string             `json:"quality,omitempty" doc:"standard or high"`
	ImageCount    int                `json:"image_count,omitempty" doc:"Images to generate (default 1)"`
	Priority      bool               `json:"priority,omitempty" doc:"Use the longer retry policy"`
	Premium       bool               `json:"premium,omitempty"`
}

func (b *GenerationBody) toRequest(userID string) *models.GenerationRequest {
	return &models.GenerationRequest{
		UserID:        userID,
		Image:         b.Image.toModel(),
		StyleID:       b.StyleID,
		CustomStyleID: b.CustomStyleID,
		RoomType:      b.RoomType,
		Environment:   models.Environment(b.Environment),
		Instructions:  b.Instructions,
		FurnitureMode: models.FurnitureMode(b.FurnitureMode),
		Dimensions:    b.Dimensions,
		ColorScheme:   b.ColorScheme,
		Provider:      b.Provider,
		Quality:       b.Quality,
		ImageCount:    b.ImageCount,
		Priority:      b.Priority,
		Premium:       b.Premium,
	}
}

// ========================================
// Generate
// ========================================

// GenerateInput represents a synchronous generation request.
type GenerateInput struct {
	Body GenerationBody
}

// GenerateOutput represents a successful generation.
type GenerateOutput struct {
	Body *models.GenerationResult
}

// Generate runs one staging generation and waits for the result.
func (h *StagingHandler) Generate(ctx context.Context, input *GenerateInput) (*GenerateOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	res := h.svc.Generate(ctx, input.Body.toRequest(userID))
	if !res.Success {
		return nil, newGenerationError(res)
	}
	return &GenerateOutput{Body: res}, nil
}

// ========================================
// Analyze
// ========================================

// AnalyzeRoomInput represents a room analysis request.
type AnalyzeRoomInput struct {
	Body struct {
		Image ImageBody `json:"image"`
	}
}

// AnalyzeRoomOutput represents a successful analysis.
type AnalyzeRoomOutput struct {
	Body *models.RoomAnalysis
}

// AnalyzeRoom suggests a room type and environment for a photo.
func (h *StagingHandler) AnalyzeRoom(ctx context.Context, input *AnalyzeRoomInput) (*AnalyzeRoomOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	res := h.svc.AnalyzeRoom(ctx, userID, *input.Body.Image.toModel())
	if !res.Success {
		return nil, newOperationError(res.Error, res.CorrelationID)
	}
	return &AnalyzeRoomOutput{Body: res}, nil
}

// ========================================
// Estimate
// ========================================

// EstimateInput prices either a full generation request or a bare operation.
type EstimateInput struct {
	Body struct {
		Request      *GenerationBody `json:"request,omitempty" doc:"Price this request against the provider it would be routed to"`
		Operation    string          `json:"operation,omitempty" enum:"text_generation,image_generation,image_analysis,virtual_staging"`
		Provider     string          `json:"provider,omitempty"`
		Model        string          `json:"model,omitempty"`
		Images       int             `json:"images,omitempty"`
		InputTokens  int             `json:"input_tokens,omitempty"`
		OutputTokens int             `json:"output_tokens,omitempty"`
		Premium      bool            `json:"premium,omitempty"`
	}
}

// EstimateOutput represents a cost estimate.
type EstimateOutput struct {
	Body struct {
		USD          float64 `json:"usd"`
		CLP          float64 `json:"clp"`
		CLPFormatted string  `json:"clp_formatted" doc:"CLP amount formatted for display"`
		Provider     string  `json:"provider,omitempty"`
	}
}

// Estimate prices an operation without running it.
func (h *StagingHandler) Estimate(ctx context.Context, input *EstimateInput) (*EstimateOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	var (
		est      models.CostEstimate
		provider string
		err      error
	)
	if input.Body.Request != nil {
		req := input.Body.Request.toRequest(userID)
		if err := h.svc.Validate(req); err != nil {
			return nil, serviceError(err, "failed to estimate cost")
		}
		est, provider, err = h.svc.EstimateRequest(req)
	} else {
		if input.Body.Operation == "" {
			return nil, huma.Error422UnprocessableEntity("request or operation is required")
		}
		provider = strings.ToLower(input.Body.Provider)
		est, err = h.svc.EstimateCost(cost.Params{
			Operation:    models.OperationType(input.Body.Operation),
			Provider:     provider,
			Model:        input.Body.Model,
			Images:       input.Body.Images,
			InputTokens:  input.Body.InputTokens,
			OutputTokens: input.Body.OutputTokens,
			Premium:      input.Body.Premium,
		})
	}
	if err != nil {
		return nil, huma.Error422UnprocessableEntity(err.Error())
	}

	out := &EstimateOutput{}
	out.Body.USD = est.USD
	out.Body.CLP = est.CLP
	out.Body.CLPFormatted = cost.FormatCLP(est.CLP)
	out.Body.Provider = provider
	return out, nil
}

// ========================================
// Catalog
// ========================================

// ListStylesOutput represents the style catalog.
type ListStylesOutput struct {
	Body struct {
		Styles []prompt.Style `json:"styles"`
	}
}

// ListStyles returns the named staging styles.
func (h *StagingHandler) ListStyles(ctx context.Context, input *struct{}) (*ListStylesOutput, error) {
	out := &ListStylesOutput{}
	out.Body.Styles = h.svc.Styles()
	return out, nil
}

// ListProvidersOutput represents provider availability.
type ListProvidersOutput struct {
	Body struct {
		Providers []router.Status `json:"providers"`
	}
}

// ListProviders returns providers in routing order with breaker state.
func (h *StagingHandler) ListProviders(ctx context.Context, input *struct{}) (*ListProvidersOutput, error) {
	out := &ListProvidersOutput{}
	out.Body.Providers = h.svc.Providers()
	return out, nil
}
