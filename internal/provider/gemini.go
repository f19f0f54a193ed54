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

// Gemini defaults.
const (
	DefaultGeminiBaseURL = "https://generativelanguage.googleapis.com"
	DefaultGeminiModel   = "gemini-2.5-flash-image-preview"

	// GeminiCostPerImage is the list price of one generated image in USD.
	GeminiCostPerImage = 0.039
)

var geminiSafetyCategories = []string{
	"HARM_CATEGORY_HARASSMENT",
	"HARM_CATEGORY_HATE_SPEECH",
	"HARM_CATEGORY_SEXUALLY_EXPLICIT",
	"HARM_CATEGORY_DANGEROUS_CONTENT",
}

// GeminiConfig configures the Gemini image provider.
type GeminiConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Gemini is the quality-oriented provider. It returns inline image data and
// reports token usage.
type Gemini struct {
	client *resty.Client
	model  string
	logger *slog.Logger
}

// NewGemini creates a Gemini provider.
func NewGemini(cfg GeminiConfig, logger *slog.Logger) *Gemini {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultGeminiBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultGeminiModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", version.UserAgent()).
		SetHeader("x-goog-api-key", cfg.APIKey)

	return &Gemini{
		client: client,
		model:  cfg.Model,
		logger: logger.With("component", "provider", "provider", NameGemini),
	}
}

// Name implements Provider.
func (g *Gemini) Name() string { return NameGemini }

// GetInfo implements Provider.
func (g *Gemini) GetInfo() Info {
	return Info{
		Name:  NameGemini,
		Model: g.model,
		Capabilities: []string{
			CapabilityTextToImage,
			CapabilityImageToImage,
			CapabilityInlineOutput,
			CapabilityUsageReport,
		},
		CostPerImage: GeminiCostPerImage,
		MaxBatchSize: 1,
	}
}

// TestConnection implements Provider by fetching the model resource.
func (g *Gemini) TestConnection(ctx context.Context) bool {
	resp, err := g.client.R().
		SetContext(ctx).
		Get("/v1beta/models/" + g.model)
	if err != nil {
		g.logger.Debug("connection test failed", "error", err)
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// Gemini REST wire types.

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
	SafetySettings   []geminiSafetySetting  `json:"safetySettings,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string      `json:"text,omitempty"`
	InlineData *geminiBlob `json:"inline_data,omitempty"`
}

type geminiBlob struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiGenerationConfig struct {
	ResponseModalities []string `json:"responseModalities"`
}

type geminiSafetySetting struct {
	Category  string `json:"category"`
	Threshold string `json:"threshold"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text       string `json:"text,omitempty"`
				InlineData *struct {
					MimeType string `json:"mimeType"`
					Data     string `json:"data"`
				} `json:"inlineData,omitempty"`
			} `json:"parts"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback *struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback,omitempty"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata,omitempty"`
}

type geminiErrorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// GenerateStaging implements Provider. Gemini returns one image per call, so
// multi-image requests issue sequential calls and sum the usage.
func (g *Gemini) GenerateStaging(ctx context.Context, image *models.ImageInput, prompt string, opts Options) (*Output, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, Classify(errors.New("empty prompt"), NameGemini, g.model, http.StatusBadRequest)
	}

	body := g.buildRequest(image, prompt)
	out := &Output{Model: g.model, Usage: &models.TokenUsage{}}

	for i := 0; i < imageCount(opts); i++ {
		img, usage, err := g.generateOne(ctx, body)
		if err != nil {
			return nil, err
		}
		out.Images = append(out.Images, img)
		if usage != nil {
			out.Usage.PromptTokens += usage.PromptTokens
			out.Usage.OutputTokens += usage.OutputTokens
			out.Usage.TotalTokens += usage.TotalTokens
		}
	}

	if out.Usage.TotalTokens == 0 && out.Usage.PromptTokens == 0 && out.Usage.OutputTokens == 0 {
		out.Usage = nil
	}

	g.logger.Debug("generation completed",
		"model", g.model,
		"images", len(out.Images),
		"image_to_image", image != nil,
	)
	return out, nil
}

func (g *Gemini) buildRequest(image *models.ImageInput, prompt string) geminiRequest {
	parts := []geminiPart{{Text: prompt}}
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, geminiPart{
			InlineData: &geminiBlob{
				MimeType: image.MimeType,
				Data:     base64.StdEncoding.EncodeToString(image.Data),
			},
		})
	}

	safety := make([]geminiSafetySetting, 0, len(geminiSafetyCategories))
	for _, c := range geminiSafetyCategories {
		safety = append(safety, geminiSafetySetting{Category: c, Threshold: "BLOCK_ONLY_HIGH"})
	}

	return geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
		SafetySettings: safety,
	}
}

func (g *Gemini) generateOne(ctx context.Context, body geminiRequest) (models.GeneratedImage, *models.TokenUsage, error) {
	var result geminiResponse
	var apiErr geminiErrorResponse

	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&result).
		SetError(&apiErr).
		Post(fmt.Sprintf("/v1beta/models/%s:generateContent", g.model))
	if err != nil {
		return models.GeneratedImage{}, nil, Wrap(fmt.Errorf("gemini request failed: %w", err), NameGemini, g.model)
	}

	if resp.IsError() {
		msg := apiErr.Error.Message
		if msg == "" {
			msg = strings.TrimSpace(resp.String())
		}
		if apiErr.Error.Status != "" {
			msg = apiErr.Error.Status + ": " + msg
		}
		return models.GeneratedImage{}, nil, Classify(errors.New(msg), NameGemini, g.model, resp.StatusCode())
	}

	if result.PromptFeedback != nil && result.PromptFeedback.BlockReason != "" {
		return models.GeneratedImage{}, nil, Classify(
			fmt.Errorf("prompt blocked: %s", result.PromptFeedback.BlockReason),
			NameGemini, g.model, http.StatusBadRequest)
	}

	var usage *models.TokenUsage
	if result.UsageMetadata != nil {
		usage = &models.TokenUsage{
			PromptTokens: result.UsageMetadata.PromptTokenCount,
			OutputTokens: result.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  result.UsageMetadata.TotalTokenCount,
		}
	}

	for _, cand := range result.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil {
				return models.GeneratedImage{}, nil, Classify(
					fmt.Errorf("decode inline image: %w", err), NameGemini, g.model, 0)
			}
			return models.GeneratedImage{Data: data, MimeType: part.InlineData.MimeType}, usage, nil
		}
		if strings.Contains(cand.FinishReason, "SAFETY") || cand.FinishReason == "PROHIBITED_CONTENT" {
			return models.GeneratedImage{}, nil, Classify(
				fmt.Errorf("output blocked: %s", cand.FinishReason), NameGemini, g.model, 0)
		}
	}

	return models.GeneratedImage{}, nil, &ProviderError{
		Err:      ErrNoImage,
		Provider: NameGemini,
		Model:    g.model,
		Code:     CodeNoImage,
		Message:  "response contained no image",
		sentinel: ErrNoImage,
	}
}
