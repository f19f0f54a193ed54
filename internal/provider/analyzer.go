package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

// DefaultAnalysisModel is the multimodal text model used for room analysis.
const DefaultAnalysisModel = "gemini-2.5-flash"

const analysisPrompt = `You are an interior design assistant. Analyze the attached photo of a space.

Return JSON only, with this schema:
{
  "room_type": "one of: living_room, bedroom, kitchen, dining_room, bathroom, office, kids_room, terrace, garden, facade, retail, restaurant, other",
  "environment": "one of: interior, exterior, commercial",
  "description": "one or two sentences describing the space, its light and its current furniture",
  "suggestions": ["three short staging suggestions"]
}`

// Analysis is a room analysis returned by a RoomAnalyzer.
type Analysis struct {
	RoomType    string             `json:"room_type"`
	Environment models.Environment `json:"environment"`
	Description string             `json:"description"`
	Suggestions []string           `json:"suggestions"`
	Model       string             `json:"-"`
	Usage       *models.TokenUsage `json:"-"`
}

// RoomAnalyzer classifies an uploaded photo.
type RoomAnalyzer interface {
	Name() string
	AnalyzeRoom(ctx context.Context, image models.ImageInput) (*Analysis, error)
}

// AnalyzerConfig configures the Gemini room analyzer.
type AnalyzerConfig struct {
	APIKey string
	Model  string
}

// GenAIAnalyzer analyzes rooms with the Gemini SDK.
type GenAIAnalyzer struct {
	client *genai.Client
	model  string
	logger *slog.Logger
}

// NewRoomAnalyzer creates a Gemini SDK client. Close releases it.
func NewRoomAnalyzer(ctx context.Context, cfg AnalyzerConfig, logger *slog.Logger) (*GenAIAnalyzer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnalysisModel
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return &GenAIAnalyzer{
		client: client,
		model:  cfg.Model,
		logger: logger.With("component", "analyzer"),
	}, nil
}

// Name returns the provider name recorded in the ledger.
func (a *GenAIAnalyzer) Name() string { return NameGemini }

// Close closes the underlying client.
func (a *GenAIAnalyzer) Close() error {
	return a.client.Close()
}

// AnalyzeRoom implements RoomAnalyzer.
func (a *GenAIAnalyzer) AnalyzeRoom(ctx context.Context, image models.ImageInput) (*Analysis, error) {
	m := a.client.GenerativeModel(a.model)
	m.ResponseMIMEType = "application/json"
	m.SetTemperature(0.2)

	format := strings.TrimPrefix(image.MimeType, "image/")
	resp, err := m.GenerateContent(ctx, genai.ImageData(format, image.Data), genai.Text(analysisPrompt))
	if err != nil {
		var gErr *googleapi.Error
		if errors.As(err, &gErr) {
			return nil, Classify(err, NameGemini, a.model, gErr.Code)
		}
		return nil, Wrap(err, NameGemini, a.model)
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return nil, Classify(fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason), NameGemini, a.model, 0)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, Classify(errors.New("empty analysis response"), NameGemini, a.model, 0)
	}

	var raw strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			raw.WriteString(string(txt))
		}
	}

	analysis, err := ParseAnalysis(raw.String())
	if err != nil {
		return nil, Classify(err, NameGemini, a.model, 0)
	}
	analysis.Model = a.model
	if u := resp.UsageMetadata; u != nil {
		analysis.Usage = &models.TokenUsage{
			PromptTokens: int(u.PromptTokenCount),
			OutputTokens: int(u.CandidatesTokenCount),
			TotalTokens:  int(u.TotalTokenCount),
		}
	}

	a.logger.Debug("room analyzed", "room_type", analysis.RoomType, "environment", analysis.Environment)
	return analysis, nil
}

// ParseAnalysis decodes the model's JSON answer, tolerating markdown fences.
// An unknown environment falls back to interior.
func ParseAnalysis(raw string) (*Analysis, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errors.New("empty analysis payload")
	}

	var a Analysis
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return nil, fmt.Errorf("failed to parse analysis: %w", err)
	}

	a.RoomType = strings.ToLower(strings.TrimSpace(a.RoomType))
	a.Environment = models.Environment(strings.ToLower(string(a.Environment)))
	if !a.Environment.Valid() {
		a.Environment = models.EnvironmentInterior
	}
	return &a, nil
}
