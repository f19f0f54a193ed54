// Package cost prices AI operations and keeps the append-only cost ledger.
package cost

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
)

// Pricing is the rate table. All rates are USD.
type Pricing struct {
	TextInputPer1K  float64 `json:"text_input_per_1k"`
	TextOutputPer1K float64 `json:"text_output_per_1k"`

	GeminiInputPerMillion float64 `json:"gemini_input_per_million"`
	GeminiPerImage        float64 `json:"gemini_per_image"`
	GeminiTokensPerImage  int     `json:"gemini_tokens_per_image"`

	FalPerImage        float64 `json:"fal_per_image"`
	FalSchnellPerImage float64 `json:"fal_schnell_per_image"`
	FalSchnellModel    string  `json:"fal_schnell_model"`

	AnalysisPerImage float64 `json:"analysis_per_image"`

	PremiumMultiplier float64 `json:"premium_multiplier"`
	USDToCLP          float64 `json:"usd_to_clp"`
}

// DefaultPricing returns the published vendor rates.
func DefaultPricing() Pricing {
	return Pricing{
		TextInputPer1K:        0.0003,
		TextOutputPer1K:       0.0025,
		GeminiInputPerMillion: 0.30,
		GeminiPerImage:        provider.GeminiCostPerImage,
		GeminiTokensPerImage:  1290,
		FalPerImage:           provider.FalCostPerImage,
		FalSchnellPerImage:    provider.FalSchnellCostPerImage,
		FalSchnellModel:       provider.FalSchnellModel,
		AnalysisPerImage:      0.0025,
		PremiumMultiplier:     1.5,
		USDToCLP:              950,
	}
}

// withDefaults fills zero fields from DefaultPricing.
func (p Pricing) withDefaults() Pricing {
	d := DefaultPricing()
	if p.TextInputPer1K <= 0 {
		p.TextInputPer1K = d.TextInputPer1K
	}
	if p.TextOutputPer1K <= 0 {
		p.TextOutputPer1K = d.TextOutputPer1K
	}
	if p.GeminiInputPerMillion <= 0 {
		p.GeminiInputPerMillion = d.GeminiInputPerMillion
	}
	if p.GeminiPerImage <= 0 {
		p.GeminiPerImage = d.GeminiPerImage
	}
	if p.GeminiTokensPerImage <= 0 {
		p.GeminiTokensPerImage = d.GeminiTokensPerImage
	}
	if p.FalPerImage <= 0 {
		p.FalPerImage = d.FalPerImage
	}
	if p.FalSchnellPerImage <= 0 {
		p.FalSchnellPerImage = d.FalSchnellPerImage
	}
	if p.FalSchnellModel == "" {
		p.FalSchnellModel = d.FalSchnellModel
	}
	if p.AnalysisPerImage <= 0 {
		p.AnalysisPerImage = d.AnalysisPerImage
	}
	if p.PremiumMultiplier < 1 {
		p.PremiumMultiplier = d.PremiumMultiplier
	}
	if p.USDToCLP <= 0 {
		p.USDToCLP = d.USDToCLP
	}
	return p
}

// Params describes an operation to price.
type Params struct {
	Operation    models.OperationType
	Provider     string
	Model        string
	Images       int
	InputTokens  int
	OutputTokens int
	Premium      bool
}

// Estimate prices an operation from flat rates. Token counts are only used
// for text generation.
func (p Pricing) Estimate(in Params) (models.CostEstimate, error) {
	images := in.Images
	if images <= 0 {
		images = 1
	}

	var usd float64
	switch in.Operation {
	case models.OperationTextGeneration:
		usd = float64(in.InputTokens)/1000*p.TextInputPer1K + float64(in.OutputTokens)/1000*p.TextOutputPer1K
	case models.OperationImageGeneration, models.OperationVirtualStaging:
		usd = float64(images) * p.PerImage(in.Provider, in.Model)
	case models.OperationImageAnalysis:
		usd = float64(images) * p.AnalysisPerImage
	default:
		return models.CostEstimate{}, fmt.Errorf("unknown operation type %q", in.Operation)
	}

	return p.convert(p.applyPremium(usd, in.Premium)), nil
}

// PerImage returns the flat per-image rate for a provider and model. Unknown
// providers are priced like the quality provider.
func (p Pricing) PerImage(providerName, model string) float64 {
	if providerName == provider.NameFal {
		if model == p.FalSchnellModel {
			return p.FalSchnellPerImage
		}
		return p.FalPerImage
	}
	return p.GeminiPerImage
}

// ExactFromUsage computes image generation cost from provider-reported token
// usage: input tokens at the per-million rate plus round(output/tokensPerImage)
// images at the per-image rate. It also returns the derived image count.
func (p Pricing) ExactFromUsage(usage *models.TokenUsage, premium bool) (models.CostEstimate, int) {
	if usage == nil {
		return models.CostEstimate{}, 0
	}
	input := float64(usage.PromptTokens) / 1_000_000 * p.GeminiInputPerMillion
	images := int(math.Round(float64(usage.OutputTokens) / float64(p.GeminiTokensPerImage)))
	output := float64(images) * p.GeminiPerImage
	return p.convert(p.applyPremium(input+output, premium)), images
}

// ExactTextFromUsage computes text or analysis cost from token usage.
func (p Pricing) ExactTextFromUsage(usage *models.TokenUsage, premium bool) models.CostEstimate {
	if usage == nil {
		return models.CostEstimate{}
	}
	usd := float64(usage.PromptTokens)/1000*p.TextInputPer1K + float64(usage.OutputTokens)/1000*p.TextOutputPer1K
	return p.convert(p.applyPremium(usd, premium))
}

// ToCLP converts a USD amount to the display currency.
func (p Pricing) ToCLP(usd float64) float64 {
	return usd * p.USDToCLP
}

func (p Pricing) applyPremium(usd float64, premium bool) float64 {
	if premium {
		return usd * p.PremiumMultiplier
	}
	return usd
}

func (p Pricing) convert(usd float64) models.CostEstimate {
	usd = roundUSD(usd)
	return models.CostEstimate{USD: usd, CLP: p.ToCLP(usd)}
}

// roundUSD trims float noise below a millionth of a dollar.
func roundUSD(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

// clp is the Chilean peso unit; x/text/currency has no predeclared CLP.
var clp = currency.MustParseISO("CLP")

// RoundCLP rounds to the smallest CLP cash increment.
func RoundCLP(v float64) float64 {
	scale, incr := currency.Cash.Rounding(clp)
	if incr <= 0 {
		incr = 1
	}
	unit := float64(incr) / math.Pow10(scale)
	return math.Round(v/unit) * unit
}

// FormatCLP renders an amount for display, e.g. "CLP 37".
func FormatCLP(v float64) string {
	return fmt.Sprint(currency.ISO(clp.Amount(RoundCLP(v))))
}
