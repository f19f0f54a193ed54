package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lukas-andre/decollage-cl-sub000/internal/batch"
	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/logging"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
	"github.com/lukas-andre/decollage-cl-sub000/internal/resilience"
	"github.com/lukas-andre/decollage-cl-sub000/internal/router"
)

// ImageStore persists generated images and returns them with URLs.
type ImageStore interface {
	IsEnabled() bool
	StoreGeneratedImages(ctx context.Context, userID, correlationID string, images []models.GeneratedImage) ([]models.GeneratedImage, error)
}

// StagingConfig holds the orchestrator's limits and retry policies.
type StagingConfig struct {
	Policy         resilience.Policy
	PriorityPolicy resilience.Policy
	MaxImageBytes  int
	MaxBatchItems  int
	TokensPerImage int
}

// StagingDeps are the collaborators of a StagingService. Tokens, Storage and
// Analyzer are optional.
type StagingDeps struct {
	Router     *router.Router
	Prompts    *prompt.Builder
	Accountant *cost.Accountant
	Executor   *resilience.Executor
	Batches    *batch.Coordinator
	Tokens     TokenDebiter
	Storage    ImageStore
	Analyzer   provider.RoomAnalyzer
}

// StagingService turns staging requests into routed provider calls with cost
// accounting. Its methods return structured failures instead of errors.
type StagingService struct {
	router     *router.Router
	prompts    *prompt.Builder
	accountant *cost.Accountant
	executor   *resilience.Executor
	batches    *batch.Coordinator
	tokens     TokenDebiter
	storage    ImageStore
	analyzer   provider.RoomAnalyzer

	cfg    StagingConfig
	logger *slog.Logger
	newID  func() string
}

// NewStagingService creates the orchestrator.
func NewStagingService(deps StagingDeps, cfg StagingConfig, logger *slog.Logger) (*StagingService, error) {
	if deps.Router == nil || deps.Prompts == nil || deps.Accountant == nil {
		return nil, errors.New("router, prompt builder and accountant are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Executor == nil {
		deps.Executor = resilience.NewExecutor(logger)
	}
	if deps.Batches == nil {
		deps.Batches = batch.NewCoordinator(batch.DefaultConcurrency, logger)
	}
	if cfg.Policy.MaxAttempts == 0 {
		cfg.Policy = resilience.DefaultPolicy()
	}
	if cfg.PriorityPolicy.MaxAttempts == 0 {
		cfg.PriorityPolicy = resilience.PriorityPolicy()
	}
	if cfg.TokensPerImage <= 0 {
		cfg.TokensPerImage = 1
	}

	return &StagingService{
		router:     deps.Router,
		prompts:    deps.Prompts,
		accountant: deps.Accountant,
		executor:   deps.Executor,
		batches:    deps.Batches,
		tokens:     deps.Tokens,
		storage:    deps.Storage,
		analyzer:   deps.Analyzer,
		cfg:        cfg,
		logger:     logger.With("component", "staging"),
		newID:      uuid.NewString,
	}, nil
}

// Validate checks a request without side effects.
func (s *StagingService) Validate(req *models.GenerationRequest) error {
	return validateRequest(req, s.prompts, s.cfg.MaxImageBytes)
}

// Styles returns the named style catalog.
func (s *StagingService) Styles() []prompt.Style {
	return s.prompts.Styles()
}

// Providers returns provider info and live resilience state.
func (s *StagingService) Providers() []router.Status {
	return s.router.Statuses()
}

// EstimateCost prices an arbitrary operation from flat rates.
func (s *StagingService) EstimateCost(p cost.Params) (models.CostEstimate, error) {
	return s.accountant.Estimate(p)
}

// EstimateRequest prices a generation request against the provider it would
// be routed to.
func (s *StagingService) EstimateRequest(req *models.GenerationRequest) (models.CostEstimate, string, error) {
	selected := s.router.SelectProvider(req)
	est, err := s.accountant.Estimate(cost.Params{
		Operation: operationFor(req),
		Provider:  selected,
		Model:     s.providerModel(selected),
		Images:    req.Images(),
		Premium:   req.Premium,
	})
	return est, selected, err
}

// Generate runs one staging generation. Every call that reaches a provider
// writes exactly one ledger record, success or failure. Two outcomes are
// exempt and write none: validation failures and insufficient (or
// unavailable) tokens, both of which return before any provider call.
func (s *StagingService) Generate(ctx context.Context, req *models.GenerationRequest) *models.GenerationResult {
	start := time.Now()
	correlationID := s.newID()
	res := &models.GenerationResult{CorrelationID: correlationID}

	if err := s.Validate(req); err != nil {
		return fail(res, start, models.ErrorKindValidation, err)
	}

	ctx = logging.WithUserID(logging.WithCorrelationID(ctx, correlationID), req.UserID)
	log := logging.FromContext(ctx, s.logger)

	promptText, err := s.prompts.Build(prompt.InputFromRequest(req))
	if err != nil {
		return fail(res, start, models.ErrorKindValidation, err)
	}

	op := operationFor(req)
	selected := s.router.SelectProvider(req)
	estimate, err := s.accountant.Estimate(cost.Params{
		Operation: op,
		Provider:  selected,
		Model:     s.providerModel(selected),
		Images:    req.Images(),
		Premium:   req.Premium,
	})
	if err != nil {
		return fail(res, start, models.ErrorKindInternal, err)
	}
	res.EstimatedCost = estimate

	reserved := int64(s.cfg.TokensPerImage * req.Images())
	if s.tokens != nil {
		if _, err := s.tokens.Debit(ctx, req.UserID, reserved, correlationID); err != nil {
			if errors.Is(err, repository.ErrInsufficientTokens) {
				return fail(res, start, models.ErrorKindInsufficientTokens, err)
			}
			return fail(res, start, models.ErrorKindInternal, fmt.Errorf("failed to reserve tokens: %w", err))
		}
	}

	policy := s.cfg.Policy
	if req.Priority {
		policy = s.cfg.PriorityPolicy
	}

	log.Info("generation started",
		"provider", selected,
		"operation", op,
		"images", req.Images(),
		"priority", req.Priority,
		"estimated_cost_usd", estimate.USD,
	)

	var outcome *router.Outcome
	if err = s.router.Admit(ctx, selected); err == nil {
		outcome, err = s.router.Call(ctx, selected, router.Request{
			Image:  req.Image,
			Prompt: promptText,
			Options: provider.Options{
				ImageCount: req.Images(),
				Dimensions: req.Dimensions,
				Quality:    req.Quality,
			},
		}, policy)
	}

	if err != nil {
		kind := classifyFailure(err, policy)
		var tried []string
		attempts := 0
		var ex *router.ExhaustedError
		if errors.As(err, &ex) {
			tried, attempts = ex.Tried, ex.Attempts
		}
		res.ProvidersTried = tried
		res.Attempts = attempts
		if len(tried) > 0 {
			res.Provider = tried[len(tried)-1]
		}

		s.refund(ctx, log, req.UserID, reserved, correlationID)
		s.record(ctx, log, &models.OperationCostRecord{
			CorrelationID: correlationID,
			UserID:        req.UserID,
			Operation:     op,
			Provider:      res.Provider,
			Premium:       req.Premium,
			Success:       false,
			ErrorKind:     kind,
		})

		log.Error("generation failed", "kind", kind, "tried", tried, "attempts", attempts, "error", err)
		return fail(res, start, kind, err)
	}

	out := outcome.Output
	images := out.Images
	if s.storage != nil && s.storage.IsEnabled() {
		stored, err := s.storage.StoreGeneratedImages(ctx, req.UserID, correlationID, images)
		if err != nil {
			log.Warn("failed to store generated images, returning inline data", "error", err)
		} else {
			images = stored
		}
	}

	rec := &models.OperationCostRecord{
		CorrelationID: correlationID,
		UserID:        req.UserID,
		Operation:     op,
		Provider:      outcome.Provider,
		Model:         out.Model,
		ImageCount:    len(out.Images),
		Premium:       req.Premium,
		Success:       true,
	}
	finalCost := s.finalCost(rec, out, op, req.Premium)
	rec.EstimatedCostUSD = finalCost.USD
	rec.EstimatedCostCLP = finalCost.CLP
	s.record(ctx, log, rec)

	res.Success = true
	res.Images = images
	res.Provider = outcome.Provider
	res.Model = out.Model
	res.Usage = out.Usage
	res.Cost = finalCost
	res.Attempts = outcome.Attempts
	res.ProvidersTried = outcome.Tried
	res.Duration = time.Since(start)

	log.Info("generation completed",
		"provider", outcome.Provider,
		"model", out.Model,
		"images", len(images),
		"attempts", outcome.Attempts,
		"cost_usd", finalCost.USD,
		"cost_clp", cost.FormatCLP(finalCost.CLP),
		"duration", res.Duration,
	)
	return res
}

// finalCost prices a successful call exactly from usage metadata when the
// provider reported it, and from flat rates otherwise.
func (s *StagingService) finalCost(rec *models.OperationCostRecord, out *provider.Output, op models.OperationType, premium bool) models.CostEstimate {
	pricing := s.accountant.Pricing()
	if out.Usage != nil {
		rec.InputTokens = out.Usage.PromptTokens
		rec.OutputTokens = out.Usage.OutputTokens
		if exact, images := pricing.ExactFromUsage(out.Usage, premium); images > 0 {
			base, _ := pricing.ExactFromUsage(out.Usage, false)
			rec.ProviderCostUSD = &base.USD
			return exact
		}
	}

	// Images the vendor filtered are charged but not delivered.
	billed := out.BilledImages
	if billed < len(out.Images) {
		billed = len(out.Images)
	}
	billed = max(billed, 1)

	est, err := pricing.Estimate(cost.Params{
		Operation: op,
		Provider:  rec.Provider,
		Model:     rec.Model,
		Images:    billed,
		Premium:   premium,
	})
	if err != nil {
		s.logger.Warn("failed to price generation", "error", err)
		return est
	}
	vendor := float64(billed) * pricing.PerImage(rec.Provider, rec.Model)
	rec.ProviderCostUSD = &vendor
	return est
}

// GenerateBatch runs every item through Generate in bounded chunks. Item
// failures are isolated and reported with their item ids.
func (s *StagingService) GenerateBatch(ctx context.Context, userID string, items []models.BatchItem) (*models.BatchResult, error) {
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	if s.cfg.MaxBatchItems > 0 && len(items) > s.cfg.MaxBatchItems {
		return nil, invalid("items", "batch has %d items, limit is %d", len(items), s.cfg.MaxBatchItems)
	}

	work := make([]batch.Item[models.GenerationRequest], len(items))
	for i, it := range items {
		id := it.ID
		if id == "" {
			id = fmt.Sprintf("item-%d", i+1)
		}
		req := it.Request
		req.UserID = userID
		work[i] = batch.Item[models.GenerationRequest]{ID: id, Value: req}
	}

	run := batch.Run(ctx, s.batches, work, func(ctx context.Context, it batch.Item[models.GenerationRequest]) (*models.GenerationResult, error) {
		res := s.Generate(ctx, &it.Value)
		if !res.Success {
			return res, res.Error
		}
		return res, nil
	})

	out := &models.BatchResult{
		Total:     run.Total,
		Succeeded: run.Succeeded,
		Failed:    run.Failed,
		Failures:  make([]models.BatchItemFailure, 0, len(run.Failures)),
		Items:     make([]models.BatchItemResult, 0, len(run.Outcomes)),
	}
	for _, f := range run.Failures {
		out.Failures = append(out.Failures, models.BatchItemFailure{ItemID: f.ItemID, Error: f.Err.Error()})
	}
	for _, o := range run.Outcomes {
		out.Items = append(out.Items, models.BatchItemResult{ItemID: o.ItemID, Result: o.Value})
	}

	s.logger.Info("batch completed",
		"user_id", userID,
		"total", out.Total,
		"succeeded", out.Succeeded,
		"failed", out.Failed,
		"duration", run.Duration,
	)
	return out, nil
}

// AnalyzeRoom classifies a photo. The call runs under the default retry
// policy and always writes one image_analysis ledger record once the image
// is valid.
func (s *StagingService) AnalyzeRoom(ctx context.Context, userID string, image models.ImageInput) *models.RoomAnalysis {
	correlationID := s.newID()
	res := &models.RoomAnalysis{CorrelationID: correlationID}

	if userID == "" {
		res.Error = &models.GenerationError{Kind: models.ErrorKindValidation, Message: "user id is required"}
		return res
	}
	if err := validateImage(&image, s.cfg.MaxImageBytes); err != nil {
		res.Error = &models.GenerationError{Kind: models.ErrorKindValidation, Message: err.Error()}
		return res
	}
	if s.analyzer == nil {
		res.Error = &models.GenerationError{Kind: models.ErrorKindNonRetryable, Message: "room analysis is not configured"}
		return res
	}

	ctx = logging.WithUserID(logging.WithCorrelationID(ctx, correlationID), userID)
	log := logging.FromContext(ctx, s.logger)

	result := resilience.Run(ctx, s.executor, s.cfg.Policy, func(ctx context.Context) (*provider.Analysis, error) {
		return s.analyzer.AnalyzeRoom(ctx, image)
	})

	rec := &models.OperationCostRecord{
		CorrelationID: correlationID,
		UserID:        userID,
		Operation:     models.OperationImageAnalysis,
		Provider:      s.analyzer.Name(),
	}

	if !result.Success() {
		kind := models.ErrorKindExhaustedRetries
		if !s.cfg.Policy.IsRetryable(result.Err) {
			kind = models.ErrorKindNonRetryable
		}
		rec.ErrorKind = kind
		s.record(ctx, log, rec)
		log.Error("room analysis failed", "attempts", result.Attempts, "error", result.Err)
		res.Error = &models.GenerationError{Kind: kind, Message: result.Err.Error()}
		return res
	}

	a := result.Value
	pricing := s.accountant.Pricing()
	est, _ := pricing.Estimate(cost.Params{Operation: models.OperationImageAnalysis, Images: 1})
	rec.Model = a.Model
	rec.ImageCount = 1
	rec.Success = true
	rec.EstimatedCostUSD = est.USD
	rec.EstimatedCostCLP = est.CLP
	if a.Usage != nil {
		rec.InputTokens = a.Usage.PromptTokens
		rec.OutputTokens = a.Usage.OutputTokens
		vendor := pricing.ExactTextFromUsage(a.Usage, false)
		rec.ProviderCostUSD = &vendor.USD
	}
	s.record(ctx, log, rec)

	res.Success = true
	res.RoomType = a.RoomType
	res.Environment = a.Environment
	res.Description = a.Description
	res.Suggestions = a.Suggestions
	res.Usage = a.Usage
	res.Cost = est
	return res
}

// record writes a ledger entry. Failures are logged and never fail the call.
func (s *StagingService) record(ctx context.Context, log *slog.Logger, rec *models.OperationCostRecord) {
	if _, err := s.accountant.Record(ctx, rec); err != nil {
		log.Warn("failed to record operation cost",
			"kind", models.ErrorKindCostRecording,
			"operation", rec.Operation,
			"error", err,
		)
	}
}

// refund credits back a reservation made for a failed generation.
func (s *StagingService) refund(ctx context.Context, log *slog.Logger, userID string, amount int64, reference string) {
	if s.tokens == nil || amount <= 0 {
		return
	}
	// The reservation has to be returned even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if _, err := s.tokens.Credit(ctx, userID, amount, reference); err != nil {
		log.Error("failed to refund reserved tokens", "amount", amount, "error", err)
	}
}

func (s *StagingService) providerModel(name string) string {
	if p, ok := s.router.Provider(name); ok {
		return p.GetInfo().Model
	}
	return ""
}

// operationFor returns the ledger operation type of a generation request.
func operationFor(req *models.GenerationRequest) models.OperationType {
	if req.TextToImage() {
		return models.OperationImageGeneration
	}
	return models.OperationVirtualStaging
}

// classifyFailure maps a routed-call error onto the caller-visible taxonomy.
func classifyFailure(err error, policy resilience.Policy) models.ErrorKind {
	var ex *router.ExhaustedError
	exhausted := errors.As(err, &ex)

	// The caller went away; the providers may still be healthy.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return models.ErrorKindRetryable
	}

	if exhausted {
		if ex.AllCircuitOpen() {
			return models.ErrorKindCircuitOpen
		}
		if ex.Last != nil && !errors.Is(ex.Last, resilience.ErrCircuitOpen) && !policy.IsRetryable(ex.Last) {
			return models.ErrorKindNonRetryable
		}
		return models.ErrorKindExhaustedRetries
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return models.ErrorKindCircuitOpen
	}
	return models.ErrorKindExhaustedRetries
}

func fail(res *models.GenerationResult, start time.Time, kind models.ErrorKind, err error) *models.GenerationResult {
	res.Success = false
	res.Images = nil
	res.Cost = models.CostEstimate{}
	res.Error = &models.GenerationError{Kind: kind, Message: err.Error()}
	res.Duration = time.Since(start)
	return res
}
