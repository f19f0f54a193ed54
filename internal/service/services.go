package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/batch"
	"github.com/lukas-andre/decollage-cl-sub000/internal/config"
	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
	"github.com/lukas-andre/decollage-cl-sub000/internal/resilience"
	"github.com/lukas-andre/decollage-cl-sub000/internal/router"
)

// Services holds all service instances.
type Services struct {
	Staging    *StagingService
	Batches    *BatchService
	Tokens     *TokenService
	Storage    *StorageService
	Styles     *StyleCatalog
	Usage      *UsageReporter
	Accountant *cost.Accountant
	Router     *router.Router

	analyzer *provider.GenAIAnalyzer
	cfg      *config.Config
	logger   *slog.Logger
}

// NewServices creates all service instances.
func NewServices(ctx context.Context, cfg *config.Config, repos *repository.Repositories, logger *slog.Logger) (*Services, error) {
	var providers []provider.Provider
	if cfg.GeminiAPIKey != "" {
		providers = append(providers, provider.NewGemini(provider.GeminiConfig{
			APIKey:  cfg.GeminiAPIKey,
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiImageModel,
			Timeout: cfg.ProviderHTTPTimeout,
		}, logger))
	}
	if cfg.FalAPIKey != "" {
		providers = append(providers, provider.NewFal(provider.FalConfig{
			APIKey:    cfg.FalAPIKey,
			BaseURL:   cfg.FalBaseURL,
			Model:     cfg.FalModel,
			TextModel: cfg.FalTextModel,
			Timeout:   cfg.ProviderHTTPTimeout,
		}, logger))
	}

	executor := resilience.NewExecutor(logger)
	rtr, err := router.New(providers, cfg.RouterConfig(), executor, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider router: %w", err)
	}

	prompts, err := prompt.NewBuilder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt builder: %w", err)
	}

	storageSvc, err := NewStorageService(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage service: %w", err)
	}

	accountant := cost.NewAccountant(cfg.Pricing(), repos.CostRecord, logger)
	tokenSvc := NewTokenService(repos.Token, logger)

	deps := StagingDeps{
		Router:     rtr,
		Prompts:    prompts,
		Accountant: accountant,
		Executor:   executor,
		Batches:    batch.NewCoordinator(cfg.BatchConcurrency, logger),
		Tokens:     tokenSvc,
		Storage:    storageSvc,
	}

	var analyzer *provider.GenAIAnalyzer
	if cfg.GeminiAPIKey != "" {
		analyzer, err = provider.NewRoomAnalyzer(ctx, provider.AnalyzerConfig{
			APIKey: cfg.GeminiAPIKey,
			Model:  cfg.GeminiAnalysisModel,
		}, logger)
		if err != nil {
			logger.Warn("room analysis unavailable", "error", err)
			analyzer = nil
		} else {
			deps.Analyzer = analyzer
		}
	}

	stagingSvc, err := NewStagingService(deps, StagingConfig{
		Policy:         cfg.RetryPolicy(),
		PriorityPolicy: cfg.PriorityRetryPolicy(),
		MaxImageBytes:  cfg.MaxImageBytes,
		MaxBatchItems:  cfg.MaxBatchItems,
		TokensPerImage: cfg.TokensPerImage,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging service: %w", err)
	}

	var loaderClient config.ObjectGetter
	if storageSvc.IsEnabled() {
		loaderClient = storageSvc.Client()
	}
	styles := NewStyleCatalog(config.NewS3Loader(config.S3LoaderConfig{
		Client:   loaderClient,
		Bucket:   cfg.StorageBucket,
		Key:      cfg.StyleCatalogKey,
		CacheTTL: cfg.StyleCatalogTTL,
		Logger:   logger,
	}), prompts, logger)

	logger.Info("services initialized",
		"providers", rtr.Order(),
		"quality_provider", cfg.QualityProvider,
		"storage", storageSvc.IsEnabled(),
		"room_analysis", analyzer != nil,
	)

	return &Services{
		Staging:    stagingSvc,
		Batches:    NewBatchService(repos.BatchJob, stagingSvc, cfg.MaxBatchItems, logger),
		Tokens:     tokenSvc,
		Storage:    storageSvc,
		Styles:     styles,
		Usage:      NewUsageReporter(accountant, logger),
		Accountant: accountant,
		Router:     rtr,
		analyzer:   analyzer,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Schedule registers the periodic maintenance jobs.
func (s *Services) Schedule(sched *Scheduler) error {
	if err := sched.Add("usage_report", s.cfg.UsageReportSchedule, func(ctx context.Context) error {
		_, err := s.Usage.Report(ctx)
		return err
	}); err != nil {
		return err
	}

	if err := sched.Add("cleanup", s.cfg.CleanupSchedule, func(ctx context.Context) error {
		if _, err := s.Batches.RecoverStale(ctx, s.cfg.StaleBatchAge); err != nil {
			return err
		}
		_, err := s.Storage.DeleteOldGenerations(ctx, s.cfg.StorageRetention)
		return err
	}); err != nil {
		return err
	}

	if s.Storage.IsEnabled() && s.cfg.StyleCatalogTTL >= time.Second {
		spec := fmt.Sprintf("@every %s", s.cfg.StyleCatalogTTL.Truncate(time.Second))
		return sched.Add("style_catalog", spec, func(ctx context.Context) error {
			_, err := s.Styles.Refresh(ctx)
			return err
		})
	}
	return nil
}

// Close releases provider clients.
func (s *Services) Close() error {
	if s.analyzer != nil {
		return s.analyzer.Close()
	}
	return nil
}
