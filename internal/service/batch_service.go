package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/logging"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
)

// ErrBatchNotFound is returned when a batch does not exist or belongs to
// another user.
var ErrBatchNotFound = errors.New("batch not found")

// BatchGenerator runs a batch of generation requests.
type BatchGenerator interface {
	GenerateBatch(ctx context.Context, userID string, items []models.BatchItem) (*models.BatchResult, error)
}

// BatchService queues batches for the worker and reports their results.
type BatchService struct {
	repo      repository.BatchJobRepository
	generator BatchGenerator
	maxItems  int
	logger    *slog.Logger
}

// NewBatchService creates a batch service.
func NewBatchService(repo repository.BatchJobRepository, generator BatchGenerator, maxItems int, logger *slog.Logger) *BatchService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchService{
		repo:      repo,
		generator: generator,
		maxItems:  maxItems,
		logger:    logger.With("component", "batches"),
	}
}

// BatchStatus is a batch job with its decoded result.
type BatchStatus struct {
	Job    *models.BatchJob    `json:"job"`
	Result *models.BatchResult `json:"result,omitempty"`
}

// Submit stores a pending batch. Items are validated individually when the
// worker runs them, so one bad item does not reject the batch.
func (s *BatchService) Submit(ctx context.Context, userID string, items []models.BatchItem) (*models.BatchJob, error) {
	if userID == "" {
		return nil, invalid("user_id", "user id is required")
	}
	if len(items) == 0 {
		return nil, invalid("items", "at least one item is required")
	}
	if s.maxItems > 0 && len(items) > s.maxItems {
		return nil, invalid("items", "batch has %d items, limit is %d", len(items), s.maxItems)
	}

	seen := make(map[string]bool, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = fmt.Sprintf("item-%d", i+1)
		}
		if seen[items[i].ID] {
			return nil, invalid("items", "duplicate item id %q", items[i].ID)
		}
		seen[items[i].ID] = true
	}

	data, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("failed to encode batch items: %w", err)
	}

	job := &models.BatchJob{
		ID:        ulid.Make().String(),
		UserID:    userID,
		Status:    models.BatchJobPending,
		ItemCount: len(items),
		ItemsJSON: string(data),
	}
	if err := s.repo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	s.logger.Info("batch submitted", "batch_id", job.ID, "user_id", userID, "items", len(items))
	return job, nil
}

// Get returns a user's batch and, once completed, its result.
func (s *BatchService) Get(ctx context.Context, userID, id string) (*BatchStatus, error) {
	job, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	if job == nil || job.UserID != userID {
		return nil, ErrBatchNotFound
	}

	status := &BatchStatus{Job: job}
	if job.ResultJSON != "" {
		var result models.BatchResult
		if err := json.Unmarshal([]byte(job.ResultJSON), &result); err != nil {
			return nil, fmt.Errorf("failed to decode batch result: %w", err)
		}
		status.Result = &result
	}
	return status, nil
}

// Process runs a claimed job and stores its outcome. Item failures are part
// of a completed result; the job itself fails only when it cannot run.
func (s *BatchService) Process(ctx context.Context, job *models.BatchJob) error {
	ctx = logging.WithBatchID(logging.WithUserID(ctx, job.UserID), job.ID)
	log := logging.FromContext(ctx, s.logger)
	start := time.Now()

	var items []models.BatchItem
	if err := json.Unmarshal([]byte(job.ItemsJSON), &items); err != nil {
		return s.fail(ctx, log, job, fmt.Sprintf("invalid batch items: %v", err))
	}

	result, err := s.generator.GenerateBatch(ctx, job.UserID, items)
	if err != nil {
		return s.fail(ctx, log, job, err.Error())
	}

	// Inline image bytes are not kept in the job row.
	for _, it := range result.Items {
		if it.Result == nil {
			continue
		}
		for i := range it.Result.Images {
			if it.Result.Images[i].URL != "" {
				it.Result.Images[i].Data = nil
			}
		}
	}

	data, err := json.Marshal(result)
	if err != nil {
		return s.fail(ctx, log, job, fmt.Sprintf("failed to encode result: %v", err))
	}
	if err := s.repo.Complete(context.WithoutCancel(ctx), job.ID, string(data)); err != nil {
		return fmt.Errorf("failed to complete batch %s: %w", job.ID, err)
	}

	log.Info("batch processed",
		"total", result.Total,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"duration", time.Since(start),
	)
	return nil
}

// RecoverStale fails batches left running by a previous process.
func (s *BatchService) RecoverStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	n, err := s.repo.MarkStaleRunningJobsFailed(ctx, maxAge)
	if err != nil {
		return 0, fmt.Errorf("failed to recover stale batches: %w", err)
	}
	if n > 0 {
		s.logger.Warn("marked stale batches failed", "count", n, "max_age", maxAge)
	}
	return n, nil
}

func (s *BatchService) fail(ctx context.Context, log *slog.Logger, job *models.BatchJob, msg string) error {
	log.Error("batch failed", "error", msg)
	if err := s.repo.Fail(context.WithoutCancel(ctx), job.ID, msg); err != nil {
		return fmt.Errorf("failed to mark batch %s failed: %w", job.ID, err)
	}
	return errors.New(msg)
}
