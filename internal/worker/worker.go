// Package worker drains the batch job queue in the background.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
)

var errPanic = errors.New("batch processor panicked")

// Processor runs one claimed batch job and stores its outcome.
type Processor interface {
	Process(ctx context.Context, job *models.BatchJob) error
}

// Worker processes queued batch jobs.
type Worker struct {
	jobRepo      repository.BatchJobRepository
	processor    Processor
	pollInterval time.Duration
	concurrency  int
	jobTimeout   time.Duration
	active       atomic.Int32
	stop         chan struct{}
	stopOnce     sync.Once
	wg           sync.WaitGroup
	logger       *slog.Logger
}

// Config holds worker configuration.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	// JobTimeout bounds one batch run. Zero means no limit beyond the
	// worker's context.
	JobTimeout time.Duration
}

// New creates a new worker.
func New(jobRepo repository.BatchJobRepository, processor Processor, cfg Config, logger *slog.Logger) *Worker {
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		jobRepo:      jobRepo,
		processor:    processor,
		pollInterval: cfg.PollInterval,
		concurrency:  cfg.Concurrency,
		jobTimeout:   cfg.JobTimeout,
		stop:         make(chan struct{}),
		logger:       logger.With("component", "worker"),
	}
}

// Start begins processing jobs.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("starting", "concurrency", w.concurrency, "poll_interval", w.pollInterval)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i)
	}
}

// Stop gracefully stops the worker and waits for in-flight jobs.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping")
		close(w.stop)
	})
	w.wg.Wait()
	w.logger.Info("stopped")
}

// Busy reports whether any batch is being processed.
func (w *Worker) Busy() bool {
	return w.active.Load() > 0
}

func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Drain the queue before waiting for the next tick.
			for w.processNextJob(ctx, workerID) {
				select {
				case <-w.stop:
					return
				case <-ctx.Done():
					return
				default:
				}
			}
		}
	}
}

// processNextJob claims and runs one job. It reports whether a job was found.
func (w *Worker) processNextJob(ctx context.Context, workerID int) bool {
	if w.jobRepo == nil || w.processor == nil {
		return false
	}

	job, err := w.jobRepo.ClaimPending(ctx)
	if err != nil {
		w.logger.Error("failed to claim job", "worker_id", workerID, "error", err)
		return false
	}
	if job == nil {
		return false
	}

	w.active.Add(1)
	defer w.active.Add(-1)

	w.logger.Info("processing batch", "worker_id", workerID, "batch_id", job.ID, "items", job.ItemCount)
	start := time.Now()

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	if err := w.run(jobCtx, job); err != nil {
		w.logger.Error("batch failed", "worker_id", workerID, "batch_id", job.ID, "error", err, "duration", time.Since(start))
		return true
	}

	w.logger.Info("completed batch", "worker_id", workerID, "batch_id", job.ID, "duration", time.Since(start))
	return true
}

func (w *Worker) run(ctx context.Context, job *models.BatchJob) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic while processing batch", "batch_id", job.ID, "panic", r)
			if ferr := w.jobRepo.Fail(context.WithoutCancel(ctx), job.ID, "internal error"); ferr != nil {
				w.logger.Error("failed to mark batch failed", "batch_id", job.ID, "error", ferr)
			}
			err = errPanic
		}
	}()
	return w.processor.Process(ctx, job)
}
