package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/service"
)

// BatchQueue stores batches for the worker.
type BatchQueue interface {
	Submit(ctx context.Context, userID string, items []models.BatchItem) (*models.BatchJob, error)
	Get(ctx context.Context, userID, id string) (*service.BatchStatus, error)
}

// BatchRunner runs a batch inline.
type BatchRunner interface {
	GenerateBatch(ctx context.Context, userID string, items []models.BatchItem) (*models.BatchResult, error)
}

// BatchHandler handles batch endpoints.
type BatchHandler struct {
	queue  BatchQueue
	runner BatchRunner
}

// NewBatchHandler creates a new batch handler.
func NewBatchHandler(queue BatchQueue, runner BatchRunner) *BatchHandler {
	return &BatchHandler{queue: queue, runner: runner}
}

// BatchItemBody is one request inside a batch.
type BatchItemBody struct {
	ID      string         `json:"id,omitempty" doc:"Client item id; defaults to item-N"`
	Request GenerationBody `json:"request"`
}

// CreateBatchInput represents a batch submission.
type CreateBatchInput struct {
	Wait bool `query:"wait" doc:"Run the batch inline and return its result instead of queueing it"`
	Body struct {
		Items []BatchItemBody `json:"items" minItems:"1"`
	}
}

// CreateBatchOutput represents a queued or completed batch.
type CreateBatchOutput struct {
	Body struct {
		Job    *models.BatchJob    `json:"job,omitempty"`
		Result *models.BatchResult `json:"result,omitempty"`
	}
}

// CreateBatch queues a batch, or runs it inline when wait is set.
func (h *BatchHandler) CreateBatch(ctx context.Context, input *CreateBatchInput) (*CreateBatchOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	items := make([]models.BatchItem, len(input.Body.Items))
	for i, it := range input.Body.Items {
		items[i] = models.BatchItem{ID: it.ID, Request: *it.Request.toRequest(userID)}
	}

	out := &CreateBatchOutput{}
	if input.Wait {
		result, err := h.runner.GenerateBatch(ctx, userID, items)
		if err != nil {
			return nil, serviceError(err, "failed to run batch")
		}
		out.Body.Result = result
		return out, nil
	}

	job, err := h.queue.Submit(ctx, userID, items)
	if err != nil {
		return nil, serviceError(err, "failed to submit batch")
	}
	out.Body.Job = job
	return out, nil
}

// GetBatchInput represents a batch lookup.
type GetBatchInput struct {
	ID string `path:"id" doc:"Batch ID"`
}

// GetBatchOutput represents a batch and, once completed, its result.
type GetBatchOutput struct {
	Body *service.BatchStatus
}

// GetBatch returns one of the caller's batches.
func (h *BatchHandler) GetBatch(ctx context.Context, input *GetBatchInput) (*GetBatchOutput, error) {
	userID := getUserID(ctx)
	if userID == "" {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	status, err := h.queue.Get(ctx, userID, input.ID)
	if err != nil {
		return nil, serviceError(err, "failed to get batch")
	}
	return &GetBatchOutput{Body: status}, nil
}
