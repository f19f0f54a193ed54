package handlers

import (
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/repository"
	"github.com/lukas-andre/decollage-cl-sub000/internal/service"
)

// OperationError is the problem body for a failed generation or analysis.
// It implements huma.StatusError so handlers can return it directly.
type OperationError struct {
	Status         int                  `json:"status"`
	Title          string               `json:"title"`
	Detail         string               `json:"detail"`
	Kind           models.ErrorKind     `json:"kind"`
	CorrelationID  string               `json:"correlation_id,omitempty"`
	ProvidersTried []string             `json:"providers_tried,omitempty"`
	Attempts       int                  `json:"attempts,omitempty"`
	EstimatedCost  *models.CostEstimate `json:"estimated_cost,omitempty"`
}

func (e *OperationError) Error() string {
	return e.Detail
}

func (e *OperationError) GetStatus() int {
	return e.Status
}

// StatusForKind maps the error taxonomy to HTTP status codes.
func StatusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.ErrorKindValidation:
		return http.StatusUnprocessableEntity
	case models.ErrorKindInsufficientTokens:
		return http.StatusPaymentRequired
	case models.ErrorKindRetryable, models.ErrorKindCircuitOpen, models.ErrorKindExhaustedRetries:
		return http.StatusServiceUnavailable
	case models.ErrorKindNonRetryable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// newGenerationError builds the problem body for a failed generation.
func newGenerationError(res *models.GenerationResult) *OperationError {
	e := newOperationError(res.Error, res.CorrelationID)
	e.ProvidersTried = res.ProvidersTried
	e.Attempts = res.Attempts
	if res.EstimatedCost.USD > 0 {
		est := res.EstimatedCost
		e.EstimatedCost = &est
	}
	return e
}

func newOperationError(ge *models.GenerationError, correlationID string) *OperationError {
	if ge == nil {
		ge = &models.GenerationError{Kind: models.ErrorKindInternal, Message: "operation failed"}
	}
	status := StatusForKind(ge.Kind)
	detail := ge.Message
	if status == http.StatusInternalServerError {
		detail = "internal error"
	}
	return &OperationError{
		Status:        status,
		Title:         http.StatusText(status),
		Detail:        detail,
		Kind:          ge.Kind,
		CorrelationID: correlationID,
	}
}

// serviceError converts plain service errors into huma errors.
func serviceError(err error, fallback string) error {
	var ve *service.ValidationError
	switch {
	case errors.As(err, &ve):
		return huma.Error422UnprocessableEntity(ve.Error())
	case errors.Is(err, repository.ErrNotFound), errors.Is(err, service.ErrBatchNotFound):
		return huma.Error404NotFound("not found")
	case errors.Is(err, repository.ErrInsufficientTokens):
		return huma.NewError(http.StatusPaymentRequired, "insufficient token balance")
	default:
		return huma.Error500InternalServerError(fallback)
	}
}
