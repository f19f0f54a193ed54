package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors matched with errors.Is against a *ProviderError.
var (
	// ErrRateLimited indicates the vendor throttled the request.
	ErrRateLimited = errors.New("rate limited")

	// ErrUnavailable indicates the vendor or model is temporarily unavailable.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrTimeout indicates the request did not complete in time.
	ErrTimeout = errors.New("provider timeout")

	// ErrInvalidAPIKey indicates the configured key was rejected.
	ErrInvalidAPIKey = errors.New("invalid API key")

	// ErrQuotaExceeded indicates the vendor account is out of quota or credit.
	ErrQuotaExceeded = errors.New("quota exceeded")

	// ErrContentPolicy indicates the request or output was blocked by safety filters.
	ErrContentPolicy = errors.New("content policy violation")

	// ErrInvalidRequest indicates a malformed request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNoImage indicates a successful response without image data.
	ErrNoImage = errors.New("no image in response")

	// ErrProviderError is the catch-all.
	ErrProviderError = errors.New("provider error")
)

// Error codes. Retryable codes line up with the executor's default signatures.
const (
	CodeRateLimited        = "RATE_LIMITED"
	CodeTimeout            = "TIMEOUT"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeModelOverloaded    = "MODEL_OVERLOADED"
	CodeServerError        = "SERVER_ERROR"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeQuotaExceeded      = "QUOTA_EXCEEDED"
	CodeContentPolicy      = "CONTENT_POLICY"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeNoImage            = "NO_IMAGE"
	CodeUnknown            = "UNKNOWN"
)

// ProviderError is a classified error from an image provider.
type ProviderError struct {
	// Original error
	Err error

	// HTTP status code (if applicable)
	StatusCode int

	// Provider name (gemini, fal)
	Provider string

	// Model that was being used
	Model string

	// Machine-readable code (RATE_LIMITED, CONTENT_POLICY, ...)
	Code string

	// Human-readable message
	Message string

	// Whether retrying the same provider may succeed
	Retryable bool

	sentinel error
}

func (e *ProviderError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "unknown provider error"
	}
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status: %d)", msg, e.StatusCode)
	}
	if e.Provider != "" {
		return e.Provider + ": " + msg
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Is matches the classification sentinel in addition to the wrapped error.
func (e *ProviderError) Is(target error) bool {
	return e.sentinel != nil && target == e.sentinel
}

// ErrorCode returns the machine-readable code.
func (e *ProviderError) ErrorCode() string {
	return e.Code
}

// Classify analyzes an error from a provider call and returns a classified
// ProviderError. The status code takes precedence; message patterns refine
// ambiguous statuses and cover transport errors.
func Classify(err error, provider, model string, statusCode int) *ProviderError {
	if err == nil {
		return nil
	}

	pErr := &ProviderError{
		Err:        err,
		StatusCode: statusCode,
		Provider:   provider,
		Model:      model,
		Message:    err.Error(),
	}
	errStr := strings.ToLower(err.Error())

	// Safety blocks can arrive as 400 or even 200 responses.
	if containsContentPolicy(errStr) {
		pErr.set(ErrContentPolicy, CodeContentPolicy, false)
		return pErr
	}

	switch statusCode {
	case http.StatusTooManyRequests: // 429
		pErr.set(ErrRateLimited, CodeRateLimited, true)

	case http.StatusPaymentRequired: // 402
		pErr.set(ErrQuotaExceeded, CodeQuotaExceeded, false)

	case http.StatusUnauthorized, http.StatusForbidden: // 401, 403
		pErr.set(ErrInvalidAPIKey, CodeUnauthorized, false)

	case http.StatusServiceUnavailable: // 503
		if strings.Contains(errStr, "overloaded") {
			pErr.set(ErrUnavailable, CodeModelOverloaded, true)
		} else {
			pErr.set(ErrUnavailable, CodeServiceUnavailable, true)
		}

	case http.StatusGatewayTimeout, http.StatusRequestTimeout: // 504, 408
		pErr.set(ErrTimeout, CodeTimeout, true)

	case http.StatusInternalServerError, http.StatusBadGateway: // 500, 502
		pErr.set(ErrProviderError, CodeServerError, true)

	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		pErr.set(ErrInvalidRequest, CodeInvalidRequest, false)
		// Some vendors report quota exhaustion as 400.
		classifyByMessage(pErr, errStr)

	default:
		classifyByMessage(pErr, errStr)
	}

	return pErr
}

func (e *ProviderError) set(sentinel error, code string, retryable bool) {
	e.sentinel = sentinel
	e.Code = code
	e.Retryable = retryable
}

// containsContentPolicy checks for safety-filter rejections.
func containsContentPolicy(errStr string) bool {
	patterns := []string{
		"content policy",
		"content_policy",
		"safety",
		"blocked",
		"prohibited",
		"nsfw",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// classifyByMessage analyzes error message content for specific patterns.
func classifyByMessage(pErr *ProviderError, errStr string) {
	switch {
	case strings.Contains(errStr, "rate limit") || strings.Contains(errStr, "resource_exhausted") ||
		strings.Contains(errStr, "resourceexhausted") || strings.Contains(errStr, "too many requests"):
		pErr.set(ErrRateLimited, CodeRateLimited, true)

	case strings.Contains(errStr, "overloaded"):
		pErr.set(ErrUnavailable, CodeModelOverloaded, true)

	case strings.Contains(errStr, "unavailable"):
		pErr.set(ErrUnavailable, CodeServiceUnavailable, true)

	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") ||
		strings.Contains(errStr, "deadlineexceeded"):
		pErr.set(ErrTimeout, CodeTimeout, true)

	case strings.Contains(errStr, "connection reset") || strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "unexpected eof"):
		pErr.set(ErrUnavailable, CodeServiceUnavailable, true)

	case strings.Contains(errStr, "invalid api key") || strings.Contains(errStr, "api key not valid") ||
		strings.Contains(errStr, "unauthorized"):
		pErr.set(ErrInvalidAPIKey, CodeUnauthorized, false)

	case strings.Contains(errStr, "quota") || (strings.Contains(errStr, "insufficient") && strings.Contains(errStr, "credit")):
		pErr.set(ErrQuotaExceeded, CodeQuotaExceeded, false)

	case pErr.sentinel != nil:
		// Keep the status-based classification.

	default:
		pErr.set(ErrProviderError, CodeUnknown, false)
	}
}

// Wrap classifies a raw error, reusing an existing classification.
func Wrap(err error, provider, model string) error {
	if err == nil {
		return nil
	}

	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return err
	}

	// Caller cancellation is not a provider fault.
	if errors.Is(err, context.Canceled) {
		return err
	}

	return Classify(err, provider, model, extractStatusCode(err.Error()))
}

// extractStatusCode attempts to extract an HTTP status code from an error message.
func extractStatusCode(errMsg string) int {
	patterns := []struct {
		prefix string
		code   int
	}{
		{"status: 429", http.StatusTooManyRequests},
		{"status: 402", http.StatusPaymentRequired},
		{"status: 401", http.StatusUnauthorized},
		{"status: 403", http.StatusForbidden},
		{"status: 503", http.StatusServiceUnavailable},
		{"status: 502", http.StatusBadGateway},
		{"status: 504", http.StatusGatewayTimeout},
		{"status: 500", http.StatusInternalServerError},
		{"status: 400", http.StatusBadRequest},
	}

	errLower := strings.ToLower(errMsg)
	for _, p := range patterns {
		if strings.Contains(errLower, p.prefix) {
			return p.code
		}
	}
	return 0
}

// IsRetryable returns true if err is a retryable provider error.
func IsRetryable(err error) bool {
	var pErr *ProviderError
	if errors.As(err, &pErr) {
		return pErr.Retryable
	}
	return false
}
