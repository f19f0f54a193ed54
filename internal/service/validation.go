package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
)

// AllowedMimeTypes are the upload formats providers accept.
var AllowedMimeTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// MaxImageCount bounds images per generation request.
const MaxImageCount = 4

// ValidationError is a bad-input failure. It is never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err is a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// validateImage checks payload presence, size ceiling and mime type.
func validateImage(img *models.ImageInput, maxBytes int) error {
	if img == nil || len(img.Data) == 0 {
		return invalid("image", "image payload is empty")
	}
	if maxBytes > 0 && len(img.Data) > maxBytes {
		return invalid("image", "image is %d bytes, limit is %d", len(img.Data), maxBytes)
	}
	mime := strings.ToLower(strings.TrimSpace(img.MimeType))
	if !AllowedMimeTypes[mime] {
		return invalid("image.mime_type", "unsupported mime type %q", img.MimeType)
	}
	return nil
}

// validateRequest fails fast on anything that would make a provider call
// pointless.
func validateRequest(req *models.GenerationRequest, prompts *prompt.Builder, maxBytes int) error {
	if req == nil {
		return invalid("", "request is required")
	}
	if strings.TrimSpace(req.UserID) == "" {
		return invalid("user_id", "user id is required")
	}
	if req.Image != nil {
		if err := validateImage(req.Image, maxBytes); err != nil {
			return err
		}
	}
	if req.Environment != "" && !req.Environment.Valid() {
		return invalid("environment", "unknown environment %q", req.Environment)
	}
	if req.ImageCount < 0 || req.ImageCount > MaxImageCount {
		return invalid("image_count", "must be between 1 and %d", MaxImageCount)
	}
	if d := req.Dimensions; d != nil && (d.Width < 0 || d.Height < 0) {
		return invalid("dimensions", "width and height must not be negative")
	}

	if err := prompts.Resolve(prompt.InputFromRequest(req)); err != nil {
		switch {
		case errors.Is(err, prompt.ErrNoPrompt):
			return invalid("style_id", "a style, custom style or instructions are required")
		case errors.Is(err, prompt.ErrUnknownStyle):
			return invalid("style_id", "unknown style %q", req.StyleID)
		case errors.Is(err, prompt.ErrUnknownCustomStyle):
			return invalid("custom_style_id", "unknown custom style %q", req.CustomStyleID)
		default:
			return invalid("style_id", "%v", err)
		}
	}
	return nil
}
