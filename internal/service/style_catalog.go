package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lukas-andre/decollage-cl-sub000/internal/config"
	"github.com/lukas-andre/decollage-cl-sub000/internal/prompt"
)

// styleCatalogFile is the JSON document operators keep in the bucket.
type styleCatalogFile struct {
	Styles []prompt.CustomStyle `json:"styles"`
}

// StyleCatalog keeps operator-managed custom styles in sync with an object
// in storage.
type StyleCatalog struct {
	loader  *config.S3Loader
	prompts *prompt.Builder
	logger  *slog.Logger
}

// NewStyleCatalog creates a catalog syncer. A disabled loader makes Refresh a
// no-op.
func NewStyleCatalog(loader *config.S3Loader, prompts *prompt.Builder, logger *slog.Logger) *StyleCatalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &StyleCatalog{loader: loader, prompts: prompts, logger: logger.With("component", "style_catalog")}
}

// Refresh registers every style in the catalog object if it changed since the
// last fetch and returns how many were registered. Invalid templates are
// skipped.
func (c *StyleCatalog) Refresh(ctx context.Context) (int, error) {
	if c.loader == nil || !c.loader.IsEnabled() {
		return 0, nil
	}
	res, err := c.loader.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	if res == nil || res.NotChanged || res.Missing {
		return 0, nil
	}

	var file styleCatalogFile
	if err := json.Unmarshal(res.Data, &file); err != nil {
		return 0, fmt.Errorf("failed to decode style catalog: %w", err)
	}

	registered := 0
	for _, cs := range file.Styles {
		if err := c.prompts.RegisterCustomStyle(cs); err != nil {
			c.logger.Warn("skipping invalid custom style", "style_id", cs.ID, "error", err)
			continue
		}
		registered++
	}
	c.logger.Info("style catalog loaded", "etag", res.ETag, "registered", registered, "total", len(file.Styles))
	return registered, nil
}
