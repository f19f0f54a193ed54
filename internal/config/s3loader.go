package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectGetter is the subset of the S3 client the loader needs.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3LoaderConfig configures an S3-backed JSON object loader.
type S3LoaderConfig struct {
	Client       ObjectGetter
	Bucket       string
	Key          string
	CacheTTL     time.Duration // How often to check for updates (default: 5 min)
	ErrorBackoff time.Duration // How long to wait after an error (default: 1 min)
	Logger       *slog.Logger
}

// S3LoadResult is one fetch outcome. Data is nil when NotChanged or Missing.
type S3LoadResult struct {
	Data       json.RawMessage
	ETag       string
	FetchTime  time.Time
	NotChanged bool
	Missing    bool
}

// S3Loader polls one JSON object with ETag-conditional GETs. Callers poll
// Fetch; it returns nil, nil while the cache is still fresh.
type S3Loader struct {
	client       ObjectGetter
	bucket       string
	key          string
	cacheTTL     time.Duration
	errorBackoff time.Duration
	logger       *slog.Logger
	now          func() time.Time

	mu          sync.Mutex
	etag        string
	lastFetch   time.Time
	lastCheck   time.Time
	lastError   time.Time
	initialized bool
	fetching    bool
}

// NewS3Loader creates a loader. A nil client disables it.
func NewS3Loader(cfg S3LoaderConfig) *S3Loader {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = 1 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &S3Loader{
		client:       cfg.Client,
		bucket:       cfg.Bucket,
		key:          cfg.Key,
		cacheTTL:     cfg.CacheTTL,
		errorBackoff: cfg.ErrorBackoff,
		logger:       cfg.Logger.With("component", "s3_loader", "key", cfg.Key),
		now:          time.Now,
	}
}

// IsEnabled reports whether a client is configured.
func (l *S3Loader) IsEnabled() bool {
	return l.client != nil
}

// NeedsRefresh reports whether the next Fetch would hit S3.
func (l *S3Loader) NeedsRefresh() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.needsRefreshLocked()
}

func (l *S3Loader) needsRefreshLocked() bool {
	if l.fetching {
		return false
	}
	now := l.now()
	if !l.lastError.IsZero() && now.Sub(l.lastError) < l.errorBackoff {
		return false
	}
	return !l.initialized || now.Sub(l.lastCheck) >= l.cacheTTL
}

// Fetch retrieves the object if the cache is stale. It returns nil, nil when
// the loader is disabled or no check is due.
func (l *S3Loader) Fetch(ctx context.Context) (*S3LoadResult, error) {
	if l.client == nil {
		return nil, nil
	}

	l.mu.Lock()
	if !l.needsRefreshLocked() {
		l.mu.Unlock()
		return nil, nil
	}
	l.fetching = true
	currentETag := l.etag
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		l.fetching = false
		l.mu.Unlock()
	}()

	input := &s3.GetObjectInput{Bucket: &l.bucket, Key: &l.key}
	if currentETag != "" {
		quoted := `"` + currentETag + `"`
		input.IfNoneMatch = &quoted
	}

	resp, err := l.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			l.mu.Lock()
			first := !l.initialized
			l.initialized = true
			l.lastCheck = l.now()
			l.mu.Unlock()
			if first {
				l.logger.Debug("S3 object not found, using built-in defaults", "bucket", l.bucket)
			}
			return &S3LoadResult{Missing: true}, nil
		}

		var coded interface{ ErrorCode() string }
		if errors.As(err, &coded) && coded.ErrorCode() == "NotModified" {
			l.mu.Lock()
			l.lastCheck = l.now()
			l.mu.Unlock()
			return &S3LoadResult{NotChanged: true, ETag: currentETag}, nil
		}

		l.markError()
		l.logger.Error("failed to fetch S3 object",
			"error", err,
			"bucket", l.bucket,
			"next_retry", l.now().Add(l.errorBackoff).Format(time.RFC3339),
		)
		return nil, fmt.Errorf("failed to fetch s3://%s/%s: %w", l.bucket, l.key, err)
	}
	defer resp.Body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		l.markError()
		l.logger.Error("failed to parse S3 object JSON", "error", err)
		return nil, fmt.Errorf("failed to parse s3://%s/%s: %w", l.bucket, l.key, err)
	}

	newETag := ""
	if resp.ETag != nil {
		newETag = strings.Trim(*resp.ETag, `"`)
	}

	now := l.now()
	l.mu.Lock()
	l.initialized = true
	l.lastFetch = now
	l.lastCheck = now
	l.lastError = time.Time{}
	l.etag = newETag
	l.mu.Unlock()

	l.logger.Debug("S3 object fetched", "bucket", l.bucket, "etag", newETag, "size", len(raw))
	return &S3LoadResult{Data: raw, ETag: newETag, FetchTime: now}, nil
}

func (l *S3Loader) markError() {
	l.mu.Lock()
	l.initialized = true
	l.lastError = l.now()
	l.mu.Unlock()
}

// S3LoaderStats describes loader state.
type S3LoaderStats struct {
	Initialized bool      `json:"initialized"`
	ETag        string    `json:"etag"`
	LastFetch   time.Time `json:"last_fetch"`
	LastCheck   time.Time `json:"last_check"`
	CacheTTL    string    `json:"cache_ttl"`
	Bucket      string    `json:"bucket"`
	Key         string    `json:"key"`
}

// Stats returns current loader state.
func (l *S3Loader) Stats() S3LoaderStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return S3LoaderStats{
		Initialized: l.initialized,
		ETag:        l.etag,
		LastFetch:   l.lastFetch,
		LastCheck:   l.lastCheck,
		CacheTTL:    l.cacheTTL.String(),
		Bucket:      l.bucket,
		Key:         l.key,
	}
}
