// Package service contains the business logic layer.
package service

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appconfig "github.com/lukas-andre/decollage-cl-sub000/internal/config"
	"github.com/lukas-andre/decollage-cl-sub000/internal/models"
)

const generationsPrefix = "generations/"

// DefaultURLExpiry is the lifetime of presigned image URLs.
const DefaultURLExpiry = 24 * time.Hour

type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	s3.ListObjectsV2APIClient
}

// StorageService uploads generated images to S3-compatible object storage.
type StorageService struct {
	client    *s3.Client
	api       objectAPI
	bucket    string
	publicURL string
	enabled   bool
	logger    *slog.Logger
	now       func() time.Time
}

// NewStorageService creates a new storage service. It is a no-op when no
// bucket is configured.
func NewStorageService(cfg *appconfig.Config, logger *slog.Logger) (*StorageService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "storage")
	if !cfg.StorageEnabled {
		logger.Info("storage service disabled - no bucket configured")
		return &StorageService{logger: logger, now: time.Now}, nil
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(cfg.StorageRegion),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.StorageAccessKey,
			cfg.StorageSecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Path-style addressing for S3-compatible endpoints (Tigris, MinIO, R2).
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.StorageEndpoint)
		o.UsePathStyle = true
	})

	logger.Info("storage service initialized",
		"bucket", cfg.StorageBucket,
		"endpoint", cfg.StorageEndpoint,
		"public_url", cfg.StoragePublicURL,
	)

	return &StorageService{
		client:    client,
		api:       client,
		bucket:    cfg.StorageBucket,
		publicURL: cfg.StoragePublicURL,
		enabled:   true,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// IsEnabled returns whether storage is configured and available.
func (s *StorageService) IsEnabled() bool {
	return s.enabled
}

// Client returns the underlying S3 client (nil if storage is disabled).
func (s *StorageService) Client() *s3.Client {
	return s.client
}

// Bucket returns the configured bucket name.
func (s *StorageService) Bucket() string {
	return s.bucket
}

// GenerationKey is the object key of one generated image.
func GenerationKey(userID, correlationID string, index int, mimeType string) string {
	return fmt.Sprintf("%s%s/%s/%d%s", generationsPrefix, userID, correlationID, index, extensionFor(mimeType))
}

// StoreGeneratedImages uploads every inline image and replaces its data with
// a URL. Images that already carry only a URL are left alone. When storage is
// disabled the images are returned unchanged.
func (s *StorageService) StoreGeneratedImages(ctx context.Context, userID, correlationID string, images []models.GeneratedImage) ([]models.GeneratedImage, error) {
	if !s.enabled {
		return images, nil
	}

	out := make([]models.GeneratedImage, len(images))
	copy(out, images)
	for i, img := range out {
		if len(img.Data) == 0 {
			continue
		}
		key := GenerationKey(userID, correlationID, i, img.MimeType)
		_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(img.Data),
			ContentType: aws.String(img.MimeType),
			Metadata: map[string]string{
				"user-id":        userID,
				"correlation-id": correlationID,
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to upload generated image: %w", err)
		}

		url, err := s.URL(ctx, key, DefaultURLExpiry)
		if err != nil {
			return nil, err
		}
		out[i].URL = url
		out[i].Data = nil

		s.logger.Debug("stored generated image",
			"correlation_id", correlationID,
			"key", key,
			"size_bytes", len(img.Data),
		)
	}
	return out, nil
}

// URL returns a public URL when a public base is configured and a presigned
// GET URL otherwise.
func (s *StorageService) URL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if !s.enabled {
		return "", fmt.Errorf("storage is not enabled")
	}
	if s.publicURL != "" {
		return s.publicURL + "/" + key, nil
	}
	if s.client == nil {
		return "", fmt.Errorf("no public URL configured and presigning is unavailable")
	}
	if expiry <= 0 {
		expiry = DefaultURLExpiry
	}

	presigned, err := s3.NewPresignClient(s.client).PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return presigned.URL, nil
}

// DeleteOldGenerations deletes generated images older than maxAge and
// returns how many were removed.
func (s *StorageService) DeleteOldGenerations(ctx context.Context, maxAge time.Duration) (int, error) {
	if !s.enabled || maxAge <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-maxAge)
	deleted := 0

	paginator := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(generationsPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.LastModified == nil || !obj.LastModified.Before(cutoff) {
				continue
			}
			if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			}); err != nil {
				s.logger.Warn("failed to delete old object", "key", aws.ToString(obj.Key), "error", err)
				continue
			}
			deleted++
		}
	}

	s.logger.Info("generation cleanup completed", "deleted_count", deleted, "max_age", maxAge.String())
	return deleted, nil
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}
