// Package config handles application configuration.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/lukas-andre/decollage-cl-sub000/internal/cost"
	"github.com/lukas-andre/decollage-cl-sub000/internal/provider"
	"github.com/lukas-andre/decollage-cl-sub000/internal/resilience"
	"github.com/lukas-andre/decollage-cl-sub000/internal/router"
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	Port        int
	BaseURL     string
	CORSOrigins []string
	JWTSecret   string
	JWTIssuer   string

	// Inbound per-user request limit
	RequestsPerMinute int

	// Request context deadlines; generation and analysis routes get the
	// longer one
	RequestTimeout    time.Duration
	GenerationTimeout time.Duration

	// Apply pending schema migrations at startup
	AutoMigrate bool

	// Database
	DatabaseURL    string
	TursoURL       string
	TursoAuthToken string

	// Object Storage (S3-compatible)
	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageRegion    string
	StoragePublicURL string
	StorageEnabled   bool

	// Generated images older than this are deleted; zero keeps them forever
	StorageRetention time.Duration

	// Custom style catalog object in the storage bucket
	StyleCatalogKey string
	StyleCatalogTTL time.Duration

	// Providers
	GeminiAPIKey        string
	GeminiBaseURL       string
	GeminiImageModel    string
	GeminiAnalysisModel string
	FalAPIKey           string
	FalBaseURL          string
	FalModel            string
	FalTextModel        string
	ProviderHTTPTimeout time.Duration

	// Routing
	ProviderOrder   []string
	QualityProvider string
	FallbackMaxHops int
	FallbackDelay   time.Duration

	// Outbound token bucket, one per provider
	RateLimitCapacity     int
	RateLimitPerSecond    float64
	RateLimitPollInterval time.Duration

	// Circuit breaker, one per provider
	BreakerFailureThreshold  int
	BreakerRecoveryThreshold int
	BreakerCooldown          time.Duration

	// Retry policies
	RetryMaxAttempts          int
	RetryInitialDelay         time.Duration
	RetryMaxDelay             time.Duration
	RetryMultiplier           float64
	AttemptTimeout            time.Duration
	PriorityRetryMaxAttempts  int
	PriorityRetryInitialDelay time.Duration
	PriorityRetryMaxDelay     time.Duration
	PriorityAttemptTimeout    time.Duration

	// Pricing
	PremiumMultiplier float64
	USDToCLP          float64

	// Limits
	MaxImageBytes    int
	MaxBatchItems    int
	BatchConcurrency int
	TokensPerImage   int

	// Worker
	WorkerPollInterval time.Duration
	WorkerConcurrency  int
	WorkerJobTimeout   time.Duration
	StaleBatchAge      time.Duration

	// IdleTimeout stops the server after this long without traffic or
	// batch work; zero keeps it running
	IdleTimeout time.Duration

	// Cron specs (with seconds); empty disables the job
	UsageReportSchedule string
	CleanupSchedule     string
}

// Load reads configuration from the environment. A .env file (DOTENV_PATH,
// default .env) is loaded first if present; real environment variables win.
func Load() (*Config, error) {
	if err := loadDotenv(getEnv("DOTENV_PATH", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:              getEnvInt("PORT", 8080),
		BaseURL:           getEnv("BASE_URL", "http://localhost:8080"),
		CORSOrigins:       getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000"}),
		JWTSecret:         getEnv("JWT_SECRET", ""),
		JWTIssuer:         getEnv("JWT_ISSUER", ""),
		RequestsPerMinute: getEnvInt("REQUESTS_PER_MINUTE", 60),
		RequestTimeout:    getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		GenerationTimeout: getEnvDuration("GENERATION_TIMEOUT", 10*time.Minute),
		AutoMigrate:       getEnvBool("AUTO_MIGRATE", true),

		DatabaseURL:    getEnv("DATABASE_URL", "file:decollage.db?_journal=WAL&_timeout=5000"),
		TursoURL:       getEnv("TURSO_URL", ""),
		TursoAuthToken: getEnv("TURSO_AUTH_TOKEN", ""),

		StorageEndpoint:  getEnv("AWS_ENDPOINT_URL_S3", ""),
		StorageAccessKey: getEnv("AWS_ACCESS_KEY_ID", ""),
		StorageSecretKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		StorageBucket:    getEnv("BUCKET_NAME", ""),
		StorageRegion:    getEnv("AWS_REGION", "auto"),
		StoragePublicURL: strings.TrimRight(getEnv("STORAGE_PUBLIC_URL", ""), "/"),
		StorageRetention: getEnvDuration("STORAGE_RETENTION", 0),
		StyleCatalogKey:  getEnv("STYLE_CATALOG_KEY", "config/custom-styles.json"),
		StyleCatalogTTL:  getEnvDuration("STYLE_CATALOG_TTL", 5*time.Minute),

		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiBaseURL:       getEnv("GEMINI_BASE_URL", provider.DefaultGeminiBaseURL),
		GeminiImageModel:    getEnv("GEMINI_IMAGE_MODEL", provider.DefaultGeminiModel),
		GeminiAnalysisModel: getEnv("GEMINI_ANALYSIS_MODEL", provider.DefaultAnalysisModel),
		FalAPIKey:           getEnv("FAL_API_KEY", ""),
		FalBaseURL:          getEnv("FAL_BASE_URL", provider.DefaultFalBaseURL),
		FalModel:            getEnv("FAL_MODEL", provider.DefaultFalModel),
		FalTextModel:        getEnv("FAL_TEXT_MODEL", provider.DefaultFalTextModel),
		ProviderHTTPTimeout: getEnvDuration("PROVIDER_HTTP_TIMEOUT", 5*time.Minute),

		ProviderOrder:   getEnvSlice("PROVIDER_ORDER", []string{provider.NameGemini, provider.NameFal}),
		QualityProvider: getEnv("QUALITY_PROVIDER", provider.NameGemini),
		FallbackMaxHops: getEnvInt("FALLBACK_MAX_HOPS", router.DefaultMaxHops),
		FallbackDelay:   getEnvDuration("FALLBACK_DELAY", 1*time.Second),

		RateLimitCapacity:     getEnvInt("RATE_LIMIT_CAPACITY", 10),
		RateLimitPerSecond:    getEnvFloat("RATE_LIMIT_PER_SECOND", 1),
		RateLimitPollInterval: getEnvDuration("RATE_LIMIT_POLL_INTERVAL", 100*time.Millisecond),

		BreakerFailureThreshold:  getEnvInt("BREAKER_FAILURE_THRESHOLD", 5),
		BreakerRecoveryThreshold: getEnvInt("BREAKER_RECOVERY_THRESHOLD", 2),
		BreakerCooldown:          getEnvDuration("BREAKER_COOLDOWN", 60*time.Second),

		RetryMaxAttempts:          getEnvInt("RETRY_MAX_ATTEMPTS", 3),
		RetryInitialDelay:         getEnvDuration("RETRY_INITIAL_DELAY", 1*time.Second),
		RetryMaxDelay:             getEnvDuration("RETRY_MAX_DELAY", 10*time.Second),
		RetryMultiplier:           getEnvFloat("RETRY_MULTIPLIER", 2),
		AttemptTimeout:            getEnvDuration("ATTEMPT_TIMEOUT", 120*time.Second),
		PriorityRetryMaxAttempts:  getEnvInt("PRIORITY_RETRY_MAX_ATTEMPTS", 5),
		PriorityRetryInitialDelay: getEnvDuration("PRIORITY_RETRY_INITIAL_DELAY", 2*time.Second),
		PriorityRetryMaxDelay:     getEnvDuration("PRIORITY_RETRY_MAX_DELAY", 30*time.Second),
		PriorityAttemptTimeout:    getEnvDuration("PRIORITY_ATTEMPT_TIMEOUT", 300*time.Second),

		PremiumMultiplier: getEnvFloat("PREMIUM_MULTIPLIER", 1.5),
		USDToCLP:          getEnvFloat("USD_TO_CLP", 950),

		MaxImageBytes:    getEnvInt("MAX_IMAGE_BYTES", 10<<20),
		MaxBatchItems:    getEnvInt("MAX_BATCH_ITEMS", 20),
		BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 3),
		TokensPerImage:   getEnvInt("TOKENS_PER_IMAGE", 1),

		WorkerPollInterval: getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerJobTimeout:   getEnvDuration("WORKER_JOB_TIMEOUT", 20*time.Minute),
		StaleBatchAge:      getEnvDuration("STALE_BATCH_AGE", 30*time.Minute),

		IdleTimeout: getEnvDuration("IDLE_TIMEOUT", 0),

		UsageReportSchedule: getEnv("USAGE_REPORT_SCHEDULE", "0 0 6 * * *"),
		CleanupSchedule:     getEnv("CLEANUP_SCHEDULE", "0 30 3 * * *"),
	}

	cfg.StorageEnabled = cfg.StorageBucket != "" && cfg.StorageEndpoint != ""

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.GeminiAPIKey == "" && c.FalAPIKey == "" {
		return fmt.Errorf("at least one of GEMINI_API_KEY or FAL_API_KEY is required")
	}
	if c.RetryMultiplier <= 1 {
		return fmt.Errorf("RETRY_MULTIPLIER must be greater than 1, got %v", c.RetryMultiplier)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be positive")
	}
	return nil
}

// RetryPolicy returns the default retry policy.
func (c *Config) RetryPolicy() resilience.Policy {
	p := resilience.DefaultPolicy()
	p.MaxAttempts = c.RetryMaxAttempts
	p.InitialDelay = c.RetryInitialDelay
	p.MaxDelay = c.RetryMaxDelay
	p.Multiplier = c.RetryMultiplier
	p.AttemptTimeout = c.AttemptTimeout
	return p
}

// PriorityRetryPolicy returns the higher-budget policy for priority requests.
func (c *Config) PriorityRetryPolicy() resilience.Policy {
	p := resilience.PriorityPolicy()
	p.MaxAttempts = c.PriorityRetryMaxAttempts
	p.InitialDelay = c.PriorityRetryInitialDelay
	p.MaxDelay = c.PriorityRetryMaxDelay
	p.Multiplier = c.RetryMultiplier
	p.AttemptTimeout = c.PriorityAttemptTimeout
	return p
}

// BreakerConfig returns the per-provider circuit breaker settings.
func (c *Config) BreakerConfig() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		FailureThreshold:  c.BreakerFailureThreshold,
		RecoveryThreshold: c.BreakerRecoveryThreshold,
		Cooldown:          c.BreakerCooldown,
	}
}

// RateLimitConfig returns the per-provider token bucket settings.
func (c *Config) RateLimitConfig() resilience.RateLimiterConfig {
	return resilience.RateLimiterConfig{
		Capacity:        c.RateLimitCapacity,
		RefillPerSecond: c.RateLimitPerSecond,
		PollInterval:    c.RateLimitPollInterval,
	}
}

// RouterConfig returns routing and per-provider resilience settings.
func (c *Config) RouterConfig() router.Config {
	return router.Config{
		Order:           c.ProviderOrder,
		QualityProvider: c.QualityProvider,
		MaxHops:         c.FallbackMaxHops,
		FallbackDelay:   c.FallbackDelay,
		Breaker:         c.BreakerConfig(),
		RateLimit:       c.RateLimitConfig(),
	}
}

// Pricing returns the rate table with configured overrides.
func (c *Config) Pricing() cost.Pricing {
	p := cost.DefaultPricing()
	p.PremiumMultiplier = c.PremiumMultiplier
	p.USDToCLP = c.USDToCLP
	return p
}

func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		lower := strings.ToLower(value)
		return lower == "true" || lower == "1" || lower == "yes"
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvSlice splits a comma-separated value, trimming blanks.
func getEnvSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
