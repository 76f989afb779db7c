package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env         string
	Port        int
	LogLevel    string
	DatabaseUrl string

	// Public base URL, used for checkout redirect targets
	BaseURL string

	// Token signing
	JWTSecret string
	JWTTTL    time.Duration

	// DebugEndpointsEnabled registers POST /debug/upgrade-plan.
	// Never enable this in production.
	DebugEndpointsEnabled bool

	// WebhookAllowUnsigned accepts unsigned Lemon Squeezy webhooks when no
	// secret is configured. Off unless explicitly set.
	WebhookAllowUnsigned bool

	// Lemon Squeezy
	LemonSqueezyAPIKey           string
	LemonSqueezyStoreID          string
	LemonSqueezyWebhookSecret    string
	LemonSqueezyProVariantID     string
	LemonSqueezyPremiumVariantID string

	// Stripe
	StripeSecretKey      string
	StripeWebhookSecret  string
	StripeProPriceID     string
	StripePremiumPriceID string

	// Paddle
	PaddleAPIKey         string
	PaddleWebhookSecret  string
	PaddleEnvironment    string
	PaddleProPriceID     string
	PaddlePremiumPriceID string

	// AI Provider Configuration
	AIProvider       string // "anthropic" or "mock"
	AnthropicAPIKey  string
	AnthropicModel   string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Uploads
	MaxUploadBytes    int64
	ChartMaxDimension int
	ChartMaxPixels    int

	// Storage Configuration
	StorageProvider string // "local", "r2" or "none"

	LocalStoragePath string
	LocalStorageURL  string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),
		BaseURL:  strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),

		// SECRET_KEY is the name older deployments used
		JWTSecret: getEnv("JWT_SECRET", os.Getenv("SECRET_KEY")),
		JWTTTL:    getEnvDuration("JWT_TTL", 30*24*time.Hour),

		DebugEndpointsEnabled: getEnvBool("DEBUG_ENDPOINTS_ENABLED", false),
		WebhookAllowUnsigned:  getEnvBool("WEBHOOK_ALLOW_UNSIGNED", false),

		LemonSqueezyAPIKey:           getEnv("LEMON_SQUEEZY_API_KEY", ""),
		LemonSqueezyStoreID:          getEnv("LEMON_SQUEEZY_STORE_ID", ""),
		LemonSqueezyWebhookSecret:    getEnv("LEMON_SQUEEZY_WEBHOOK_SECRET", ""),
		LemonSqueezyProVariantID:     getEnv("LEMON_SQUEEZY_PRO_VARIANT_ID", ""),
		LemonSqueezyPremiumVariantID: getEnv("LEMON_SQUEEZY_PREMIUM_VARIANT_ID", ""),

		StripeSecretKey:      getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret:  getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeProPriceID:     getEnv("STRIPE_PRO_PRICE_ID", ""),
		StripePremiumPriceID: getEnv("STRIPE_PREMIUM_PRICE_ID", ""),

		PaddleAPIKey:         getEnv("PADDLE_API_KEY", ""),
		PaddleWebhookSecret:  getEnv("PADDLE_WEBHOOK_SECRET", ""),
		PaddleEnvironment:    getEnv("PADDLE_ENVIRONMENT", "production"),
		PaddleProPriceID:     getEnv("PADDLE_PRO_PRICE_ID", ""),
		PaddlePremiumPriceID: getEnv("PADDLE_PREMIUM_PRICE_ID", ""),

		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		AnthropicAPIKey:  getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:   getEnv("ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 60*time.Second),

		MaxUploadBytes:    int64(getEnvInt("MAX_UPLOAD_BYTES", 10<<20)),
		ChartMaxDimension: getEnvInt("CHART_MAX_DIMENSION", 1568),
		ChartMaxPixels:    getEnvInt("CHART_MAX_PIXELS", 40_000_000),

		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		if c.Env != "development" {
			return fmt.Errorf("JWT_SECRET is required outside development")
		}
		c.JWTSecret = "development-only-secret"
	}

	switch c.StorageProvider {
	case "r2":
		if c.R2AccountID == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2AccessKeyID == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2SecretAccessKey == "" {
			return fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if c.R2BucketName == "" {
			return fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	case "local", "none":
	default:
		return fmt.Errorf("STORAGE_PROVIDER must be 'local', 'r2' or 'none', got: %s", c.StorageProvider)
	}

	switch c.AIProvider {
	case "anthropic":
		if c.AnthropicAPIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY is required when AI_PROVIDER is 'anthropic'")
		}
	case "mock":
	default:
		return fmt.Errorf("AI_PROVIDER must be either 'anthropic' or 'mock', got: %s", c.AIProvider)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.ChartMaxDimension < 64 {
		return fmt.Errorf("CHART_MAX_DIMENSION must be at least 64, got: %d", c.ChartMaxDimension)
	}
	if c.ChartMaxPixels < c.ChartMaxDimension*c.ChartMaxDimension {
		return fmt.Errorf("CHART_MAX_PIXELS must be at least CHART_MAX_DIMENSION squared, got: %d", c.ChartMaxPixels)
	}

	return nil
}

// IsDevelopment reports whether the server runs with development defaults.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
