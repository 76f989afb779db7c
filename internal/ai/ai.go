package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

// ChartAnalyzer sends a chart image to a vision model and returns its
// structured text analysis.
type ChartAnalyzer interface {
	AnalyzeChart(ctx context.Context, params AnalyzeChartParams) (*ChartAnalysis, error)
}

// AnalyzeChartParams contains parameters for chart analysis
type AnalyzeChartParams struct {
	ImageData   []byte    // Raw image bytes
	ContentType string    // MIME type (e.g., "image/png")
	UserID      uuid.UUID // User ID for usage tracking
}

// ChartAnalysis is the analyzer's answer. Trend and Confidence are parsed
// from the first two lines of Text.
type ChartAnalysis struct {
	Text       string
	Trend      domain.Trend
	Confidence domain.Confidence
	Usage      UsageInfo
}

// UsageInfo tracks API usage for billing and monitoring
type UsageInfo struct {
	Model        string        // AI model used
	InputTokens  int           // Tokens in the request
	OutputTokens int           // Tokens in the response
	CostCents    int           // Estimated cost in cents
	Duration     time.Duration // Request duration
}

// ProviderConfig contains common configuration for AI providers
type ProviderConfig struct {
	MaxRetries     int           // Maximum retry attempts for transient errors
	RetryBaseDelay time.Duration // Base delay for exponential backoff
	RequestTimeout time.Duration // Timeout for individual requests
}

// Error codes for AI provider operations
var (
	// EAIRateLimit indicates the API rate limit has been exceeded
	EAIRateLimit = errors.New("ai provider rate limit exceeded")

	// EAIInvalidImage indicates the image format or content is invalid
	EAIInvalidImage = errors.New("invalid image format or content")

	// EAIContentPolicy indicates the image violates content policy
	EAIContentPolicy = errors.New("image violates content policy")

	// EAITimeout indicates the request timed out
	EAITimeout = errors.New("ai request timed out")

	// EAIUnavailable indicates the AI service is temporarily unavailable
	EAIUnavailable = errors.New("ai service temporarily unavailable")

	// EAIUnauthorized indicates invalid API credentials
	EAIUnauthorized = errors.New("ai provider authentication failed")

	// EAIEmptyResponse indicates the model returned no text
	EAIEmptyResponse = errors.New("ai provider returned an empty response")
)

// IsRetryable returns true if the error is a transient error that can be retried
func IsRetryable(err error) bool {
	return errors.Is(err, EAIRateLimit) ||
		errors.Is(err, EAITimeout) ||
		errors.Is(err, EAIUnavailable)
}

// WrapError wraps an error with context about the AI operation
func WrapError(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("ai %s: %w", operation, err)
}
