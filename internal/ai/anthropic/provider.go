package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/DukeRupert/tradeflow/internal/ai"
	"github.com/DukeRupert/tradeflow/internal/metrics"
)

const (
	// APIBaseURL is the base URL for the Anthropic API
	APIBaseURL = "https://api.anthropic.com/v1/messages"

	// APIVersion is the Anthropic API version
	APIVersion = "2023-06-01"

	// DefaultModel is the default Claude model to use
	DefaultModel = "claude-3-5-sonnet-20241022"

	// MaxImageSize is the maximum image size in bytes accepted by the API
	MaxImageSize = 5 * 1024 * 1024

	// MaxTokens bounds the length of the line-format answer
	MaxTokens = 1024

	// Pricing in cents per 1M tokens for claude-3-5-sonnet
	PricingInputCents  = 300  // $3 per 1M input tokens
	PricingOutputCents = 1500 // $15 per 1M output tokens
)

// Config contains configuration for the Anthropic provider
type Config struct {
	APIKey         string
	Model          string
	BaseURL        string // overrides APIBaseURL, used by tests
	ProviderConfig ai.ProviderConfig
}

// Provider implements ai.ChartAnalyzer using Anthropic's Claude API
type Provider struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates a new Anthropic AI provider
func New(config Config, logger *slog.Logger) (*Provider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.BaseURL == "" {
		config.BaseURL = APIBaseURL
	}
	if config.ProviderConfig.MaxRetries == 0 {
		config.ProviderConfig.MaxRetries = 3
	}
	if config.ProviderConfig.RetryBaseDelay == 0 {
		config.ProviderConfig.RetryBaseDelay = 1 * time.Second
	}
	if config.ProviderConfig.RequestTimeout == 0 {
		config.ProviderConfig.RequestTimeout = 60 * time.Second
	}

	return &Provider{
		config: config,
		client: &http.Client{
			Timeout: config.ProviderConfig.RequestTimeout,
		},
		logger: logger,
	}, nil
}

// AnalyzeChart sends the chart to Claude and parses the line-format answer.
func (p *Provider) AnalyzeChart(ctx context.Context, params ai.AnalyzeChartParams) (*ai.ChartAnalysis, error) {
	startTime := time.Now()

	if err := validateImageParams(params); err != nil {
		return nil, ai.WrapError("analyze chart", err)
	}

	body, err := p.buildRequestBody(params)
	if err != nil {
		return nil, ai.WrapError("build request", err)
	}

	resp, err := p.executeWithRetry(ctx, body)
	if err != nil {
		metrics.AIAPICallsTotal.WithLabelValues("error").Inc()
		return nil, ai.WrapError("execute request", err)
	}
	metrics.AIAPICallsTotal.WithLabelValues("success").Inc()

	text := responseText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, ai.WrapError("parse response", ai.EAIEmptyResponse)
	}

	usage := ai.UsageInfo{
		Model:        p.config.Model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
		CostCents:    calculateCost(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Duration:     time.Since(startTime),
	}
	metrics.AITokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
	metrics.AITokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
	metrics.AICostCentsTotal.Add(float64(usage.CostCents))

	p.logger.Info("chart analyzed",
		"user_id", params.UserID,
		"model", usage.Model,
		"input_tokens", usage.InputTokens,
		"output_tokens", usage.OutputTokens,
		"duration_ms", usage.Duration.Milliseconds(),
	)

	trend, confidence := ai.ParseChartAnalysis(text)
	return &ai.ChartAnalysis{
		Text:       text,
		Trend:      trend,
		Confidence: confidence,
		Usage:      usage,
	}, nil
}

func validateImageParams(params ai.AnalyzeChartParams) error {
	if len(params.ImageData) == 0 {
		return ai.EAIInvalidImage
	}
	if len(params.ImageData) > MaxImageSize {
		return fmt.Errorf("%w: image size %d exceeds maximum %d", ai.EAIInvalidImage, len(params.ImageData), MaxImageSize)
	}
	switch params.ContentType {
	case "image/jpeg", "image/png", "image/gif", "image/webp":
		return nil
	case "":
		return fmt.Errorf("%w: content type is required", ai.EAIInvalidImage)
	default:
		return fmt.Errorf("%w: unsupported content type %s", ai.EAIInvalidImage, params.ContentType)
	}
}

func (p *Provider) buildRequestBody(params ai.AnalyzeChartParams) ([]byte, error) {
	reqBody := apiRequest{
		Model:     p.config.Model,
		MaxTokens: MaxTokens,
		Messages: []apiMessage{
			{
				Role: "user",
				Content: []apiContent{
					{
						Type: "image",
						Source: &apiImageSource{
							Type:      "base64",
							MediaType: params.ContentType,
							Data:      base64.StdEncoding.EncodeToString(params.ImageData),
						},
					},
					{
						Type: "text",
						Text: chartAnalysisPrompt,
					},
				},
			},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	return bodyBytes, nil
}

// executeWithRetry sends the request with exponential backoff on transient errors
func (p *Provider) executeWithRetry(ctx context.Context, body []byte) (*apiResponse, error) {
	var lastErr error

	for attempt := 1; attempt <= p.config.ProviderConfig.MaxRetries; attempt++ {
		resp, err := p.executeRequest(ctx, body)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !ai.IsRetryable(err) {
			return nil, err
		}
		if attempt >= p.config.ProviderConfig.MaxRetries {
			break
		}

		// base * 2^(attempt-1)
		delay := p.config.ProviderConfig.RetryBaseDelay * time.Duration(1<<(attempt-1))
		p.logger.Info("Retrying AI request", "attempt", attempt, "delay", delay, "error", err)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func (p *Provider) executeRequest(ctx context.Context, body []byte) (*apiResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", APIVersion)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ai.EAITimeout
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// Network errors are typically retryable
		return nil, ai.EAIUnavailable
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, mapHTTPError(resp.StatusCode, bodyBytes)
	}

	var apiResp apiResponse
	if err := json.Unmarshal(bodyBytes, &apiResp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return &apiResp, nil
}

// mapHTTPError maps HTTP status codes to ai sentinel errors
func mapHTTPError(statusCode int, body []byte) error {
	var errResp apiErrorResponse
	_ = json.Unmarshal(body, &errResp)

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ai.EAIUnauthorized
	case http.StatusTooManyRequests:
		return ai.EAIRateLimit
	case http.StatusRequestTimeout:
		return ai.EAITimeout
	case http.StatusBadRequest:
		if errResp.Error.Type == "invalid_request_error" {
			return fmt.Errorf("%w: %s", ai.EAIInvalidImage, errResp.Error.Message)
		}
		return fmt.Errorf("bad request: %s", errResp.Error.Message)
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout, 529:
		return ai.EAIUnavailable
	default:
		return fmt.Errorf("API error (status %d): %s", statusCode, errResp.Error.Message)
	}
}

func responseText(resp *apiResponse) string {
	var b strings.Builder
	for _, content := range resp.Content {
		if content.Type == "text" {
			b.WriteString(content.Text)
		}
	}
	return b.String()
}

// calculateCost calculates the cost in cents for the given token usage
func calculateCost(inputTokens, outputTokens int) int {
	inputCost := (inputTokens * PricingInputCents) / 1_000_000
	outputCost := (outputTokens * PricingOutputCents) / 1_000_000
	return inputCost + outputCost
}

var _ ai.ChartAnalyzer = (*Provider)(nil)

// API request/response types

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string       `json:"role"`
	Content []apiContent `json:"content"`
}

type apiContent struct {
	Type   string          `json:"type"`
	Text   string          `json:"text,omitempty"`
	Source *apiImageSource `json:"source,omitempty"`
}

type apiImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type apiResponse struct {
	ID      string             `json:"id"`
	Type    string             `json:"type"`
	Role    string             `json:"role"`
	Content []apiContentOutput `json:"content"`
	Model   string             `json:"model"`
	Usage   apiUsage           `json:"usage"`
}

type apiContentOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiErrorResponse struct {
	Type  string   `json:"type"`
	Error apiError `json:"error"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
