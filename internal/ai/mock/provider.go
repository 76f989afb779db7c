package mock

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/tradeflow/internal/ai"
)

// DefaultAnalysis is the canned chart analysis returned when no response
// is configured.
const DefaultAnalysis = `UPTREND
medium
Reference: 100.00
Lower: 96.50
Upper: 104.20

**Key Levels:**
* Support near 96.50
* Resistance near 104.20

**Pattern Analysis:**
* Higher highs and higher lows on the visible range
* Momentum indicator trending up

**Risk Assessment:**
* Continuation probability moderate
* Risk/reward around 1:2

Educational analysis only, not financial advice.`

// Provider is a mock chart analyzer for testing and development
type Provider struct {
	logger *slog.Logger

	mu sync.Mutex

	// Configurable responses for testing
	Response string
	Error    error

	// Call tracking for testing
	Calls int
}

// New creates a new mock AI provider
func New(logger *slog.Logger) *Provider {
	return &Provider{
		logger: logger,
	}
}

// AnalyzeChart returns the configured response or the canned analysis.
func (p *Provider) AnalyzeChart(ctx context.Context, params ai.AnalyzeChartParams) (*ai.ChartAnalysis, error) {
	p.mu.Lock()
	p.Calls++
	text, err := p.Response, p.Error
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}
	if text == "" {
		text = DefaultAnalysis
	}

	if p.logger != nil {
		p.logger.Debug("mock chart analysis",
			"user_id", params.UserID,
			"image_bytes", len(params.ImageData),
		)
	}

	trend, confidence := ai.ParseChartAnalysis(text)
	return &ai.ChartAnalysis{
		Text:       text,
		Trend:      trend,
		Confidence: confidence,
		Usage: ai.UsageInfo{
			Model:    "mock",
			Duration: time.Millisecond,
		},
	}, nil
}

// CallCount returns the number of AnalyzeChart calls so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Calls
}

var _ ai.ChartAnalyzer = (*Provider)(nil)
