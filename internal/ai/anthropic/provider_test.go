package anthropic

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/tradeflow/internal/ai"
	"github.com/DukeRupert/tradeflow/internal/domain"
)

func newTestProvider(t *testing.T, url string) *Provider {
	t.Helper()
	p, err := New(Config{
		APIKey:  "test-key",
		BaseURL: url,
		ProviderConfig: ai.ProviderConfig{
			MaxRetries:     3,
			RetryBaseDelay: time.Millisecond,
			RequestTimeout: 5 * time.Second,
		},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return p
}

func TestAnalyzeChart_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, APIVersion, r.Header.Get("anthropic-version"))

		var req apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		require.Len(t, req.Messages[0].Content, 2)
		assert.Equal(t, "image/png", req.Messages[0].Content[0].Source.MediaType)

		_ = json.NewEncoder(w).Encode(apiResponse{
			Content: []apiContentOutput{{Type: "text", Text: "DOWNTREND\nhigh\nReference: 10"}},
			Usage:   apiUsage{InputTokens: 1000, OutputTokens: 200},
		})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	got, err := p.AnalyzeChart(context.Background(), ai.AnalyzeChartParams{
		ImageData:   []byte{0x89, 'P', 'N', 'G'},
		ContentType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TrendBearish, got.Trend)
	assert.Equal(t, domain.ConfidenceHigh, got.Confidence)
	assert.Equal(t, 1000, got.Usage.InputTokens)
}

func TestAnalyzeChart_RetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(apiResponse{
			Content: []apiContentOutput{{Type: "text", Text: "UPTREND\nlow"}},
		})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	got, err := p.AnalyzeChart(context.Background(), ai.AnalyzeChartParams{
		ImageData:   []byte{1, 2, 3},
		ContentType: "image/png",
	})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, domain.TrendBullish, got.Trend)
}

func TestAnalyzeChart_DoesNotRetryAuthFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.AnalyzeChart(context.Background(), ai.AnalyzeChartParams{
		ImageData:   []byte{1, 2, 3},
		ContentType: "image/png",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ai.EAIUnauthorized)
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnalyzeChart_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(apiResponse{})
	}))
	defer srv.Close()

	p := newTestProvider(t, srv.URL)
	_, err := p.AnalyzeChart(context.Background(), ai.AnalyzeChartParams{
		ImageData:   []byte{1},
		ContentType: "image/jpeg",
	})
	assert.ErrorIs(t, err, ai.EAIEmptyResponse)
}

func TestValidateImageParams(t *testing.T) {
	assert.ErrorIs(t, validateImageParams(ai.AnalyzeChartParams{}), ai.EAIInvalidImage)
	assert.ErrorIs(t, validateImageParams(ai.AnalyzeChartParams{ImageData: []byte{1}, ContentType: "application/pdf"}), ai.EAIInvalidImage)
	assert.NoError(t, validateImageParams(ai.AnalyzeChartParams{ImageData: []byte{1}, ContentType: "image/webp"}))
}

func TestCalculateCost(t *testing.T) {
	assert.Equal(t, 0, calculateCost(1000, 100))
	assert.Equal(t, 300+1500, calculateCost(1_000_000, 1_000_000))
}
