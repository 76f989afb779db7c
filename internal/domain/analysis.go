package domain

import (
	"time"

	"github.com/google/uuid"
)

// Trend is the market direction reported for a chart.
type Trend string

const (
	TrendBullish  Trend = "bullish"
	TrendBearish  Trend = "bearish"
	TrendSideways Trend = "sideways"
)

// Confidence is the analyzer's self-reported certainty.
type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// MaxHistoryItems caps list_recent.
const MaxHistoryItems = 50

// HistoryPreviewLength is the number of runes of analysis text returned
// in history listings.
const HistoryPreviewLength = 200

// Analysis is one completed chart analysis. Records are append-only; the
// only mutation is deletion by the owner.
type Analysis struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	UserEmail  string
	Trend      Trend
	Confidence Confidence
	Text       string
	ImageKey   string
	CreatedAt  time.Time
}

// Preview returns the analysis text truncated for list views.
func (a *Analysis) Preview() string {
	r := []rune(a.Text)
	if len(r) <= HistoryPreviewLength {
		return a.Text
	}
	return string(r[:HistoryPreviewLength])
}

// RecordAnalysisParams contains the fields persisted for a finished analysis.
type RecordAnalysisParams struct {
	Trend      Trend
	Confidence Confidence
	Text       string
	ImageKey   string
}
