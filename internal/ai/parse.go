package ai

import (
	"strings"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

var trendWords = map[string]domain.Trend{
	"UPTREND":   domain.TrendBullish,
	"DOWNTREND": domain.TrendBearish,
	"NEUTRAL":   domain.TrendSideways,
}

// ParseChartAnalysis reads trend and confidence from the line format the
// chart prompt asks for:
//
//	Line 1: UPTREND | DOWNTREND | NEUTRAL
//	Line 2: low | medium | high
//
// Anything unrecognized falls back to sideways / medium.
func ParseChartAnalysis(text string) (domain.Trend, domain.Confidence) {
	lines := strings.Split(strings.TrimSpace(text), "\n")

	trend := domain.TrendSideways
	if len(lines) > 0 {
		if t, ok := trendWords[normalizeLine(lines[0], true)]; ok {
			trend = t
		}
	}

	confidence := domain.ConfidenceMedium
	if len(lines) > 1 {
		switch c := domain.Confidence(normalizeLine(lines[1], false)); c {
		case domain.ConfidenceLow, domain.ConfidenceMedium, domain.ConfidenceHigh:
			confidence = c
		}
	}

	return trend, confidence
}

// normalizeLine strips markdown emphasis and an optional "Line N:" label.
func normalizeLine(line string, upper bool) string {
	line = strings.TrimSpace(strings.Trim(strings.TrimSpace(line), "*#_` "))
	if i := strings.Index(line, ":"); i >= 0 && strings.HasPrefix(strings.ToLower(line), "line") {
		line = strings.TrimSpace(line[i+1:])
	}
	line = strings.TrimRight(line, ".")
	if upper {
		return strings.ToUpper(line)
	}
	return strings.ToLower(line)
}
