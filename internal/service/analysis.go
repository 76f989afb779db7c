package service

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/DukeRupert/tradeflow/internal/ai"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/metrics"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

// ChartUpload is an uploaded chart as received from the client.
type ChartUpload struct {
	Filename    string
	ContentType string
	Data        io.Reader
}

// AnalysisResult is what a successful analysis returns to the caller.
// Recorded is false when the analysis was delivered but could not be
// saved to history; Analysis.ID is then uuid.Nil.
type AnalysisResult struct {
	Analysis      *domain.Analysis
	Recorded      bool
	AnalysesUsed  int
	AnalysesLimit int
}

// AnalysisService runs the analyze flow: gate pre-check, image
// normalization, analyzer call, unit consumption, archive and record.
//
// A unit is consumed only after the analyzer succeeds. If the process
// dies between consumption and the history insert the user keeps the
// unit spent without a record; the opposite ordering would hand out
// free analyses.
type AnalysisService struct {
	gate       *UsageGate
	recorder   *AnalysisRecorder
	analyzer   ai.ChartAnalyzer
	normalizer *ChartNormalizer
	archive    storage.Storage
	logger     *slog.Logger
}

// NewAnalysisService wires the analyze flow. archive may be nil.
func NewAnalysisService(
	gate *UsageGate,
	recorder *AnalysisRecorder,
	analyzer ai.ChartAnalyzer,
	normalizer *ChartNormalizer,
	archive storage.Storage,
	logger *slog.Logger,
) *AnalysisService {
	return &AnalysisService{
		gate:       gate,
		recorder:   recorder,
		analyzer:   analyzer,
		normalizer: normalizer,
		archive:    archive,
		logger:     logger,
	}
}

func (s *AnalysisService) Analyze(ctx context.Context, user *domain.User, upload ChartUpload) (*AnalysisResult, error) {
	const op = "analysis.analyze"

	if _, err := s.gate.Check(ctx, user.ID); err != nil {
		metrics.AnalysesTotal.WithLabelValues("denied").Inc()
		return nil, err
	}

	// Generic types are left to the decoder.
	declared := upload.ContentType != "" && upload.ContentType != "application/octet-stream"
	if declared && !storage.IsChartImageType(upload.ContentType) {
		return nil, domain.Invalid(op, "File must be a PNG, JPEG, GIF or WebP image")
	}

	chart, err := s.normalizer.Normalize(upload.Data)
	if err != nil {
		return nil, err
	}

	result, err := s.analyzer.AnalyzeChart(ctx, ai.AnalyzeChartParams{
		ImageData:   chart.Data,
		ContentType: chart.ContentType,
		UserID:      user.ID,
	})
	if err != nil {
		metrics.AnalysesTotal.WithLabelValues("failed").Inc()
		s.logger.Error("chart analysis failed",
			"user_id", user.ID,
			"filename", upload.Filename,
			"error", err,
		)
		return nil, domain.AnalysisFailed(err, op)
	}

	grant, err := s.gate.TryConsume(ctx, user.ID)
	if err != nil {
		if domain.ErrorCode(err) == domain.EQUOTA {
			metrics.AnalysesTotal.WithLabelValues("denied").Inc()
		}
		return nil, err
	}

	imageKey := s.archiveChart(ctx, user, chart)

	analysis, err := s.recorder.Record(ctx, user, domain.RecordAnalysisParams{
		Trend:      result.Trend,
		Confidence: result.Confidence,
		Text:       result.Text,
		ImageKey:   imageKey,
	})
	if err != nil {
		// The unit stays consumed and the caller still gets the analysis.
		s.logger.Error("failed to record analysis",
			"user_id", user.ID,
			"analyses_used", grant.Used,
			"error", err,
		)
		metrics.AnalysesTotal.WithLabelValues("unrecorded").Inc()
		s.discardChart(ctx, user, imageKey)
		return &AnalysisResult{
			Analysis: &domain.Analysis{
				UserID:     user.ID,
				UserEmail:  user.Email,
				Trend:      result.Trend,
				Confidence: result.Confidence,
				Text:       result.Text,
				CreatedAt:  time.Now().UTC(),
			},
			AnalysesUsed:  grant.Used,
			AnalysesLimit: grant.Limit,
		}, nil
	}

	metrics.AnalysesTotal.WithLabelValues("recorded").Inc()
	s.logger.Info("chart analyzed",
		"user_id", user.ID,
		"analysis_id", analysis.ID,
		"trend", analysis.Trend,
		"confidence", analysis.Confidence,
		"analyses_used", grant.Used,
		"analyses_limit", grant.Limit,
	)

	return &AnalysisResult{
		Analysis:      analysis,
		Recorded:      true,
		AnalysesUsed:  grant.Used,
		AnalysesLimit: grant.Limit,
	}, nil
}

// archiveChart stores the normalized chart and returns its key, or "" when
// archiving is disabled or fails.
func (s *AnalysisService) archiveChart(ctx context.Context, user *domain.User, chart *ChartImage) string {
	if s.archive == nil {
		return ""
	}

	key := storage.ChartKey(user.ID)
	err := s.archive.Put(ctx, key, bytes.NewReader(chart.Data), storage.PutOptions{
		ContentType: chart.ContentType,
	})
	if err != nil {
		s.logger.Warn("failed to archive chart", "user_id", user.ID, "key", key, "error", err)
		return ""
	}
	return key
}

// discardChart removes an archived chart that no history record points at.
func (s *AnalysisService) discardChart(ctx context.Context, user *domain.User, key string) {
	if s.archive == nil || key == "" {
		return
	}
	if err := s.archive.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to remove unrecorded chart", "user_id", user.ID, "key", key, "error", err)
	}
}
