package service

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/repository"
	"github.com/DukeRupert/tradeflow/internal/storage"
)

// AnalysisRecorder persists finished analyses and serves the history.
// Records are append-only; owners may delete their own.
type AnalysisRecorder struct {
	store   repository.Store
	archive storage.Storage
	logger  *slog.Logger
}

// NewAnalysisRecorder creates a recorder. archive may be nil when chart
// archiving is disabled.
func NewAnalysisRecorder(store repository.Store, archive storage.Storage, logger *slog.Logger) *AnalysisRecorder {
	return &AnalysisRecorder{
		store:   store,
		archive: archive,
		logger:  logger,
	}
}

// Record appends an analysis for the user and returns its id. It never
// touches the usage counter.
func (r *AnalysisRecorder) Record(ctx context.Context, user *domain.User, params domain.RecordAnalysisParams) (*domain.Analysis, error) {
	const op = "recorder.record"

	row, err := r.store.CreateAnalysis(ctx, repository.CreateAnalysisParams{
		ID:           uuid.New(),
		UserID:       user.ID,
		UserEmail:    user.Email,
		Trend:        string(params.Trend),
		Confidence:   string(params.Confidence),
		AnalysisText: params.Text,
		ImageKey:     sql.NullString{String: params.ImageKey, Valid: params.ImageKey != ""},
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to save analysis")
	}
	return repoAnalysisToDomain(row), nil
}

// ListRecent returns the user's analyses, newest first. limit is clamped
// to (0, MaxHistoryItems].
func (r *AnalysisRecorder) ListRecent(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Analysis, error) {
	const op = "recorder.list_recent"

	if limit <= 0 || limit > domain.MaxHistoryItems {
		limit = domain.MaxHistoryItems
	}

	rows, err := r.store.ListRecentAnalysesByUser(ctx, repository.ListRecentAnalysesByUserParams{
		UserID: userID,
		Limit:  int32(limit),
	})
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to load analysis history")
	}

	out := make([]domain.Analysis, 0, len(rows))
	for _, row := range rows {
		out = append(out, *repoAnalysisToDomain(row))
	}
	return out, nil
}

// Get returns one of the user's analyses. Records owned by someone else
// are reported as not found.
func (r *AnalysisRecorder) Get(ctx context.Context, userID, id uuid.UUID) (*domain.Analysis, error) {
	const op = "recorder.get"

	row, err := r.store.GetAnalysisForUser(ctx, repository.GetAnalysisForUserParams{ID: id, UserID: userID})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "analysis", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to load analysis")
	}
	return repoAnalysisToDomain(row), nil
}

// Delete removes one of the user's analyses. Deleting a record that does
// not exist or belongs to someone else returns not_found and changes
// nothing. The archived chart is removed best-effort.
func (r *AnalysisRecorder) Delete(ctx context.Context, userID, id uuid.UUID) error {
	const op = "recorder.delete"

	row, err := r.store.DeleteAnalysisForUser(ctx, repository.DeleteAnalysisForUserParams{ID: id, UserID: userID})
	if err != nil {
		if repository.IsNotFound(err) {
			return domain.NotFound(op, "analysis", id.String())
		}
		return domain.Internal(err, op, "Failed to delete analysis")
	}

	r.logger.Info("analysis deleted", "user_id", userID, "analysis_id", id)

	if row.ImageKey.Valid && r.archive != nil {
		if err := r.archive.Delete(ctx, row.ImageKey.String); err != nil {
			r.logger.Warn("failed to delete archived chart",
				"analysis_id", id,
				"key", row.ImageKey.String,
				"error", err,
			)
		}
	}
	return nil
}

// Count returns the number of analyses the user has on record.
func (r *AnalysisRecorder) Count(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := r.store.CountAnalysesByUser(ctx, userID)
	if err != nil {
		return 0, domain.Internal(err, "recorder.count", "Failed to count analyses")
	}
	return n, nil
}

func repoAnalysisToDomain(a repository.Analysis) *domain.Analysis {
	return &domain.Analysis{
		ID:         a.ID,
		UserID:     a.UserID,
		UserEmail:  a.UserEmail,
		Trend:      domain.Trend(a.Trend),
		Confidence: domain.Confidence(a.Confidence),
		Text:       a.AnalysisText,
		ImageKey:   a.ImageKey.String,
		CreatedAt:  a.CreatedAt,
	}
}
