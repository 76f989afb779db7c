// source: analyses.sql

package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const analysisColumns = `id, user_id, user_email, trend, confidence, analysis_text, image_key, created_at`

func scanAnalysis(row interface{ Scan(...interface{}) error }) (Analysis, error) {
	var i Analysis
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.UserEmail,
		&i.Trend,
		&i.Confidence,
		&i.AnalysisText,
		&i.ImageKey,
		&i.CreatedAt,
	)
	return i, err
}

const createAnalysis = `-- name: CreateAnalysis :one
INSERT INTO analyses (id, user_id, user_email, trend, confidence, analysis_text, image_key)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + analysisColumns

type CreateAnalysisParams struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	UserEmail    string         `json:"user_email"`
	Trend        string         `json:"trend"`
	Confidence   string         `json:"confidence"`
	AnalysisText string         `json:"analysis_text"`
	ImageKey     sql.NullString `json:"image_key"`
}

func (q *Queries) CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) (Analysis, error) {
	row := q.db.QueryRowContext(ctx, createAnalysis,
		arg.ID,
		arg.UserID,
		arg.UserEmail,
		arg.Trend,
		arg.Confidence,
		arg.AnalysisText,
		arg.ImageKey,
	)
	return scanAnalysis(row)
}

const getAnalysisForUser = `-- name: GetAnalysisForUser :one
SELECT ` + analysisColumns + ` FROM analyses WHERE id = $1 AND user_id = $2`

type GetAnalysisForUserParams struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

func (q *Queries) GetAnalysisForUser(ctx context.Context, arg GetAnalysisForUserParams) (Analysis, error) {
	return scanAnalysis(q.db.QueryRowContext(ctx, getAnalysisForUser, arg.ID, arg.UserID))
}

const listRecentAnalysesByUser = `-- name: ListRecentAnalysesByUser :many
SELECT ` + analysisColumns + ` FROM analyses
WHERE user_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2`

type ListRecentAnalysesByUserParams struct {
	UserID uuid.UUID `json:"user_id"`
	Limit  int32     `json:"limit"`
}

func (q *Queries) ListRecentAnalysesByUser(ctx context.Context, arg ListRecentAnalysesByUserParams) ([]Analysis, error) {
	rows, err := q.db.QueryContext(ctx, listRecentAnalysesByUser, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Analysis
	for rows.Next() {
		i, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const countAnalysesByUser = `-- name: CountAnalysesByUser :one
SELECT COUNT(*) FROM analyses WHERE user_id = $1`

func (q *Queries) CountAnalysesByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	row := q.db.QueryRowContext(ctx, countAnalysesByUser, userID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteAnalysisForUser = `-- name: DeleteAnalysisForUser :one
DELETE FROM analyses WHERE id = $1 AND user_id = $2
RETURNING ` + analysisColumns

type DeleteAnalysisForUserParams struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`
}

// DeleteAnalysisForUser returns sql.ErrNoRows when the record does not
// exist or belongs to someone else.
func (q *Queries) DeleteAnalysisForUser(ctx context.Context, arg DeleteAnalysisForUserParams) (Analysis, error) {
	return scanAnalysis(q.db.QueryRowContext(ctx, deleteAnalysisForUser, arg.ID, arg.UserID))
}
