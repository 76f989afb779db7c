package repository

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type User struct {
	ID                 uuid.UUID      `json:"id"`
	Email              string         `json:"email"`
	PasswordHash       string         `json:"password_hash"`
	Name               string         `json:"name"`
	Plan               string         `json:"plan"`
	AnalysesLimit      int32          `json:"analyses_limit"`
	AnalysesUsed       int32          `json:"analyses_used"`
	SubscriptionStatus string         `json:"subscription_status"`
	SubscriptionID     sql.NullString `json:"subscription_id"`
	CustomerID         sql.NullString `json:"customer_id"`
	PlanStartedAt      sql.NullTime   `json:"plan_started_at"`
	PlanEndsAt         sql.NullTime   `json:"plan_ends_at"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

type Analysis struct {
	ID           uuid.UUID      `json:"id"`
	UserID       uuid.UUID      `json:"user_id"`
	UserEmail    string         `json:"user_email"`
	Trend        string         `json:"trend"`
	Confidence   string         `json:"confidence"`
	AnalysisText string         `json:"analysis_text"`
	ImageKey     sql.NullString `json:"image_key"`
	CreatedAt    time.Time      `json:"created_at"`
}

type WebhookEvent struct {
	Provider    string                `json:"provider"`
	EventID     string                `json:"event_id"`
	Kind        string                `json:"kind"`
	Payload     pqtype.NullRawMessage `json:"payload"`
	Outcome     string                `json:"outcome"`
	ProcessedAt time.Time             `json:"processed_at"`
}
