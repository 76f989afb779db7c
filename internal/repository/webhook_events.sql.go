// source: webhook_events.sql

package repository

import (
	"context"

	"github.com/sqlc-dev/pqtype"
)

const insertWebhookEvent = `-- name: InsertWebhookEvent :execrows
INSERT INTO webhook_events (provider, event_id, kind, payload)
VALUES ($1, $2, $3, $4)
ON CONFLICT (provider, event_id) DO NOTHING`

type InsertWebhookEventParams struct {
	Provider string                `json:"provider"`
	EventID  string                `json:"event_id"`
	Kind     string                `json:"kind"`
	Payload  pqtype.NullRawMessage `json:"payload"`
}

// InsertWebhookEvent returns 0 rows affected when the event was already
// recorded.
func (q *Queries) InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertWebhookEvent,
		arg.Provider,
		arg.EventID,
		arg.Kind,
		arg.Payload,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const setWebhookEventOutcome = `-- name: SetWebhookEventOutcome :exec
UPDATE webhook_events SET outcome = $3
WHERE provider = $1 AND event_id = $2`

type SetWebhookEventOutcomeParams struct {
	Provider string `json:"provider"`
	EventID  string `json:"event_id"`
	Outcome  string `json:"outcome"`
}

func (q *Queries) SetWebhookEventOutcome(ctx context.Context, arg SetWebhookEventOutcomeParams) error {
	_, err := q.db.ExecContext(ctx, setWebhookEventOutcome, arg.Provider, arg.EventID, arg.Outcome)
	return err
}
