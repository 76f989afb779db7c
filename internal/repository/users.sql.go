// source: users.sql

package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
)

const userColumns = `id, email, password_hash, name, plan, analyses_limit, analyses_used,
    subscription_status, subscription_id, customer_id, plan_started_at, plan_ends_at,
    created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.PasswordHash,
		&i.Name,
		&i.Plan,
		&i.AnalysesLimit,
		&i.AnalysesUsed,
		&i.SubscriptionStatus,
		&i.SubscriptionID,
		&i.CustomerID,
		&i.PlanStartedAt,
		&i.PlanEndsAt,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const createUser = `-- name: CreateUser :one
INSERT INTO users (id, email, password_hash, name, plan, analyses_limit, analyses_used, subscription_status)
VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
RETURNING ` + userColumns

type CreateUserParams struct {
	ID                 uuid.UUID `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"password_hash"`
	Name               string    `json:"name"`
	Plan               string    `json:"plan"`
	AnalysesLimit      int32     `json:"analyses_limit"`
	SubscriptionStatus string    `json:"subscription_status"`
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRowContext(ctx, createUser,
		arg.ID,
		arg.Email,
		arg.PasswordHash,
		arg.Name,
		arg.Plan,
		arg.AnalysesLimit,
		arg.SubscriptionStatus,
	)
	return scanUser(row)
}

const getUserByID = `-- name: GetUserByID :one
SELECT ` + userColumns + ` FROM users WHERE id = $1`

func (q *Queries) GetUserByID(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByID, id))
}

const getUserByIDForUpdate = `-- name: GetUserByIDForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE id = $1 FOR UPDATE`

func (q *Queries) GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByIDForUpdate, id))
}

const getUserByEmail = `-- name: GetUserByEmail :one
SELECT ` + userColumns + ` FROM users WHERE email = $1`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmail, email))
}

const getUserByEmailForUpdate = `-- name: GetUserByEmailForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE email = $1 FOR UPDATE`

func (q *Queries) GetUserByEmailForUpdate(ctx context.Context, email string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByEmailForUpdate, email))
}

const getUserBySubscriptionIDForUpdate = `-- name: GetUserBySubscriptionIDForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE subscription_id = $1 FOR UPDATE`

func (q *Queries) GetUserBySubscriptionIDForUpdate(ctx context.Context, subscriptionID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserBySubscriptionIDForUpdate, subscriptionID))
}

const getUserByCustomerIDForUpdate = `-- name: GetUserByCustomerIDForUpdate :one
SELECT ` + userColumns + ` FROM users WHERE customer_id = $1
ORDER BY updated_at DESC
LIMIT 1
FOR UPDATE`

func (q *Queries) GetUserByCustomerIDForUpdate(ctx context.Context, customerID string) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, getUserByCustomerIDForUpdate, customerID))
}

const incrementAnalysesUsed = `-- name: IncrementAnalysesUsed :one
UPDATE users
SET analyses_used = analyses_used + 1, updated_at = NOW()
WHERE id = $1 AND analyses_used < analyses_limit
RETURNING analyses_used`

// IncrementAnalysesUsed returns sql.ErrNoRows when the user is already at
// the limit; the guard in the WHERE clause keeps the write conditional.
func (q *Queries) IncrementAnalysesUsed(ctx context.Context, id uuid.UUID) (int32, error) {
	row := q.db.QueryRowContext(ctx, incrementAnalysesUsed, id)
	var analysesUsed int32
	err := row.Scan(&analysesUsed)
	return analysesUsed, err
}

const updateUserEntitlement = `-- name: UpdateUserEntitlement :one
UPDATE users
SET plan = $2,
    analyses_limit = $3,
    analyses_used = $4,
    subscription_status = $5,
    subscription_id = $6,
    customer_id = $7,
    plan_started_at = $8,
    plan_ends_at = $9,
    updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserEntitlementParams struct {
	ID                 uuid.UUID      `json:"id"`
	Plan               string         `json:"plan"`
	AnalysesLimit      int32          `json:"analyses_limit"`
	AnalysesUsed       int32          `json:"analyses_used"`
	SubscriptionStatus string         `json:"subscription_status"`
	SubscriptionID     sql.NullString `json:"subscription_id"`
	CustomerID         sql.NullString `json:"customer_id"`
	PlanStartedAt      sql.NullTime   `json:"plan_started_at"`
	PlanEndsAt         sql.NullTime   `json:"plan_ends_at"`
}

func (q *Queries) UpdateUserEntitlement(ctx context.Context, arg UpdateUserEntitlementParams) (User, error) {
	row := q.db.QueryRowContext(ctx, updateUserEntitlement,
		arg.ID,
		arg.Plan,
		arg.AnalysesLimit,
		arg.AnalysesUsed,
		arg.SubscriptionStatus,
		arg.SubscriptionID,
		arg.CustomerID,
		arg.PlanStartedAt,
		arg.PlanEndsAt,
	)
	return scanUser(row)
}

const updateUserName = `-- name: UpdateUserName :one
UPDATE users SET name = $2, updated_at = NOW()
WHERE id = $1
RETURNING ` + userColumns

type UpdateUserNameParams struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

func (q *Queries) UpdateUserName(ctx context.Context, arg UpdateUserNameParams) (User, error) {
	return scanUser(q.db.QueryRowContext(ctx, updateUserName, arg.ID, arg.Name))
}
