package repository

import (
	"context"

	"github.com/google/uuid"
)

type Querier interface {
	CountAnalysesByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	CreateAnalysis(ctx context.Context, arg CreateAnalysisParams) (Analysis, error)
	CreateUser(ctx context.Context, arg CreateUserParams) (User, error)
	DeleteAnalysisForUser(ctx context.Context, arg DeleteAnalysisForUserParams) (Analysis, error)
	GetAnalysisForUser(ctx context.Context, arg GetAnalysisForUserParams) (Analysis, error)
	GetUserByCustomerIDForUpdate(ctx context.Context, customerID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByEmailForUpdate(ctx context.Context, email string) (User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetUserByIDForUpdate(ctx context.Context, id uuid.UUID) (User, error)
	GetUserBySubscriptionIDForUpdate(ctx context.Context, subscriptionID string) (User, error)
	IncrementAnalysesUsed(ctx context.Context, id uuid.UUID) (int32, error)
	InsertWebhookEvent(ctx context.Context, arg InsertWebhookEventParams) (int64, error)
	ListRecentAnalysesByUser(ctx context.Context, arg ListRecentAnalysesByUserParams) ([]Analysis, error)
	SetWebhookEventOutcome(ctx context.Context, arg SetWebhookEventOutcomeParams) error
	UpdateUserEntitlement(ctx context.Context, arg UpdateUserEntitlementParams) (User, error)
	UpdateUserName(ctx context.Context, arg UpdateUserNameParams) (User, error)
}

var _ Querier = (*Queries)(nil)
