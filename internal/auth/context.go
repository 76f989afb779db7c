// Package auth issues access tokens and carries the authenticated user
// through request contexts.
//
// It is imported by both middleware and handler packages, so it must not
// import either of them.
package auth

import (
	"context"
	"net/http"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

type contextKey string

const userContextKey contextKey = "user"

// GetUser retrieves the authenticated user from the context.
//
// Returns nil if no user is authenticated.
func GetUser(ctx context.Context) *domain.User {
	user, ok := ctx.Value(userContextKey).(*domain.User)
	if !ok {
		return nil
	}
	return user
}

// GetUserFromRequest is GetUser on the request's context.
func GetUserFromRequest(r *http.Request) *domain.User {
	return GetUser(r.Context())
}

// SetUser stores a user in the context. Called by the auth middleware once
// the bearer token has been validated and the account loaded.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}
