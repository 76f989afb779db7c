// Package middleware contains HTTP middleware for the TradeFlow API.
//
// Middleware functions follow the standard Go pattern of wrapping http.Handler
// and are composed with Stack.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/DukeRupert/tradeflow/internal/auth"
	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/handler"
	"github.com/DukeRupert/tradeflow/internal/service"
)

// TokenValidator verifies bearer tokens. *auth.TokenManager implements it.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// AuthMiddleware authenticates requests carrying a bearer token.
type AuthMiddleware struct {
	tokens      TokenValidator
	userService service.UserService
	logger      *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware instance.
func NewAuthMiddleware(tokens TokenValidator, userService service.UserService, logger *slog.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:      tokens,
		userService: userService,
		logger:      logger,
	}
}

// RequireUser rejects requests without a valid bearer token with 401.
//
// The token's uid claim is loaded through the user service so handlers
// always see the current plan and usage, never values frozen into the
// token. A token whose subject no longer matches the account email is
// rejected.
//
// The user is available to handlers through auth.GetUser.
func (m *AuthMiddleware) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			handler.UnauthorizedResponse(w, r, m.logger)
			return
		}

		claims, err := m.tokens.Validate(token)
		if err != nil {
			msg := "Invalid token"
			if errors.Is(err, auth.ErrExpiredToken) {
				msg = "Token expired"
			}
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", msg))
			return
		}

		userID, err := uuid.Parse(claims.UserID)
		if err != nil {
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", "Invalid token"))
			return
		}

		user, err := m.userService.GetByID(r.Context(), userID)
		if err != nil {
			if domain.IsCode(err, domain.ENOTFOUND) {
				handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", "Invalid token"))
				return
			}
			handler.ErrorResponse(w, r, m.logger, err)
			return
		}
		if !strings.EqualFold(user.Email, claims.Subject) {
			m.logger.Warn("token subject does not match account",
				"user_id", user.ID,
			)
			handler.ErrorResponse(w, r, m.logger, domain.Unauthorized("", "Invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.SetUser(r.Context(), user)))
	})
}

// Stack composes multiple middleware functions into a single middleware.
//
// The first middleware is the outermost:
//
//	Stack(logging, authMw.RequireUser)(h) == logging(authMw.RequireUser(h))
func Stack(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

var _ func(http.Handler) http.Handler = (&AuthMiddleware{}).RequireUser
