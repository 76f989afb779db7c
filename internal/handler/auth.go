// Package handler contains the JSON HTTP handlers for the TradeFlow API.
//
// This file implements account creation and sign-in.
//
// Routes handled:
//   - POST /register -> Register
//   - POST /login    -> Login
//
// Both accept either a JSON object or form fields (email, password, name)
// and answer with a bearer token.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/service"
)

// Guards holds the middleware routes are registered behind. The handler
// package cannot import middleware, so main passes them in.
type Guards struct {
	RequireUser   func(http.Handler) http.Handler
	LimitLogin    func(http.Handler) http.Handler
	LimitRegister func(http.Handler) http.Handler
}

func passthrough(next http.Handler) http.Handler { return next }

func (g Guards) withDefaults() Guards {
	if g.LimitLogin == nil {
		g.LimitLogin = passthrough
	}
	if g.LimitRegister == nil {
		g.LimitRegister = passthrough
	}
	return g
}

// AuthHandler handles registration and login.
type AuthHandler struct {
	userService service.UserService
	logger      *slog.Logger
}

func NewAuthHandler(userService service.UserService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		userService: userService,
		logger:      logger,
	}
}

func (h *AuthHandler) RegisterRoutes(mux *http.ServeMux, guards Guards) {
	guards = guards.withDefaults()
	mux.Handle("POST /register", guards.LimitRegister(http.HandlerFunc(h.Register)))
	mux.Handle("POST /login", guards.LimitLogin(http.HandlerFunc(h.Login)))
}

// TokenResponse is returned by register and login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        UserView  `json:"user"`
}

// Register creates a free account and signs the user in.
//
// Response: 201 with TokenResponse. Duplicate email is 409; bad email,
// password or name is 400 with field errors.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	const op = "handler.register"

	var email, password, name string
	if err := formOrJSON(w, r, op, map[string]*string{
		"email":    &email,
		"password": &password,
		"name":     &name,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	result, err := h.userService.Register(r.Context(), domain.NewUserParams{
		Email:    email,
		Password: password,
		Name:     name,
	})
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, tokenResponse(result))
}

// Login exchanges credentials for a bearer token.
//
// Unknown email and wrong password both answer 401 with the same message.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "handler.login"

	var email, username, password string
	if err := formOrJSON(w, r, op, map[string]*string{
		"email":    &email,
		"username": &username,
		"password": &password,
	}); err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}
	// OAuth2 password-flow clients send the email as "username".
	if email == "" {
		email = username
	}
	if email == "" || password == "" {
		ErrorResponse(w, r, h.logger, domain.Invalid(op, "Email and password are required"))
		return
	}

	result, err := h.userService.Login(r.Context(), email, password)
	if err != nil {
		ErrorResponse(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse(result))
}

func tokenResponse(result *service.LoginResult) TokenResponse {
	return TokenResponse{
		AccessToken: result.Token,
		TokenType:   "bearer",
		ExpiresAt:   result.ExpiresAt.UTC(),
		User:        newUserView(result.User),
	}
}
