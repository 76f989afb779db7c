// Package service contains the business logic layer.
//
// Services orchestrate interactions between repositories, external APIs,
// and domain logic. They are responsible for:
// - Input validation
// - Business rule enforcement
// - Transaction coordination
// - Error translation (database errors -> domain errors)
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/DukeRupert/tradeflow/internal/domain"
	"github.com/DukeRupert/tradeflow/internal/repository"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	//
	// SECURITY NOTE: This should NOT be configurable at runtime to prevent
	// accidental weakening. If you need to change it, do so here and redeploy.
	BcryptCost = 12

	// MinPasswordLength is the minimum password length (NIST SP 800-63B).
	MinPasswordLength = 8

	// MaxPasswordLength is the bcrypt input limit.
	MaxPasswordLength = 72

	// MaxNameLength caps the display name.
	MaxNameLength = 100
)

// dummyHash is a bcrypt hash of "dummy", compared against when the email is
// unknown so a failed login costs the same either way.
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// TokenIssuer signs access tokens for authenticated accounts.
type TokenIssuer interface {
	Issue(userID uuid.UUID, email string) (string, time.Time, error)
}

// LoginResult is returned after successful registration or login.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// =============================================================================
// Interface Definition
// =============================================================================

// UserService is the credential store: account identity and passwords.
type UserService interface {
	// Register creates a new account on the free plan.
	// Returns domain.ECONFLICT if email already exists.
	// Returns a *domain.ValidationError for bad input.
	Register(ctx context.Context, params domain.NewUserParams) (*LoginResult, error)

	// Login authenticates a user and issues an access token.
	// Returns domain.EUNAUTHORIZED for invalid credentials.
	Login(ctx context.Context, email, password string) (*LoginResult, error)

	// GetByID retrieves a user by their ID.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)

	// GetByEmail retrieves a user by email.
	// Returns domain.ENOTFOUND if user does not exist.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// UpdateProfile changes the display name. Email is immutable.
	UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*domain.User, error)
}

// =============================================================================
// Implementation
// =============================================================================

type userService struct {
	store  repository.Store
	tokens TokenIssuer
	logger *slog.Logger
}

// NewUserService creates a new UserService instance.
func NewUserService(store repository.Store, tokens TokenIssuer, logger *slog.Logger) UserService {
	return &userService{
		store:  store,
		tokens: tokens,
		logger: logger,
	}
}

// Register creates a new account and signs the user in.
//
// New accounts start on the free plan with an inactive subscription; the
// limit comes from the plan table, never from a literal.
func (s *userService) Register(ctx context.Context, params domain.NewUserParams) (*LoginResult, error) {
	const op = "UserService.Register"

	params.Email = normalizeEmail(params.Email)
	params.Name = strings.TrimSpace(params.Name)

	if err := validateEmail(params.Email); err != nil {
		return nil, domain.NewValidationError(op, "email", domain.ErrorMessage(err))
	}
	if err := validatePassword(params.Password); err != nil {
		return nil, domain.NewValidationError(op, "password", domain.ErrorMessage(err))
	}
	if len(params.Name) > MaxNameLength {
		return nil, domain.NewValidationError(op, "name", "Name must be 100 characters or less")
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(params.Password), BcryptCost)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to hash password")
	}

	row, err := s.store.CreateUser(ctx, repository.CreateUserParams{
		ID:                 uuid.New(),
		Email:              params.Email,
		PasswordHash:       string(passwordHash),
		Name:               params.Name,
		Plan:               string(domain.PlanFree),
		AnalysesLimit:      int32(domain.PlanFree.Limit()),
		SubscriptionStatus: string(domain.SubscriptionStatusInactive),
	})
	if err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, domain.Conflict(op, "Email already registered")
		}
		return nil, domain.Internal(err, op, "Failed to create user")
	}

	user := repoUserToDomain(row)
	user.PasswordHash = ""

	s.logger.Info("user registered", "user_id", user.ID, "email", user.Email)

	return s.issue(op, user)
}

// Login authenticates a user and issues a token.
//
// Unknown emails and wrong passwords share one error message and roughly the
// same cost, so responses cannot be used to enumerate accounts.
func (s *userService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	const op = "UserService.Login"

	row, err := s.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if repository.IsNotFound(err) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, domain.Unauthorized(op, "Invalid email or password")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(password)); err != nil {
		return nil, domain.Unauthorized(op, "Invalid email or password")
	}

	user := repoUserToDomain(row)
	user.PasswordHash = ""

	s.logger.Info("user logged in", "user_id", user.ID)

	return s.issue(op, user)
}

func (s *userService) issue(op string, user *domain.User) (*LoginResult, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, domain.Internal(err, op, "Failed to issue token")
	}
	return &LoginResult{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// GetByID retrieves a user by their ID.
func (s *userService) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	const op = "UserService.GetByID"

	row, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(row)
	user.PasswordHash = ""
	return user, nil
}

// GetByEmail retrieves a user by email.
func (s *userService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	const op = "UserService.GetByEmail"

	email = normalizeEmail(email)
	row, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.Errorf(domain.ENOTFOUND, op, "User not found")
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	user := repoUserToDomain(row)
	user.PasswordHash = ""
	return user, nil
}

// UpdateProfile changes the user's display name.
func (s *userService) UpdateProfile(ctx context.Context, id uuid.UUID, name string) (*domain.User, error) {
	const op = "UserService.UpdateProfile"

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.NewValidationError(op, "name", "Name is required")
	}
	if len(name) > MaxNameLength {
		return nil, domain.NewValidationError(op, "name", "Name must be 100 characters or less")
	}

	row, err := s.store.UpdateUserName(ctx, repository.UpdateUserNameParams{ID: id, Name: name})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, domain.NotFound(op, "user", id.String())
		}
		return nil, domain.Internal(err, op, "Failed to update profile")
	}

	user := repoUserToDomain(row)
	user.PasswordHash = ""
	return user, nil
}

// =============================================================================
// Helpers
// =============================================================================

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// repoUserToDomain converts the database row (sql.Null* fields) into the
// domain user.
func repoUserToDomain(u repository.User) *domain.User {
	user := &domain.User{
		ID:                 u.ID,
		Email:              u.Email,
		PasswordHash:       u.PasswordHash,
		Name:               u.Name,
		Plan:               domain.Plan(u.Plan),
		AnalysesLimit:      int(u.AnalysesLimit),
		AnalysesUsed:       int(u.AnalysesUsed),
		SubscriptionStatus: domain.SubscriptionStatus(u.SubscriptionStatus),
		SubscriptionID:     u.SubscriptionID.String,
		CustomerID:         u.CustomerID.String,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
	if u.PlanStartedAt.Valid {
		t := u.PlanStartedAt.Time
		user.PlanStartedAt = &t
	}
	if u.PlanEndsAt.Valid {
		t := u.PlanEndsAt.Time
		user.PlanEndsAt = &t
	}
	return user
}

// validateEmail validates an email address format.
//
// Checks:
// - Length limits (RFC 5321: 254 chars max)
// - Exactly one @, non-empty local part, dotted domain
// - No consecutive dots
func validateEmail(email string) error {
	if email == "" {
		return domain.Invalid("", "Email is required")
	}
	if len(email) > 254 {
		return domain.Invalid("", "Email must be 254 characters or less")
	}

	if strings.Count(email, "@") != 1 {
		return domain.Invalid("", "Email must contain exactly one @ symbol")
	}
	at := strings.IndexByte(email, '@')
	if at == 0 {
		return domain.Invalid("", "Email cannot start with @")
	}
	if at == len(email)-1 {
		return domain.Invalid("", "Email cannot end with @")
	}
	if !strings.Contains(email[at+1:], ".") {
		return domain.Invalid("", "Email domain must contain a dot")
	}
	if strings.Contains(email, "..") {
		return domain.Invalid("", "Email cannot contain consecutive dots")
	}
	return nil
}

// validatePassword validates password strength requirements.
//
// Rules:
// - Length between 8 and 72 bytes (bcrypt limit)
// - At least one letter and one digit
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return domain.Invalid("", "Password must be at least 8 characters")
	}
	if len(password) > MaxPasswordLength {
		return domain.Invalid("", "Password must be 72 characters or less")
	}

	var hasLetter, hasDigit bool
	for _, c := range password {
		switch {
		case unicode.IsLetter(c):
			hasLetter = true
		case unicode.IsDigit(c):
			hasDigit = true
		}
	}
	if !hasLetter {
		return domain.Invalid("", "Password must contain at least one letter")
	}
	if !hasDigit {
		return domain.Invalid("", "Password must contain at least one number")
	}
	return nil
}
