package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DukeRupert/tradeflow/internal/domain"
)

func TestTokenManager_IssueAndValidate(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	id := uuid.New()

	token, expiresAt, err := m.Issue(id, "trader@example.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "trader@example.com", claims.Subject)
	assert.Equal(t, id.String(), claims.UserID)
}

func TestTokenManager_RejectsWrongSecret(t *testing.T) {
	issuer := NewTokenManager("secret-a", time.Hour)
	validator := NewTokenManager("secret-b", time.Hour)

	token, _, err := issuer.Issue(uuid.New(), "trader@example.com")
	require.NoError(t, err)

	_, err = validator.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenManager_RejectsExpired(t *testing.T) {
	m := NewTokenManager("test-secret", time.Minute)
	m.now = func() time.Time { return time.Now().Add(-time.Hour) }

	token, _, err := m.Issue(uuid.New(), "trader@example.com")
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenManager_RejectsNoneAlgorithm(t *testing.T) {
	m := NewTokenManager("test-secret", time.Hour)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "trader@example.com",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = m.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic dXNlcjpwYXNz", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := BearerToken(tt.header)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContextUser(t *testing.T) {
	assert.Nil(t, GetUser(context.Background()))

	u := &domain.User{Email: "trader@example.com"}
	ctx := SetUser(context.Background(), u)
	assert.Same(t, u, GetUser(ctx))
}
