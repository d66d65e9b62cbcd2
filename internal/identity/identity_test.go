package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/storage/user/inmemory"
)

func newTestService(t *testing.T) (*Service, *inmemory.Storage) {
	t.Helper()
	tokens, err := NewTokenManager("test-secret", 0)
	require.NoError(t, err)
	store := inmemory.NewStorage(zap.NewNop())
	return NewService(store, tokens, zap.NewNop()), store
}

func TestHashPasswordIsSaltedAndVerifies(t *testing.T) {
	h1, err := HashPassword("hunter2")
	require.NoError(t, err)
	h2, err := HashPassword("hunter2")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
	assert.NotContains(t, h1, "hunter2")

	for _, h := range []string{h1, h2} {
		ok, err := VerifyPassword(h, "hunter2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = VerifyPassword(h, "hunter3")
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	_, err := VerifyPassword("not-a-hash", "x")
	assert.Error(t, err)
}

func TestRegisterThenLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ann", "ann@example.com", "s3cret")
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.NotEqual(t, "s3cret", u.PasswordHash)

	token, err := svc.Login(ctx, "ann@example.com", "s3cret")
	require.NoError(t, err)

	userID, err := svc.Authenticate(token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, userID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, err := svc.Register(ctx, "Ann", "ann@example.com", "s3cret")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Other Ann", "ANN@example.com", "different")
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	stored, err := store.GetByEmail(ctx, "ann@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
	assert.Equal(t, "Ann", stored.Name)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name, uname, email, password string
		wantMsg                      string
	}{
		{"missing name", "", "a@b.co", "pw", "name is required"},
		{"missing email", "A", "", "pw", "email is required"},
		{"bad email", "A", "nope", "pw", "email must be a valid email address"},
		{"missing password", "A", "a@b.co", "", "password is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.uname, tt.email, tt.password)
			require.ErrorIs(t, err, apperrors.ErrValidation)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "ghost@example.com", "pw")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "User not found", err.Error())
}

func TestProfile(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ann", "ann@example.com", "s3cret")
	require.NoError(t, err)

	got, err := svc.Profile(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)

	_, err = svc.Profile(ctx, "ghost")
	require.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, "User not found", err.Error())
}

func TestLoginWrongPassword(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	u, err := svc.Register(ctx, "Ann", "ann@example.com", "s3cret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann@example.com", "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	assert.Equal(t, "Incorrect password", err.Error())
	assert.NotContains(t, err.Error(), u.PasswordHash)
}

func TestTokenHasNoExpiryByDefault(t *testing.T) {
	m, err := NewTokenManager("secret", 0)
	require.NoError(t, err)

	token, err := m.Issue("42")
	require.NoError(t, err)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "42", claims.UserID)
	assert.Nil(t, claims.ExpiresAt)

	m.now = func() time.Time { return time.Now().Add(24 * 365 * time.Hour) }
	userID, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "42", userID)
}

func TestTokenExpiresWithTTL(t *testing.T) {
	m, err := NewTokenManager("secret", time.Hour)
	require.NoError(t, err)
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return start }

	token, err := m.Issue("42")
	require.NoError(t, err)

	m.now = func() time.Time { return start.Add(2 * time.Hour) }
	_, err = m.Parse(token)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)
	assert.Equal(t, "Token expired", err.Error())
}

func TestTokenRejectsForgeries(t *testing.T) {
	m, err := NewTokenManager("secret", 0)
	require.NoError(t, err)
	other, err := NewTokenManager("other-secret", 0)
	require.NoError(t, err)

	forged, err := other.Issue("42")
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{UserID: "42"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	valid, err := m.Issue("42")
	require.NoError(t, err)
	parts := strings.Split(valid, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for _, tok := range []string{"", "garbage", forged, unsigned, tampered} {
		_, err := m.Parse(tok)
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized, "token %q", tok)
	}
}

func TestNewTokenManagerRequiresSecret(t *testing.T) {
	_, err := NewTokenManager("", 0)
	assert.ErrorIs(t, err, ErrEmptySecret)
}
