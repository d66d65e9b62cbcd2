package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/digitalaxis/axisgate/internal/apperrors"
)

// ErrEmptySecret is returned by NewTokenManager when no signing secret is set.
var ErrEmptySecret = errors.New("token signing secret is empty")

// Claims is the payload of a session token.
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and verifies HS256 session tokens.
type TokenManager struct {
	secret []byte

	// ttl bounds the token lifetime. Zero leaves the exp claim unset and the
	// token is accepted until the secret changes.
	ttl time.Duration

	now func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) (*TokenManager, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for userID.
func (m *TokenManager) Issue(userID string) (string, error) {
	now := m.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  userID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if m.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

// Parse verifies tokenString and returns the user id it encodes.
func (m *TokenManager) Parse(tokenString string) (string, error) {
	if tokenString == "" {
		return "", apperrors.New(apperrors.ErrUnauthorized, "Missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithTimeFunc(m.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", apperrors.New(apperrors.ErrUnauthorized, "Token expired")
		}
		return "", apperrors.New(apperrors.ErrUnauthorized, "Invalid token")
	}
	if !token.Valid || claims.UserID == "" {
		return "", apperrors.New(apperrors.ErrUnauthorized, "Invalid token")
	}

	return claims.UserID, nil
}
