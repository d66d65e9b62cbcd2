// Package identity registers users and turns credentials into session tokens.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/models"
	uStorage "github.com/digitalaxis/axisgate/internal/storage/user"
)

type registration struct {
	Name     string `validate:"required"`
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type credentials struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

// Service implements signup and login on top of a credential store.
type Service struct {
	users    uStorage.Storage
	tokens   *TokenManager
	validate *validator.Validate

	logger *zap.Logger
}

func NewService(users uStorage.Storage, tokens *TokenManager, logger *zap.Logger) *Service {
	return &Service{
		users:    users,
		tokens:   tokens,
		validate: validator.New(),
		logger:   logger,
	}
}

// Register hashes rawPassword and stores a new user under a fresh id.
func (s *Service) Register(ctx context.Context, name, email, rawPassword string) (*models.User, error) {
	in := registration{
		Name:     strings.TrimSpace(name),
		Email:    normalizeEmail(email),
		Password: rawPassword,
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, u); err != nil {
		if errors.Is(err, apperrors.ErrConflict) {
			return nil, apperrors.New(apperrors.ErrConflict, "Email already registered")
		}
		return nil, fmt.Errorf("register: %w", err)
	}

	s.logger.Info("User registered", zap.String("userID", u.ID))
	return u, nil
}

// Login checks the credentials and returns a signed session token.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, error) {
	in := credentials{
		Email:    normalizeEmail(email),
		Password: rawPassword,
	}
	if err := s.validate.Struct(in); err != nil {
		return "", validationError(err)
	}

	u, err := s.users.GetByEmail(ctx, in.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.New(apperrors.ErrNotFound, "User not found")
		}
		return "", fmt.Errorf("login: %w", err)
	}

	ok, err := VerifyPassword(u.PasswordHash, in.Password)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	if !ok {
		s.logger.Debug("Login rejected", zap.String("userID", u.ID))
		return "", apperrors.New(apperrors.ErrInvalidCredentials, "Incorrect password")
	}

	token, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}

	s.logger.Info("User logged in", zap.String("userID", u.ID))
	return token, nil
}

// Profile returns the stored user for an authenticated id.
func (s *Service) Profile(ctx context.Context, userID string) (*models.User, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.New(apperrors.ErrNotFound, "User not found")
		}
		return nil, fmt.Errorf("profile: %w", err)
	}
	return u, nil
}

// Authenticate resolves a session token into a user id.
func (s *Service) Authenticate(token string) (string, error) {
	return s.tokens.Parse(token)
}

func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperrors.New(apperrors.ErrValidation, "Invalid input")
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return apperrors.New(apperrors.ErrValidation, strings.Join(msgs, "; "))
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
