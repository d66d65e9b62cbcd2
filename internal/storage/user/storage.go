package user

import (
	"context"

	"github.com/digitalaxis/axisgate/internal/models"
)

const (
	InMemoryStorageType = "in-memory"
	PostgresStorageType = "postgres"
)

// Storage is the credential store. Create fails with an error wrapping
// apperrors.ErrConflict when the email is taken, GetByEmail with one wrapping
// apperrors.ErrNotFound when no user has that email.
type Storage interface {
	Create(ctx context.Context, value *models.User) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Get(ctx context.Context, id string) (*models.User, error)
}
