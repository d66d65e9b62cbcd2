package inmemory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/models"
)

type Storage struct {
	data    map[string]*models.User
	byEmail map[string]string
	logger  *zap.Logger

	mtx *sync.Mutex
}

func NewStorage(logger *zap.Logger) *Storage {
	return &Storage{
		data:    make(map[string]*models.User),
		byEmail: make(map[string]string),
		logger:  logger,
		mtx:     &sync.Mutex{},
	}
}

func (s *Storage) Create(_ context.Context, value *models.User) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	email := normalizeEmail(value.Email)
	if _, ok := s.byEmail[email]; ok {
		return fmt.Errorf("email %q: %w", value.Email, apperrors.ErrConflict)
	}
	if _, ok := s.data[value.ID]; ok {
		return fmt.Errorf("id %q: %w", value.ID, apperrors.ErrConflict)
	}

	stored := *value
	s.data[value.ID] = &stored
	s.byEmail[email] = value.ID
	s.logger.Debug("user added to storage", zap.String("id", value.ID))
	return nil
}

func (s *Storage) GetByEmail(_ context.Context, email string) (*models.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		s.logger.Debug("user not found in storage")
		return nil, fmt.Errorf("user by email: %w", apperrors.ErrNotFound)
	}
	u := *s.data[id]
	return &u, nil
}

func (s *Storage) Get(_ context.Context, id string) (*models.User, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	v, ok := s.data[id]
	if !ok {
		s.logger.Debug("user not found in storage", zap.String("id", id))
		return nil, fmt.Errorf("user %q: %w", id, apperrors.ErrNotFound)
	}
	u := *v
	return &u, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
