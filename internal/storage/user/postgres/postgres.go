// Package postgres implements the credential store on PostgreSQL through a
// pgx connection pool. It expects an existing table:
//
//	CREATE TABLE users (
//	    id            TEXT PRIMARY KEY,
//	    name          TEXT NOT NULL,
//	    email         TEXT NOT NULL UNIQUE,
//	    password_hash TEXT NOT NULL
//	);
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/digitalaxis/axisgate/internal/apperrors"
	"github.com/digitalaxis/axisgate/internal/models"
)

const pgErrUniqueViolation = "23505"

const (
	insertUserQuery  = `INSERT INTO users (id, name, email, password_hash) VALUES ($1, $2, $3, $4)`
	userByEmailQuery = `SELECT id, name, email, password_hash FROM users WHERE email = $1`
	userByIDQuery    = `SELECT id, name, email, password_hash FROM users WHERE id = $1`
)

// Querier is the subset of *pgxpool.Pool the storage needs. Every call
// acquires a pooled connection and releases it before returning.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type Storage struct {
	db     Querier
	logger *zap.Logger
}

func NewStorage(db Querier, logger *zap.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Connect opens a pool and checks it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	return pool, nil
}

func (s *Storage) Create(ctx context.Context, value *models.User) error {
	_, err := s.db.Exec(ctx, insertUserQuery, value.ID, value.Name, value.Email, value.PasswordHash)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("email %q: %w", value.Email, apperrors.ErrConflict)
		}
		s.logger.Error("Failed to insert user", zap.Error(err))
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Storage) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.queryOne(ctx, userByEmailQuery, email)
}

func (s *Storage) Get(ctx context.Context, id string) (*models.User, error) {
	return s.queryOne(ctx, userByIDQuery, id)
}

func (s *Storage) queryOne(ctx context.Context, query string, arg string) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user: %w", apperrors.ErrNotFound)
		}
		s.logger.Error("Failed to query user", zap.Error(err))
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrUniqueViolation
	}
	return false
}
