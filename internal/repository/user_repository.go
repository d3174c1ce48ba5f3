package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

var (
	ErrUsernameTaken = errors.New("username already taken")
	ErrInvalidUserID = errors.New("user id must be a UUID")
)

const uniqueViolationState = "23505"

// UserRepository defines the interface for trader accounts
type UserRepository interface {
	Ensure(ctx context.Context, id, username string) error
	ListIDs(ctx context.Context) ([]string, error)
}

type userRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new instance of UserRepository
func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepository{db: db}
}

// Ensure creates the user row on first sight. An existing row is left untouched.
// An empty username falls back to the id.
func (r *userRepository) Ensure(ctx context.Context, id, username string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(username) == "" {
		username = id
	}

	query := r.db.Rebind(`
		INSERT INTO users (id, username)
		VALUES (?, ?)
		ON CONFLICT (id) DO NOTHING
	`)

	if _, err := r.db.ExecContext(ctx, query, id, username); err != nil {
		if isUniqueViolation(err) {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to ensure user: %w", err)
	}

	return nil
}

// ListIDs returns every user id ordered by username
func (r *userRepository) ListIDs(ctx context.Context) ([]string, error) {
	ids := []string{}
	if err := r.db.SelectContext(ctx, &ids, `SELECT id FROM users ORDER BY username, id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return ids, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationState
	}
	// sqlite reports constraint failures only through the message
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
