package pgshipment

import (
	"context"

	"github.com/BearBump/ShipBox/internal/identity"
	"github.com/BearBump/ShipBox/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

func (s *Storage) CreateUser(ctx context.Context, u *models.User) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO users (id, username, password_hash, is_admin, active, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
`, u.ID, u.Username, u.PasswordHash, u.IsAdmin, u.Active, u.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err, "users_username_key") {
			return errors.Wrap(identity.ErrUserExists, u.Username)
		}
		return errors.Wrap(err, "insert user")
	}
	return nil
}

func (s *Storage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	return s.getUser(ctx, `WHERE username = $1`, username)
}

func (s *Storage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.getUser(ctx, `WHERE id = $1`, id)
}

func (s *Storage) getUser(ctx context.Context, where string, arg any) (*models.User, error) {
	var u models.User
	err := s.db.QueryRow(ctx, `
SELECT id, username, password_hash, is_admin, active, created_at
FROM users `+where, arg).Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsAdmin, &u.Active, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "select user")
	}
	return &u, nil
}
