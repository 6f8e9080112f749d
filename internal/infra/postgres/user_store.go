package postgres

import (
	"context"
	"errors"

	"github.com/vaibhav071104/vaultguard/internal/domain"
	"github.com/vaibhav071104/vaultguard/internal/port"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserStore implements port.UserStore on PostgreSQL.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (id, username, password_hash, is_active, is_admin, deleted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		user.ID, user.Username, user.PasswordHash, user.IsActive, user.IsAdmin, user.Deleted, user.CreatedAt,
	)
	if err != nil {
		return mapPgError("create user", err)
	}
	return nil
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, userSelectSQL+` WHERE id = $1`, id)
	return scanUser(row, id)
}

func (s *UserStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	row := s.pool.QueryRow(ctx, userSelectSQL+` WHERE username = $1`, username)
	return scanUser(row, username)
}

// SoftDeleteUser flips the deleted flag. Repeating the call is a no-op.
func (s *UserStore) SoftDeleteUser(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE users SET deleted = TRUE WHERE id = $1`, id)
	if err != nil {
		return mapPgError("soft delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "user", ID: id}
	}
	return nil
}

const userSelectSQL = `SELECT id, username, password_hash, is_active, is_admin, deleted, created_at FROM users`

func scanUser(row pgx.Row, id string) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.IsActive, &u.IsAdmin, &u.Deleted, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "user", ID: id}
	}
	if err != nil {
		return nil, mapPgError("get user", err)
	}
	return &u, nil
}

var _ port.UserStore = (*UserStore)(nil)
