package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"grimoire/internal/domain"
)

// UsersRepository provides persistence helpers for user accounts.
type UsersRepository struct {
	pool *pgxpool.Pool
}

// Create inserts a new account. A duplicate email fails with ErrEmailTaken.
func (r *UsersRepository) Create(ctx context.Context, email, passwordHash string) (domain.User, error) {
	const query = `
        INSERT INTO users (id, email, password_hash)
        VALUES ($1,$2,$3)
        RETURNING id, email, password_hash, created_at
    `

	var user domain.User
	err := r.pool.QueryRow(ctx, query, uuid.NewString(), email, passwordHash).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.User{}, ErrEmailTaken
		}
		return domain.User{}, err
	}
	return user, nil
}

// GetByEmail fetches an account by its unique email.
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	const query = `SELECT id, email, password_hash, created_at FROM users WHERE email = $1`

	var user domain.User
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.User{}, ErrNotFound
		}
		return domain.User{}, err
	}
	return user, nil
}
