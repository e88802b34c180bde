package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SessionsRepository persists opaque login tokens with their expiry.
type SessionsRepository struct {
	pool *pgxpool.Pool
}

// Save stores a newly issued token.
func (r *SessionsRepository) Save(ctx context.Context, token, userID string, expiresAt time.Time) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO sessions (token, user_id, expires_at) VALUES ($1,$2,$3)`,
		token, userID, expiresAt.UTC(),
	)
	return err
}

// Get resolves a token to its user and expiry. The boolean reports whether the
// token exists at all.
func (r *SessionsRepository) Get(ctx context.Context, token string) (string, time.Time, bool, error) {
	var userID string
	var expiresAt time.Time
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, expires_at FROM sessions WHERE token = $1`,
		token,
	).Scan(&userID, &expiresAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return "", time.Time{}, false, nil
		}
		return "", time.Time{}, false, err
	}
	return userID, expiresAt, true, nil
}

// Delete removes a token; deleting an unknown token is not an error.
func (r *SessionsRepository) Delete(ctx context.Context, token string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

// PurgeExpired deletes every session that expired before now.
func (r *SessionsRepository) PurgeExpired(ctx context.Context, now time.Time) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now.UTC())
	return err
}
