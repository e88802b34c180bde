package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"grimoire/internal/store"
)

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("repository: not found")

// ErrDuplicateRating indicates the user already rated the book; ratings are permanent.
var ErrDuplicateRating = errors.New("repository: user already rated this book")

// ErrEmailTaken indicates the signup email is already registered.
var ErrEmailTaken = errors.New("repository: email already registered")

// querier is satisfied by both *pgxpool.Pool and pgx.Tx so helpers can run
// inside or outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository aggregates all domain-specific repositories.
type Repository struct {
	Books    *BooksRepository
	Users    *UsersRepository
	Sessions *SessionsRepository
}

// New constructs a Repository backed by the provided store.
func New(st *store.Store) *Repository {
	return NewWithPool(st.Pool())
}

// NewWithPool allows constructing repositories directly from a pgx pool.
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{
		Books:    &BooksRepository{pool: pool},
		Users:    &UsersRepository{pool: pool},
		Sessions: &SessionsRepository{pool: pool},
	}
}
