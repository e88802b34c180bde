package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"grimoire/internal/domain"
)

// BooksRepository provides persistence helpers for book entities.
type BooksRepository struct {
	pool *pgxpool.Pool
}

const bookColumns = `
    id,
    title,
    author,
    year,
    genre,
    user_id,
    image_url,
    average_rating,
    created_at,
    updated_at
`

// BookCreateParams bundles the fields required to create a book. Every book is
// born with the creator's own rating, so the initial grade is mandatory.
type BookCreateParams struct {
	Title        string
	Author       string
	Year         int
	Genre        string
	UserID       string
	ImageURL     string
	InitialGrade float64
}

// BookPatch enumerates the client-settable fields of a book. Creator identity,
// ratings and the computed average are deliberately not representable here.
type BookPatch struct {
	Title    *string
	Author   *string
	Year     *int
	Genre    *string
	ImageURL *string
}

// Create inserts a book together with the creator's initial rating in one
// transaction and returns the stored entity.
func (r *BooksRepository) Create(ctx context.Context, params BookCreateParams) (domain.Book, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Book{}, fmt.Errorf("begin create book: %w", err)
	}
	defer tx.Rollback(ctx)

	id := uuid.NewString()
	query := fmt.Sprintf(`
        INSERT INTO books (id, title, author, year, genre, user_id, image_url, average_rating)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING %s
    `, bookColumns)

	row := tx.QueryRow(ctx, query, id, params.Title, params.Author, params.Year, params.Genre, params.UserID, params.ImageURL, params.InitialGrade)
	book, err := scanBook(row)
	if err != nil {
		return domain.Book{}, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO ratings (book_id, user_id, grade) VALUES ($1,$2,$3)`,
		book.ID, params.UserID, params.InitialGrade,
	); err != nil {
		return domain.Book{}, fmt.Errorf("insert initial rating: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Book{}, fmt.Errorf("commit create book: %w", err)
	}

	book.Ratings = []domain.Rating{{UserID: params.UserID, Grade: params.InitialGrade}}
	return book, nil
}

// GetByID fetches a book and its ratings by identifier.
func (r *BooksRepository) GetByID(ctx context.Context, id string) (domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books WHERE id = $1`, bookColumns)
	row := r.pool.QueryRow(ctx, query, id)
	book, err := scanBook(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Book{}, ErrNotFound
		}
		return domain.Book{}, err
	}
	if err := attachRatings(ctx, r.pool, []*domain.Book{&book}); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// List returns all books, most recently created first.
func (r *BooksRepository) List(ctx context.Context) ([]domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books ORDER BY created_at DESC, id DESC`, bookColumns)
	return r.queryBooks(ctx, query)
}

// BestRated returns up to limit books ordered by descending average rating.
// The secondary created_at ordering only keeps ties deterministic.
func (r *BooksRepository) BestRated(ctx context.Context, limit int) ([]domain.Book, error) {
	query := fmt.Sprintf(`SELECT %s FROM books ORDER BY average_rating DESC, created_at DESC LIMIT %d`, bookColumns, limit)
	return r.queryBooks(ctx, query)
}

func (r *BooksRepository) queryBooks(ctx context.Context, query string, args ...any) ([]domain.Book, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]domain.Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	refs := make([]*domain.Book, len(books))
	for i := range books {
		refs[i] = &books[i]
	}
	if err := attachRatings(ctx, r.pool, refs); err != nil {
		return nil, err
	}
	return books, nil
}

// Update applies a partial patch to the client-settable fields and returns the
// stored entity. Absent pointer fields leave the stored values untouched.
func (r *BooksRepository) Update(ctx context.Context, id string, patch BookPatch) (domain.Book, error) {
	query := fmt.Sprintf(`
        UPDATE books
        SET title = COALESCE($2, title),
            author = COALESCE($3, author),
            year = COALESCE($4, year),
            genre = COALESCE($5, genre),
            image_url = COALESCE($6, image_url),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, bookColumns)

	row := r.pool.QueryRow(ctx, query, id, patch.Title, patch.Author, patch.Year, patch.Genre, patch.ImageURL)
	book, err := scanBook(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Book{}, ErrNotFound
		}
		return domain.Book{}, err
	}
	if err := attachRatings(ctx, r.pool, []*domain.Book{&book}); err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// Delete removes a book; its ratings cascade at the schema level.
func (r *BooksRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRating appends one rating and recomputes the stored average in a single
// transaction. The book row is locked first so concurrent submissions cannot
// lose an accepted rating; a second rating from the same user fails with
// ErrDuplicateRating and leaves the book untouched.
func (r *BooksRepository) AddRating(ctx context.Context, bookID, userID string, grade float64) (domain.Book, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Book{}, fmt.Errorf("begin add rating: %w", err)
	}
	defer tx.Rollback(ctx)

	var lockedID string
	if err := tx.QueryRow(ctx, `SELECT id FROM books WHERE id = $1 FOR UPDATE`, bookID).Scan(&lockedID); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Book{}, ErrNotFound
		}
		return domain.Book{}, err
	}

	tag, err := tx.Exec(ctx, `
        INSERT INTO ratings (book_id, user_id, grade)
        VALUES ($1,$2,$3)
        ON CONFLICT (book_id, user_id) DO NOTHING
    `, bookID, userID, grade)
	if err != nil {
		return domain.Book{}, fmt.Errorf("insert rating: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Book{}, ErrDuplicateRating
	}

	// ROUND on numeric rounds halves away from zero, matching the documented
	// averaging contract.
	query := fmt.Sprintf(`
        UPDATE books
        SET average_rating = (
                SELECT ROUND(AVG(grade)::numeric, 1)::float8
                FROM ratings
                WHERE book_id = $1
            ),
            updated_at = now()
        WHERE id = $1
        RETURNING %s
    `, bookColumns)

	row := tx.QueryRow(ctx, query, bookID)
	book, err := scanBook(row)
	if err != nil {
		return domain.Book{}, fmt.Errorf("recompute average: %w", err)
	}
	if err := attachRatings(ctx, tx, []*domain.Book{&book}); err != nil {
		return domain.Book{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Book{}, fmt.Errorf("commit add rating: %w", err)
	}
	return book, nil
}

func scanBook(row pgx.Row) (domain.Book, error) {
	var book domain.Book
	err := row.Scan(
		&book.ID,
		&book.Title,
		&book.Author,
		&book.Year,
		&book.Genre,
		&book.UserID,
		&book.ImageURL,
		&book.AverageRating,
		&book.CreatedAt,
		&book.UpdatedAt,
	)
	if err != nil {
		return domain.Book{}, err
	}
	return book, nil
}

// attachRatings loads the ratings for the given books with one query.
func attachRatings(ctx context.Context, q querier, books []*domain.Book) error {
	if len(books) == 0 {
		return nil
	}
	ids := make([]string, 0, len(books))
	byID := make(map[string]*domain.Book, len(books))
	for _, book := range books {
		ids = append(ids, book.ID)
		byID[book.ID] = book
		book.Ratings = make([]domain.Rating, 0)
	}

	rows, err := q.Query(ctx, `
        SELECT book_id, user_id, grade, created_at
        FROM ratings
        WHERE book_id = ANY($1::uuid[])
        ORDER BY created_at, user_id
    `, ids)
	if err != nil {
		return fmt.Errorf("load ratings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var bookID string
		var rating domain.Rating
		if err := rows.Scan(&bookID, &rating.UserID, &rating.Grade, &rating.CreatedAt); err != nil {
			return err
		}
		if book, ok := byID[bookID]; ok {
			book.Ratings = append(book.Ratings, rating)
		}
	}
	return rows.Err()
}
