package domain

import "time"

// Rating represents a single user's permanent grade on a book.
type Rating struct {
	UserID    string
	Grade     float64
	CreatedAt time.Time
}

// Book represents the canonical book entity in the database/service.
type Book struct {
	ID            string
	Title         string
	Author        string
	Year          int
	Genre         string
	UserID        string
	ImageURL      string
	Ratings       []Rating
	AverageRating float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
