package domain

import "time"

// User is an account that can create and rate books. The password hash is
// opaque to everything outside the auth package.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}
