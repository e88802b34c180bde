package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if !strings.HasPrefix(hash, "pbkdf2$sha256$") {
		t.Fatalf("hash format = %q", hash)
	}

	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("verify correct password: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("verify wrong password error = %v, want ErrInvalidCredentials", err)
	}
}

func TestHashPasswordSalts(t *testing.T) {
	first, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	second, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if first == second {
		t.Fatalf("two hashes of the same password are identical")
	}
}

func TestVerifyPasswordRejectsMalformedHashes(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"too-few-parts", "pbkdf2$sha256$1000"},
		{"wrong-algorithm", "scrypt$sha256$1000$c2FsdA$a2V5"},
		{"bad-iterations", "pbkdf2$sha256$zero$c2FsdA$a2V5"},
		{"bad-salt", "pbkdf2$sha256$1000$!!$a2V5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyPassword(tt.hash, "whatever")
			if err == nil {
				t.Fatalf("malformed hash accepted")
			}
			if errors.Is(err, ErrInvalidCredentials) {
				t.Fatalf("malformed hash reported as bad credentials")
			}
		})
	}
}
