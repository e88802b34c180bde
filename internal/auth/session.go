package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnauthorized signals that no valid caller identity could be resolved from
// the request.
var ErrUnauthorized = errors.New("auth: unauthorized")

// SessionStore defines the persistence contract for session tokens.
type SessionStore interface {
	Save(ctx context.Context, token, userID string, expiresAt time.Time) error
	Get(ctx context.Context, token string) (userID string, expiresAt time.Time, ok bool, err error)
	Delete(ctx context.Context, token string) error
}

// Manager issues opaque bearer tokens and resolves them back to a caller
// identity. It is the process-local stand-in for an external identity
// provider; handlers only ever see the interface it satisfies.
type Manager struct {
	store       SessionStore
	ttl         time.Duration
	tokenLength int
}

// NewManager constructs a Manager with the provided token TTL.
func NewManager(store SessionStore, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Manager{store: store, ttl: ttl, tokenLength: 32}
}

// Issue creates a new session token for the given user.
func (m *Manager) Issue(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, fmt.Errorf("issue session: empty user id")
	}
	buf := make([]byte, m.tokenLength)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate token: %w", err)
	}
	token := hex.EncodeToString(buf)
	expiresAt := time.Now().Add(m.ttl)
	if err := m.store.Save(ctx, token, userID, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("save session: %w", err)
	}
	return token, expiresAt, nil
}

// ResolveIdentity extracts the bearer token from the Authorization header and
// resolves it to a user ID. Expired tokens are deleted on sight.
func (m *Manager) ResolveIdentity(r *http.Request) (string, error) {
	token := bearerToken(r.Header.Get("Authorization"))
	if token == "" {
		return "", ErrUnauthorized
	}
	userID, expiresAt, ok, err := m.store.Get(r.Context(), token)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if !ok {
		return "", ErrUnauthorized
	}
	if time.Now().After(expiresAt) {
		_ = m.store.Delete(r.Context(), token)
		return "", ErrUnauthorized
	}
	return userID, nil
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, prefix))
}
