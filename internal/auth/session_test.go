package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

type memorySession struct {
	userID    string
	expiresAt time.Time
}

// memorySessionStore is an in-memory SessionStore for tests.
type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: make(map[string]memorySession)}
}

func (s *memorySessionStore) Save(_ context.Context, token, userID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *memorySessionStore) Get(_ context.Context, token string) (string, time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[token]
	if !ok {
		return "", time.Time{}, false, nil
	}
	return session.userID, session.expiresAt, true, nil
}

func (s *memorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

func TestIssueAndResolveIdentity(t *testing.T) {
	store := newMemorySessionStore()
	manager := NewManager(store, time.Hour)

	token, expiresAt, err := manager.Issue(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatalf("empty token issued")
	}
	if until := time.Until(expiresAt); until < 55*time.Minute || until > time.Hour {
		t.Fatalf("expiry %v outside expected window", until)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	userID, err := manager.ResolveIdentity(req)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("resolved = %s, want user-1", userID)
	}
}

func TestResolveIdentityRejectsBadHeaders(t *testing.T) {
	manager := NewManager(newMemorySessionStore(), time.Hour)

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not-bearer", "Basic dXNlcjpwYXNz"},
		{"empty-token", "Bearer "},
		{"unknown-token", "Bearer deadbeef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if _, err := manager.ResolveIdentity(req); !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("error = %v, want ErrUnauthorized", err)
			}
		})
	}
}

func TestResolveIdentityExpiresTokens(t *testing.T) {
	store := newMemorySessionStore()
	manager := NewManager(store, time.Hour)

	if err := store.Save(context.Background(), "stale", "user-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer stale")
	if _, err := manager.ResolveIdentity(req); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expired token error = %v, want ErrUnauthorized", err)
	}

	// Expired tokens are dropped from the store on sight.
	if _, _, ok, _ := store.Get(context.Background(), "stale"); ok {
		t.Fatalf("expired token still stored")
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	manager := NewManager(newMemorySessionStore(), time.Hour)
	if _, _, err := manager.Issue(context.Background(), ""); err == nil {
		t.Fatalf("issue accepted empty user id")
	}
}
