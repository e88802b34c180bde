package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grimoire/internal/auth"
)

func TestSignupAndLogin(t *testing.T) {
	srv := buildTestServer(t, nil)
	// Exercise the real session manager end to end.
	srv.authn = auth.NewManager(srv.repo.Sessions, time.Hour)

	signup := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", strings.NewReader(body))
		return srv.do(req)
	}

	if rec := signup(`{"email":"reader@example.com","password":"s3cret"}`); rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if rec := signup(`{"email":"reader@example.com","password":"other"}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("duplicate signup status = %d, want 400", rec.Code)
	}
	if rec := signup(`{"email":"","password":""}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("empty signup status = %d, want 400", rec.Code)
	}

	login := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(body))
		return srv.do(req)
	}

	if rec := login(`{"email":"reader@example.com","password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad password login status = %d, want 401", rec.Code)
	}
	if rec := login(`{"email":"ghost@example.com","password":"s3cret"}`); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email login status = %d, want 401", rec.Code)
	}

	rec := login(`{"email":"reader@example.com","password":"s3cret"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if resp.UserID == "" || resp.Token == "" {
		t.Fatalf("login response incomplete: %+v", resp)
	}

	// The issued token resolves back to the account that logged in.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	userID, err := srv.authn.ResolveIdentity(req)
	if err != nil {
		t.Fatalf("resolve issued token: %v", err)
	}
	if userID != resp.UserID {
		t.Fatalf("resolved identity = %s, want %s", userID, resp.UserID)
	}

	// A made-up token does not.
	req.Header.Set("Authorization", "Bearer deadbeef")
	if _, err := srv.authn.ResolveIdentity(req); err == nil {
		t.Fatalf("bogus token resolved")
	}
}
