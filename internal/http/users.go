package httpserver

import (
	"errors"
	"net/http"
	"strings"

	"grimoire/internal/auth"
	"grimoire/internal/repository"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "email and password are required")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Printf("hash password error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user")
		return
	}

	if _, err := s.repo.Users.Create(r.Context(), email, hash); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			s.respondError(w, http.StatusBadRequest, "EMAIL_TAKEN", "Email is already registered")
			return
		}
		s.logger.Printf("create user error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create user")
		return
	}
	s.respondJSON(w, http.StatusCreated, messageResponse{Message: "User created"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))

	user, err := s.repo.Users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same message as a wrong password so the response does not leak
			// which accounts exist.
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email/password pair")
			return
		}
		s.logger.Printf("fetch user for login error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in")
		return
	}

	if err := auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid email/password pair")
			return
		}
		s.logger.Printf("verify password error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in")
		return
	}

	token, _, err := s.authn.Issue(r.Context(), user.ID)
	if err != nil {
		s.logger.Printf("issue session error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to log in")
		return
	}
	s.respondJSON(w, http.StatusOK, loginResponse{UserID: user.ID, Token: token})
}
