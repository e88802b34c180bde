package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"grimoire/internal/domain"
	"grimoire/internal/media"
	"grimoire/internal/repository"
)

const (
	maxRequestBody = 1 << 20 // JSON bodies
	maxUploadBytes = 8 << 20 // multipart uploads
	bestRatedCount = 3

	publicMediaPrefix = "/images"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ratingPayload struct {
	UserID string  `json:"userId"`
	Grade  float64 `json:"grade"`
}

type bookCreateRequest struct {
	Title   string          `json:"title"`
	Author  string          `json:"author"`
	Year    int             `json:"year"`
	Genre   string          `json:"genre"`
	Ratings []ratingPayload `json:"ratings"`
}

// bookUpdateRequest enumerates exactly the client-settable fields; the creator
// identity, ratings and average cannot be expressed here, so an update can
// never overwrite them no matter what the payload carries.
type bookUpdateRequest struct {
	Title  *string `json:"title"`
	Author *string `json:"author"`
	Year   *int    `json:"year"`
	Genre  *string `json:"genre"`
}

type bookResponse struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	Title         string          `json:"title"`
	Author        string          `json:"author"`
	Year          int             `json:"year"`
	Genre         string          `json:"genre"`
	ImageURL      string          `json:"imageUrl"`
	Ratings       []ratingPayload `json:"ratings"`
	AverageRating float64         `json:"averageRating"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := s.repo.Books.List(r.Context())
	if err != nil {
		s.logger.Printf("list books error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list books")
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponses(books))
}

func (s *Server) handleBestRated(w http.ResponseWriter, r *http.Request) {
	books, err := s.repo.Books.BestRated(r.Context(), bestRatedCount)
	if err != nil {
		s.logger.Printf("best rated error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list best rated books")
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponses(books))
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookIDParam(w, r)
	if !ok {
		return
	}
	book, err := s.repo.Books.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Printf("get book error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to fetch book")
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponse(book))
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request) {
	callerID, err := s.authn.ResolveIdentity(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Expected multipart form data")
		return
	}

	var req bookCreateRequest
	if err := json.Unmarshal([]byte(r.FormValue("book")), &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed book metadata")
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Author) == "" {
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "title and author are required")
		return
	}
	if len(req.Ratings) == 0 || !validGrade(req.Ratings[0].Grade) {
		s.respondError(w, http.StatusBadRequest, "INVALID_GRADE", "A valid grade between 0 and 5 is required")
		return
	}
	grade := req.Ratings[0].Grade

	raw, originalName, ok := s.readUpload(w, r)
	if !ok {
		return
	}
	asset, err := s.pipeline.Ingest(raw, originalName)
	if err != nil {
		s.respondIngestError(w, err)
		return
	}

	book, err := s.repo.Books.Create(r.Context(), repository.BookCreateParams{
		Title:        strings.TrimSpace(req.Title),
		Author:       strings.TrimSpace(req.Author),
		Year:         req.Year,
		Genre:        strings.TrimSpace(req.Genre),
		UserID:       callerID,
		ImageURL:     s.publicImageURL(r, asset.Filename),
		InitialGrade: grade,
	})
	if err != nil {
		s.logger.Printf("create book error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create book")
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/books/%s", book.ID))
	s.respondJSON(w, http.StatusCreated, messageResponse{Message: "Book created"})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookIDParam(w, r)
	if !ok {
		return
	}
	callerID, err := s.authn.ResolveIdentity(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	book, err := s.repo.Books.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Printf("fetch book for update error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to update book")
		return
	}
	if book.UserID != callerID {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized")
		return
	}

	var req bookUpdateRequest
	var newImageURL *string

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Expected multipart form data")
			return
		}
		if meta := r.FormValue("book"); meta != "" {
			if err := json.Unmarshal([]byte(meta), &req); err != nil {
				s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed book metadata")
				return
			}
		}
		if r.MultipartForm != nil && len(r.MultipartForm.File["image"]) > 0 {
			raw, originalName, ok := s.readUpload(w, r)
			if !ok {
				return
			}
			asset, err := s.pipeline.Ingest(raw, originalName)
			if err != nil {
				s.respondIngestError(w, err)
				return
			}
			// The old backing file goes away before the new reference is
			// merged into the record.
			s.removeImageFile(book.ImageURL)
			url := s.publicImageURL(r, asset.Filename)
			newImageURL = &url
		}
	} else {
		// Clients tend to echo the whole book object back; unknown and
		// protected keys are simply not decodable into the patch type.
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
		defer r.Body.Close()
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
			return
		}
	}

	patch := repository.BookPatch{
		Title:    normalizeStringPtr(req.Title),
		Author:   normalizeStringPtr(req.Author),
		Year:     req.Year,
		Genre:    normalizeStringPtr(req.Genre),
		ImageURL: newImageURL,
	}

	if _, err := s.repo.Books.Update(r.Context(), id, patch); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Printf("update book error: %v", err)
		s.respondError(w, http.StatusBadRequest, "STORE_ERROR", "Failed to update book")
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Book updated"})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookIDParam(w, r)
	if !ok {
		return
	}
	callerID, err := s.authn.ResolveIdentity(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	book, err := s.repo.Books.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Printf("fetch book for delete error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete book")
		return
	}
	if book.UserID != callerID {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized")
		return
	}

	// File first, record second: a crash in between leaves a record whose
	// image is gone, never an unowned file.
	if filename := imageFilename(book.ImageURL); filename != "" {
		if err := s.blobs.Delete(filename); err != nil {
			s.logger.Printf("delete media file error: %v", err)
			s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete book")
			return
		}
	}

	if err := s.repo.Books.Delete(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
			return
		}
		s.logger.Printf("delete book error: %v", err)
		s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to delete book")
		return
	}
	s.respondJSON(w, http.StatusOK, messageResponse{Message: "Book deleted"})
}

type rateRequest struct {
	UserID string  `json:"userId"`
	Rating float64 `json:"rating"`
}

func (s *Server) handleRateBook(w http.ResponseWriter, r *http.Request) {
	id, ok := s.bookIDParam(w, r)
	if !ok {
		return
	}
	callerID, err := s.authn.ResolveIdentity(r)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid authentication information")
		return
	}

	var req rateRequest
	if err := decodeJSONBody(w, r, &req); err != nil {
		s.respondDecodeError(w, err)
		return
	}
	if !validGrade(req.Rating) {
		s.respondError(w, http.StatusBadRequest, "INVALID_GRADE", "A valid grade between 0 and 5 is required")
		return
	}

	book, err := s.repo.Books.AddRating(r.Context(), id, callerID, req.Rating)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
		case errors.Is(err, repository.ErrDuplicateRating):
			s.respondError(w, http.StatusBadRequest, "DUPLICATE_RATING", "User has already rated this book")
		default:
			s.logger.Printf("add rating error: %v", err)
			s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to process rating")
		}
		return
	}
	s.respondJSON(w, http.StatusOK, toBookResponse(book))
}

// readUpload pulls the raw image bytes out of an already-parsed multipart
// form. A missing file part is a client error.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	file, header, err := r.FormFile("image")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "MISSING_IMAGE", "Image file is required")
		return nil, "", false
	}
	defer file.Close()

	raw, err := readAllLimited(file, maxUploadBytes)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "BAD_REQUEST", "Image upload too large or unreadable")
		return nil, "", false
	}
	return raw, header.Filename, true
}

func readAllLimited(file multipart.File, limit int64) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > limit {
		return nil, fmt.Errorf("upload exceeds %d bytes", limit)
	}
	return raw, nil
}

func (s *Server) respondIngestError(w http.ResponseWriter, err error) {
	if errors.Is(err, media.ErrImageDecode) {
		s.respondError(w, http.StatusBadRequest, "IMAGE_DECODE_ERROR", "Uploaded file is not a valid image")
		return
	}
	s.logger.Printf("image ingest error: %v", err)
	s.respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to store image")
}

// removeImageFile best-effort deletes the backing file of an image URL; a
// failure here must not block the record update.
func (s *Server) removeImageFile(imageURL string) {
	filename := imageFilename(imageURL)
	if filename == "" {
		return
	}
	if err := s.blobs.Delete(filename); err != nil {
		s.logger.Printf("delete old media file error: %v", err)
	}
}

func (s *Server) bookIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := chi.URLParam(r, "id")
	if _, err := uuid.Parse(raw); err != nil {
		s.respondError(w, http.StatusNotFound, "NOT_FOUND", "Book not found")
		return "", false
	}
	return raw, true
}

// publicImageURL builds the externally resolvable URL for a stored file from
// the inbound request's scheme and host.
func (s *Server) publicImageURL(r *http.Request, filename string) string {
	scheme := "http"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS != nil {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s%s/%s", scheme, r.Host, publicMediaPrefix, filename)
}

// imageFilename extracts the stored filename from a media URL.
func imageFilename(imageURL string) string {
	_, after, found := strings.Cut(imageURL, publicMediaPrefix+"/")
	if !found {
		return ""
	}
	return after
}

func validGrade(grade float64) bool {
	if math.IsNaN(grade) || math.IsInf(grade, 0) {
		return false
	}
	return grade >= 0 && grade <= 5
}

func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			s.logger.Printf("failed to encode response: %v", err)
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, code, message string) {
	s.respondJSON(w, status, errorResponse{
		Code:    code,
		Message: message,
	})
}

func (s *Server) respondDecodeError(w http.ResponseWriter, err error) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntaxError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Malformed JSON payload")
	case errors.As(err, &typeError):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("Invalid value for field %s", typeError.Field))
	case errors.Is(err, io.EOF):
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Request body cannot be empty")
	default:
		s.respondError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Unable to parse request body")
	}
}

func toBookResponse(book domain.Book) bookResponse {
	ratings := make([]ratingPayload, 0, len(book.Ratings))
	for _, rating := range book.Ratings {
		ratings = append(ratings, ratingPayload{UserID: rating.UserID, Grade: rating.Grade})
	}
	return bookResponse{
		ID:            book.ID,
		UserID:        book.UserID,
		Title:         book.Title,
		Author:        book.Author,
		Year:          book.Year,
		Genre:         book.Genre,
		ImageURL:      book.ImageURL,
		Ratings:       ratings,
		AverageRating: book.AverageRating,
	}
}

func toBookResponses(books []domain.Book) []bookResponse {
	items := make([]bookResponse, 0, len(books))
	for _, book := range books {
		items = append(items, toBookResponse(book))
	}
	return items
}

func normalizeStringPtr(ptr *string) *string {
	if ptr == nil {
		return nil
	}
	val := strings.TrimSpace(*ptr)
	if val == "" {
		return nil
	}
	return &val
}
