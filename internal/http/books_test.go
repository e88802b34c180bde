package httpserver

import (
	"crypto/tls"
	"math"
	"net/http/httptest"
	"testing"
)

func TestValidGrade(t *testing.T) {
	tests := []struct {
		name  string
		grade float64
		want  bool
	}{
		{"zero", 0, true},
		{"five", 5, true},
		{"half-step", 4.5, true},
		{"negative", -0.1, false},
		{"above-max", 5.1, false},
		{"nan", math.NaN(), false},
		{"positive-inf", math.Inf(1), false},
		{"negative-inf", math.Inf(-1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := validGrade(tt.grade); got != tt.want {
				t.Fatalf("validGrade(%v) = %v, want %v", tt.grade, got, tt.want)
			}
		})
	}
}

func TestImageFilename(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want string
	}{
		{"plain", "http://localhost:8080/images/17123-cover.jpg", "17123-cover.jpg"},
		{"https", "https://books.example.com/images/1-a_b.jpg", "1-a_b.jpg"},
		{"no-prefix", "https://books.example.com/static/cover.jpg", ""},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := imageFilename(tt.url); got != tt.want {
				t.Fatalf("imageFilename(%q) = %q, want %q", tt.url, got, tt.want)
			}
		})
	}
}

func TestPublicImageURL(t *testing.T) {
	srv := &Server{}

	req := httptest.NewRequest("GET", "http://books.example.com/api/books", nil)
	if got := srv.publicImageURL(req, "1-cover.jpg"); got != "http://books.example.com/images/1-cover.jpg" {
		t.Fatalf("publicImageURL = %q", got)
	}

	req = httptest.NewRequest("GET", "http://books.example.com/api/books", nil)
	req.TLS = &tls.ConnectionState{}
	if got := srv.publicImageURL(req, "1-cover.jpg"); got != "https://books.example.com/images/1-cover.jpg" {
		t.Fatalf("publicImageURL over TLS = %q", got)
	}

	req = httptest.NewRequest("GET", "http://books.example.com/api/books", nil)
	req.Header.Set("X-Forwarded-Proto", "https")
	if got := srv.publicImageURL(req, "1-cover.jpg"); got != "https://books.example.com/images/1-cover.jpg" {
		t.Fatalf("publicImageURL behind proxy = %q", got)
	}
}

func TestNormalizeStringPtr(t *testing.T) {
	if got := normalizeStringPtr(nil); got != nil {
		t.Fatalf("normalizeStringPtr(nil) = %v, want nil", got)
	}
	empty := "   "
	if got := normalizeStringPtr(&empty); got != nil {
		t.Fatalf("normalizeStringPtr(blank) = %v, want nil", got)
	}
	padded := "  Title "
	got := normalizeStringPtr(&padded)
	if got == nil || *got != "Title" {
		t.Fatalf("normalizeStringPtr(padded) = %v, want Title", got)
	}
}
