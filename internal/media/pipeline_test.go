package media

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: uint8(50 * x), G: uint8(50 * y), B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

func TestIngestTranscodesAndStores(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	store := NewDiskStore(root)
	pipeline := NewPipeline(store)
	pipeline.now = func() time.Time { return time.UnixMilli(1700000000000) }

	asset, err := pipeline.Ingest(pngBytes(t), "My Cover.png")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if asset.ContentType != "image/jpeg" {
		t.Fatalf("content type = %s, want image/jpeg", asset.ContentType)
	}
	if asset.Filename != "1700000000000-My_Cover.jpg" {
		t.Fatalf("filename = %s, want 1700000000000-My_Cover.jpg", asset.Filename)
	}
	if !store.Exists(asset.Filename) {
		t.Fatalf("stored file missing")
	}

	// The stored bytes decode as the canonical format.
	data, err := os.ReadFile(filepath.Join(root, asset.Filename))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if _, err := jpeg.Decode(bytes.NewReader(data)); err != nil {
		t.Fatalf("stored file is not a jpeg: %v", err)
	}

	// The media root only ever gains the one file per ingest.
	entries, err := os.ReadDir(root)
	if err != nil {
		t.Fatalf("read media root: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("media root has %d files, want 1", len(entries))
	}
}

func TestIngestNamePattern(t *testing.T) {
	store := NewDiskStore(filepath.Join(t.TempDir(), "images"))
	pipeline := NewPipeline(store)

	asset, err := pipeline.Ingest(pngBytes(t), "weird  name.tar.png")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	pattern := regexp.MustCompile(`^\d+-weird_name\.tar\.jpg$`)
	if !pattern.MatchString(asset.Filename) {
		t.Fatalf("filename %q does not match %s", asset.Filename, pattern)
	}
}

func TestIngestRejectsUndecodableInput(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	store := NewDiskStore(root)
	pipeline := NewPipeline(store)

	_, err := pipeline.Ingest([]byte("definitely not an image"), "junk.png")
	if err == nil {
		t.Fatalf("ingest accepted garbage")
	}
	if !errors.Is(err, ErrImageDecode) {
		t.Fatalf("error = %v, want ErrImageDecode", err)
	}

	// No partial file may exist after a failed ingest; the root is not even
	// created until the first successful write.
	if _, statErr := os.Stat(root); !os.IsNotExist(statErr) {
		entries, _ := os.ReadDir(root)
		if len(entries) != 0 {
			t.Fatalf("failed ingest left %d files behind", len(entries))
		}
	}
}

func TestSanitizeStem(t *testing.T) {
	tests := []struct {
		name     string
		original string
		want     string
	}{
		{"spaces", "my old book.png", "my_old_book"},
		{"tabs-and-doubles", "a \t b.jpeg", "a_b"},
		{"no-extension", "plain", "plain"},
		{"only-extension", ".png", "image"},
		{"empty", "", "image"},
		{"path-attempt", "../../etc/passwd.png", "passwd"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeStem(tt.original); got != tt.want {
				t.Fatalf("sanitizeStem(%q) = %q, want %q", tt.original, got, tt.want)
			}
		})
	}
}

func TestDiskStoreDelete(t *testing.T) {
	root := filepath.Join(t.TempDir(), "images")
	store := NewDiskStore(root)

	if err := store.Put("a.jpg", []byte("payload")); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !store.Exists("a.jpg") {
		t.Fatalf("stored file missing")
	}
	if err := store.Delete("a.jpg"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if store.Exists("a.jpg") {
		t.Fatalf("file still present after delete")
	}

	// Missing files are already-clean state.
	if err := store.Delete("a.jpg"); err != nil {
		t.Fatalf("delete of missing file: %v", err)
	}
	if err := store.Delete("never-existed.jpg"); err != nil {
		t.Fatalf("delete of never-written file: %v", err)
	}
}
