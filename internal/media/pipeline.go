package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"
	"time"

	_ "image/gif"
	_ "image/png"

	_ "golang.org/x/image/webp"
)

// ErrImageDecode indicates the uploaded payload is not a decodable image.
var ErrImageDecode = errors.New("media: cannot decode image")

// Every ingested image is re-encoded to one canonical lossy format.
const (
	canonicalExt  = "jpg"
	ContentType   = "image/jpeg"
	encodeQuality = 50
)

// Asset is the retrievable result of ingesting an upload.
type Asset struct {
	Filename    string
	ContentType string
}

// Pipeline decodes uploads, transcodes them to the canonical format and hands
// the bytes to the blob store under a unique name.
type Pipeline struct {
	store BlobStore
	now   func() time.Time
}

// NewPipeline constructs a Pipeline writing to the given store.
func NewPipeline(store BlobStore) *Pipeline {
	return &Pipeline{store: store, now: time.Now}
}

// Ingest validates and transcodes raw upload bytes. Exactly one file is
// written on success; nothing is written on failure. The original filename is
// untrusted and only contributes a sanitized stem to the stored name.
func (p *Pipeline) Ingest(raw []byte, originalName string) (Asset, error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Asset{}, fmt.Errorf("%w: %v", ErrImageDecode, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: encodeQuality}); err != nil {
		return Asset{}, fmt.Errorf("encode image: %w", err)
	}

	filename := fmt.Sprintf("%d-%s.%s", p.now().UnixMilli(), sanitizeStem(originalName), canonicalExt)
	if err := p.store.Put(filename, buf.Bytes()); err != nil {
		return Asset{}, err
	}
	return Asset{Filename: filename, ContentType: ContentType}, nil
}

// sanitizeStem strips the original extension and replaces whitespace with
// underscores.
func sanitizeStem(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Join(strings.Fields(stem), "_")
	if stem == "" || stem == "." {
		return "image"
	}
	return stem
}
