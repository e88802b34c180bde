package media

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// BlobStore abstracts the media file storage so the pipeline and the handlers
// can be exercised against an in-memory fake.
type BlobStore interface {
	Put(name string, data []byte) error
	Delete(name string) error
	Exists(name string) bool
}

// DiskStore keeps media files in a flat directory, one file per asset.
type DiskStore struct {
	root string
}

// NewDiskStore returns a store rooted at dir. The directory is created lazily
// on the first write.
func NewDiskStore(dir string) *DiskStore {
	return &DiskStore{root: dir}
}

// Put writes one file. Names are flattened to their base so a crafted name
// cannot escape the root.
func (s *DiskStore) Put(name string, data []byte) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return fmt.Errorf("create media root: %w", err)
	}
	path := filepath.Join(s.root, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write media file: %w", err)
	}
	return nil
}

// Delete removes a file. A missing file is already-clean state, not an error.
func (s *DiskStore) Delete(name string) error {
	err := os.Remove(filepath.Join(s.root, filepath.Base(name)))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete media file: %w", err)
	}
	return nil
}

// Exists reports whether the named file is present.
func (s *DiskStore) Exists(name string) bool {
	_, err := os.Stat(filepath.Join(s.root, filepath.Base(name)))
	return err == nil
}
