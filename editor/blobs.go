package editor

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// ErrBlobNotFound is returned for unknown or released blob references.
var ErrBlobNotFound = errors.New("editor: blob not found")

// BlobStore keeps uploaded image bytes until they are published or the
// editing session ends.
type BlobStore interface {
	Put(data []byte, contentType string) (string, error)
	Open(ref string) (io.ReadCloser, string, error)
	Release(ref string) error
	Has(ref string) bool
}

type blobEntry struct {
	path        string
	contentType string
}

// TempBlobStore stores blobs as files under a private temp directory.
type TempBlobStore struct {
	dir string

	mu      sync.Mutex
	entries map[string]blobEntry
}

// NewTempBlobStore creates a store rooted at a new directory below parent
// (the system temp dir when parent is empty).
func NewTempBlobStore(parent string) (*TempBlobStore, error) {
	dir, err := os.MkdirTemp(parent, "clinicweb-blobs-")
	if err != nil {
		return nil, fmt.Errorf("editor: create blob dir: %w", err)
	}
	return &TempBlobStore{dir: dir, entries: make(map[string]blobEntry)}, nil
}

func (b *TempBlobStore) Put(data []byte, contentType string) (string, error) {
	ref := uuid.NewString()
	path := filepath.Join(b.dir, ref)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("editor: write blob: %w", err)
	}
	b.mu.Lock()
	b.entries[ref] = blobEntry{path: path, contentType: contentType}
	b.mu.Unlock()
	return ref, nil
}

func (b *TempBlobStore) Open(ref string) (io.ReadCloser, string, error) {
	b.mu.Lock()
	e, ok := b.entries[ref]
	b.mu.Unlock()
	if !ok {
		return nil, "", ErrBlobNotFound
	}
	f, err := os.Open(e.path)
	if err != nil {
		return nil, "", err
	}
	return f, e.contentType, nil
}

// Release deletes the blob. Releasing an unknown ref is not an error.
func (b *TempBlobStore) Release(ref string) error {
	b.mu.Lock()
	e, ok := b.entries[ref]
	delete(b.entries, ref)
	b.mu.Unlock()
	if !ok {
		return nil
	}
	if err := os.Remove(e.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (b *TempBlobStore) Has(ref string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.entries[ref]
	return ok
}

// Len returns the number of live blobs.
func (b *TempBlobStore) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Close removes every blob and the directory itself.
func (b *TempBlobStore) Close() error {
	b.mu.Lock()
	b.entries = make(map[string]blobEntry)
	b.mu.Unlock()
	return os.RemoveAll(b.dir)
}
