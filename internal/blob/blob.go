// Package blob abstracts binary storage for attachments and generated
// documents. The core only deals in locators; the concrete backend is
// swappable (local directory here, object storage in hosted deployments).
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store writes and reads blobs by locator. A locator is an opaque string of
// the form "blob://<id>".
type Store interface {
	Put(id string, data []byte) (locator string, err error)
	Get(locator string) ([]byte, error)
}

const locatorPrefix = "blob://"

// LocalStore keeps blobs as files in a directory.
type LocalStore struct {
	dir string
}

// NewLocalStore creates (if needed) and wraps a blob directory.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob directory: %w", err)
	}
	return &LocalStore{dir: dir}, nil
}

func (s *LocalStore) Put(id string, data []byte) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") {
		return "", fmt.Errorf("invalid blob id %q", id)
	}
	if err := os.WriteFile(filepath.Join(s.dir, id), data, 0o644); err != nil {
		return "", fmt.Errorf("writing blob %s: %w", id, err)
	}
	return locatorPrefix + id, nil
}

func (s *LocalStore) Get(locator string) ([]byte, error) {
	id, ok := strings.CutPrefix(locator, locatorPrefix)
	if !ok || id == "" || strings.ContainsAny(id, "/\\") {
		return nil, fmt.Errorf("invalid blob locator %q", locator)
	}
	data, err := os.ReadFile(filepath.Join(s.dir, id))
	if err != nil {
		return nil, fmt.Errorf("reading blob %s: %w", id, err)
	}
	return data, nil
}
