package storage

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidPath is returned for paths that escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// LocalStorage keeps rendered export files on the local filesystem
type LocalStorage struct {
	basePath string
	now      func() time.Time
}

// NewLocalStorage creates a new local storage instance
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalStorage{basePath: basePath, now: time.Now}, nil
}

// Save writes data under companyID/<year>/<month>/ and returns the path
// relative to the storage root. The original filename is kept and prefixed
// with a short random id so repeated exports on the same day don't collide.
func (s *LocalStorage) Save(companyID, filename string, data []byte) (string, error) {
	company, err := cleanSegment(companyID)
	if err != nil {
		return "", err
	}
	name, err := cleanSegment(filename)
	if err != nil {
		return "", err
	}

	dir := filepath.Join(s.basePath, company, s.now().UTC().Format("2006/01"))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	filePath := filepath.Join(dir, generateID()+"_"+name)
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write file: %w", err)
	}

	relPath, _ := filepath.Rel(s.basePath, filePath)
	return relPath, nil
}

// FullPath resolves relativePath against the storage root.
func (s *LocalStorage) FullPath(relativePath string) (string, error) {
	full := filepath.Join(s.basePath, relativePath)
	rel, err := filepath.Rel(s.basePath, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", ErrInvalidPath
	}
	return full, nil
}

func cleanSegment(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return name, nil
}

// generateID creates a short random identifier for filenames
func generateID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return hex.EncodeToString(b)
}
