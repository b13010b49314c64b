package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStore keeps slide files on disk under a base directory. It is the
// fallback blob backend for deployments without an object-store endpoint.
type LocalStore struct {
	baseDir       string
	publicBaseURL string
}

// NewLocalStore ensures the base directory exists and returns a handle.
func NewLocalStore(baseDir, publicBaseURL string) (*LocalStore, error) {
	if baseDir == "" {
		baseDir = "./slides"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create slides directory: %w", err)
	}
	return &LocalStore{
		baseDir:       baseDir,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}, nil
}

// Upload copies the reader into the target file path.
func (s *LocalStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	target := s.resolve(path)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("prepare slide directory: %w", err)
	}
	file, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("create slide file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		return fmt.Errorf("write slide file: %w", err)
	}
	return nil
}

// Remove deletes a stored file if present.
func (s *LocalStore) Remove(ctx context.Context, path string) error {
	if err := os.Remove(s.resolve(path)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete slide file: %w", err)
	}
	return nil
}

// PublicURL returns the URL the stored path is served under.
func (s *LocalStore) PublicURL(path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + path
	}
	return "/files/" + path
}

// Probe verifies the base directory is usable.
func (s *LocalStore) Probe(ctx context.Context) error {
	info, err := os.Stat(s.baseDir)
	if err != nil {
		return fmt.Errorf("probe slides directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("slides path %s is not a directory", s.baseDir)
	}
	return nil
}

// Open returns a read-only handle for a stored file; used when serving
// local-backend downloads.
func (s *LocalStore) Open(path string) (*os.File, error) {
	file, err := os.Open(s.resolve(path))
	if err != nil {
		return nil, fmt.Errorf("open slide file: %w", err)
	}
	return file, nil
}

// BaseDir exposes the root directory (used to mount the static file route).
func (s *LocalStore) BaseDir() string {
	return s.baseDir
}

func (s *LocalStore) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(s.baseDir, path)
}
