// Package storage persists document artifacts on the local filesystem.
// Originals live under documents/<user-id>/, processed results under
// documents/processed/<user-id>/. Filenames are generated identifiers so
// user-supplied names never touch the filesystem.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ArtifactStore defines the artifact persistence contract
type ArtifactStore interface {
	// SaveOriginal stores an uploaded artifact and returns its relative path
	SaveOriginal(userID, ext string, content []byte) (string, error)

	// SaveProcessed stores a rewritten artifact and returns its relative path
	SaveProcessed(userID, ext string, content []byte) (string, error)

	// Read returns the content of an artifact by its relative path
	Read(relPath string) ([]byte, error)

	// Path resolves a relative artifact path to an absolute filesystem path
	Path(relPath string) (string, error)

	// Remove deletes an artifact; missing files are not an error
	Remove(relPath string) error
}

// LocalStore implements ArtifactStore on the local filesystem
type LocalStore struct {
	baseDir string
	logger  *zap.Logger
}

// NewLocalStore creates a new LocalStore rooted at baseDir
func NewLocalStore(baseDir string, logger *zap.Logger) *LocalStore {
	return &LocalStore{
		baseDir: baseDir,
		logger:  logger,
	}
}

// SaveOriginal stores an uploaded artifact under documents/<user-id>/
func (s *LocalStore) SaveOriginal(userID, ext string, content []byte) (string, error) {
	name := uuid.NewString() + normalizeExt(ext)
	relPath := filepath.Join("documents", userID, name)
	if err := s.write(relPath, content); err != nil {
		return "", err
	}
	return relPath, nil
}

// SaveProcessed stores a rewritten artifact under documents/processed/<user-id>/
func (s *LocalStore) SaveProcessed(userID, ext string, content []byte) (string, error) {
	name := "processed_" + uuid.NewString() + normalizeExt(ext)
	relPath := filepath.Join("documents", "processed", userID, name)
	if err := s.write(relPath, content); err != nil {
		return "", err
	}
	return relPath, nil
}

// Read returns the content of an artifact by its relative path
func (s *LocalStore) Read(relPath string) ([]byte, error) {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return content, nil
}

// Path resolves a relative artifact path to an absolute filesystem path
func (s *LocalStore) Path(relPath string) (string, error) {
	return s.resolve(relPath)
}

// Remove deletes an artifact; a missing file is not an error
func (s *LocalStore) Remove(relPath string) error {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		s.logger.Error("Failed to remove artifact", zap.String("path", relPath), zap.Error(err))
		return fmt.Errorf("failed to remove artifact: %w", err)
	}
	return nil
}

func (s *LocalStore) write(relPath string, content []byte) error {
	fullPath, err := s.resolve(relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		s.logger.Error("Failed to create artifact directory", zap.String("path", relPath), zap.Error(err))
		return fmt.Errorf("failed to create directories: %w", err)
	}

	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		s.logger.Error("Failed to write artifact", zap.String("path", relPath), zap.Error(err))
		return fmt.Errorf("failed to write artifact: %w", err)
	}

	s.logger.Debug("Artifact saved",
		zap.String("path", relPath),
		zap.Int("size", len(content)))
	return nil
}

// resolve joins relPath onto the base directory and rejects paths that
// escape it
func (s *LocalStore) resolve(relPath string) (string, error) {
	absBase, err := filepath.Abs(s.baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}

	absPath, err := filepath.Abs(filepath.Join(absBase, relPath))
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if !strings.HasPrefix(absPath, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes base directory: %s", relPath)
	}

	return absPath, nil
}

func normalizeExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}
