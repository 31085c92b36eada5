package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Subfolders partitioning uploaded artifacts by kind.
const (
	SubdirCertificates = "certificates"
	SubdirReceipts     = "receipts"
	SubdirProcessed    = "processed_documents"
)

// LocalStorage persists uploaded documents on disk under a base directory.
type LocalStorage struct {
	baseDir string
}

// NewLocalStorage ensures the base directory and its subfolders exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	for _, sub := range []string{SubdirCertificates, SubdirReceipts, SubdirProcessed} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create uploads directory: %w", err)
		}
	}
	return &LocalStorage{baseDir: baseDir}, nil
}

// SaveStream stores the reader contents under the given subfolder with a
// generated name, preserving the original extension. Returns the relative
// path recorded against the application row.
func (s *LocalStorage) SaveStream(subdir, originalName string, r io.Reader) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	rel := filepath.Join(subdir, uuid.NewString()+ext)
	path := filepath.Join(s.baseDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	defer file.Close() //nolint:errcheck
	if _, err := io.Copy(file, r); err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("write upload stream: %w", err)
	}
	return rel, nil
}

// Open returns a read-only handle for a stored document.
func (s *LocalStorage) Open(relPath string) (*os.File, error) {
	file, err := os.Open(s.resolve(relPath))
	if err != nil {
		return nil, fmt.Errorf("open stored file: %w", err)
	}
	return file, nil
}

// Delete removes a stored document if present.
func (s *LocalStorage) Delete(relPath string) error {
	if err := os.Remove(s.resolve(relPath)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stored file: %w", err)
	}
	return nil
}

// Path exposes the absolute path for a stored document.
func (s *LocalStorage) Path(relPath string) string {
	return s.resolve(relPath)
}

func (s *LocalStorage) resolve(relPath string) string {
	rel := filepath.Clean(relPath)
	if filepath.IsAbs(rel) || strings.HasPrefix(rel, "..") {
		// never escape the base directory
		rel = filepath.Base(rel)
	}
	return filepath.Join(s.baseDir, rel)
}
