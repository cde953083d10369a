// Package storage persists uploaded images on the local filesystem under
// timestamp-prefixed names so repeated uploads of the same file never
// collide.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/MathiasSchindler/commonsimagedescription/internal/logger"
)

// Store writes and resolves uploaded files inside a single directory.
type Store struct {
	dir    string
	logger *logger.Logger

	now func() time.Time
}

// New creates a store rooted at dir. The directory must already exist.
func New(dir string, log *logger.Logger) *Store {
	return &Store{
		dir:    dir,
		logger: log.WithField("component", "storage"),
		now:    time.Now,
	}
}

// Save writes data under a timestamp-prefixed variant of the original name
// and returns the stored filename. A partially written file is removed on
// failure.
func (s *Store) Save(originalName string, data []byte) (string, error) {
	name := s.now().Format("20060102_150405") + "_" + filepath.Base(originalName)
	path := filepath.Join(s.dir, name)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("write upload: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"filename": name,
		"bytes":    len(data),
	}).Info("upload stored")
	return name, nil
}

// Path resolves a stored filename to its absolute location. Path separators
// in the input are stripped so a request can never escape the upload
// directory. os.ErrNotExist is returned for unknown names.
func (s *Store) Path(filename string) (string, error) {
	path := filepath.Join(s.dir, filepath.Base(filename))
	if _, err := os.Stat(path); err != nil {
		return "", err
	}
	return path, nil
}

// Read returns the contents of a stored file.
func (s *Store) Read(filename string) ([]byte, error) {
	path, err := s.Path(filename)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
