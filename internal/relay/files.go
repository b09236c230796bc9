package relay

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// ErrInvalidPath is returned for a path that does not name a file under the root.
var ErrInvalidPath = errors.New("invalid path")

// FileStore reads and writes raw file bytes under a root directory.
type FileStore struct {
	root string
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Root returns the root directory.
func (s *FileStore) Root() string {
	return s.root
}

// NormalizePath returns the canonical slash-separated form of a client path,
// relative to the root: "/a.txt", "a.txt" and "./x/../a.txt" all name "a.txt".
func NormalizePath(p string) (string, error) {
	if p == "" || strings.ContainsRune(p, 0) {
		return "", ErrInvalidPath
	}
	clean := strings.TrimPrefix(path.Clean("/"+filepath.ToSlash(p)), "/")
	if clean == "" {
		return "", ErrInvalidPath
	}
	return clean, nil
}

// Resolve maps a client path to a file system path. Paths cannot escape the root.
func (s *FileStore) Resolve(p string) (string, error) {
	key, err := NormalizePath(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(key)), nil
}

// Read returns the content of path.
func (s *FileStore) Read(name string) (string, error) {
	full, err := s.Resolve(name)
	if err != nil {
		return "", err
	}
	info, err := os.Stat(full)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s: %w", name, ErrInvalidPath)
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Write replaces the content of path. The parent directory must exist.
func (s *FileStore) Write(name, content string) error {
	full, err := s.Resolve(name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("parent directory not found: %s", path.Dir(filepath.ToSlash(name)))
	}

	tmp, err := os.CreateTemp(dir, ".save-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return fmt.Errorf("failed to replace file: %w", err)
	}
	return nil
}

// Delete removes path.
func (s *FileStore) Delete(name string) error {
	full, err := s.Resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(full)
}
