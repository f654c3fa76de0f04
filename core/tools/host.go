// Package tools exposes the context-management tool surface upward to
// the harness: read/activate/deactivate/pin, plus delegated filesystem
// tools that forward to the host and index File objects from every
// path they observe.
package tools

import (
	"io/fs"
	"os"
	"path/filepath"
)

// HostFS is the boundary to the host's native filesystem tooling. The
// surface delegates actual I/O here and only manages object state.
type HostFS interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte) error
	List(dir string) ([]string, error)
	Walk(root string) ([]string, error)
}

// LocalFS is the os-backed host filesystem rooted at a directory.
type LocalFS struct {
	Root string
}

func NewLocalFS(root string) *LocalFS {
	return &LocalFS{Root: root}
}

func (l *LocalFS) resolve(path string) string {
	if filepath.IsAbs(path) || l.Root == "" {
		return path
	}
	return filepath.Join(l.Root, path)
}

func (l *LocalFS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(l.resolve(path))
}

func (l *LocalFS) WriteFile(path string, data []byte) error {
	resolved := l.resolve(path)
	if dir := filepath.Dir(resolved); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(resolved, data, 0644)
}

func (l *LocalFS) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(l.resolve(dir))
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		name := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}

func (l *LocalFS) Walk(root string) ([]string, error) {
	resolved := l.resolve(root)
	var paths []string
	err := filepath.WalkDir(resolved, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(resolved, path)
		if relErr != nil {
			return relErr
		}
		paths = append(paths, filepath.Join(root, rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
