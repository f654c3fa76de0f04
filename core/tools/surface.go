package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gobwas/glob"

	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/pool"
	"github.com/adalundhe/weft/core/store"
)

// ErrOldTextNotFound indicates an edit whose search text is absent.
var ErrOldTextNotFound = errors.New("old text not found in file")

// SurfaceConfig configures the tool surface for one session.
type SurfaceConfig struct {
	Store  store.Store
	Pools  *pool.Manager
	FS     HostFS
	Logger *slog.Logger
}

// Surface is the tool layer the agent calls. Read confirms indexing
// rather than echoing content; the content itself reaches the model
// through the active pool in the assembled context.
type Surface struct {
	store  store.Store
	pools  *pool.Manager
	fs     HostFS
	logger *slog.Logger
}

func NewSurface(cfg SurfaceConfig) *Surface {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Surface{
		store:  cfg.Store,
		pools:  cfg.Pools,
		fs:     cfg.FS,
		logger: logger,
	}
}

// FileID derives the stable object id for a path. The id never changes
// across versions of the same file.
func FileID(path string) string {
	return "file:" + filepath.ToSlash(filepath.Clean(path))
}

// Index reads a path from the host and commits a File object version
// for it, updating the metadata pool.
func (s *Surface) Index(ctx context.Context, path string) (store.Version, error) {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return store.Version{}, fmt.Errorf("read %s: %w", path, err)
	}
	return s.indexContent(ctx, path, string(data))
}

func (s *Surface) indexContent(ctx context.Context, path, content string) (store.Version, error) {
	cleaned := filepath.ToSlash(filepath.Clean(path))
	obj := object.Object{
		ID:         FileID(path),
		Type:       object.TypeFile,
		Content:    object.StringPtr(content),
		Provenance: "indexed",
		Nickname:   filepath.Base(cleaned),
		File: &object.FileFields{
			Path:      object.StringPtr(cleaned),
			FileType:  detectFileType(cleaned),
			CharCount: len(content),
		},
	}
	version, err := s.store.Put(ctx, obj)
	if err != nil {
		return store.Version{}, err
	}
	s.pools.Record(version.Object)
	return version, nil
}

// IndexRemoval records a deletion as a content-null, path-null version.
// Prior versions stay retrievable through the store's history.
func (s *Surface) IndexRemoval(ctx context.Context, path string) error {
	id := FileID(path)
	current, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}

	removed := current.Object.Clone()
	removed.Content = nil
	removed.Provenance = "removed"
	if removed.File == nil {
		removed.File = &object.FileFields{}
	}
	removed.File.Path = nil
	removed.File.CharCount = 0

	version, err := s.store.Put(ctx, removed)
	if err != nil {
		return err
	}
	s.pools.Record(version.Object)
	return nil
}

// Read indexes a file, activates it, and returns a confirmation. The
// file content is not returned: it appears in the assembled context's
// active section instead.
func (s *Surface) Read(ctx context.Context, path string) (string, error) {
	version, err := s.Index(ctx, path)
	if err != nil {
		return "", err
	}
	if _, err := s.pools.Activate(ctx, version.Object.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("indexed and activated %s (%d chars, version %d)",
		path, version.Object.File.CharCount, version.Seq), nil
}

// Activate loads an object's content into the active pool by id or
// nickname. Null-content activations succeed with an explicit notice.
func (s *Surface) Activate(ctx context.Context, idOrNickname string) (string, error) {
	result, err := s.pools.Activate(ctx, idOrNickname)
	if err != nil {
		return "", err
	}
	if result.NullContent {
		return fmt.Sprintf("activated %s, but its current version has no content", result.ID), nil
	}
	return fmt.Sprintf("activated %s", result.ID), nil
}

// Deactivate collapses an object back to its metadata entry.
func (s *Surface) Deactivate(idOrNickname string) (string, error) {
	if err := s.pools.Deactivate(idOrNickname); err != nil {
		return "", err
	}
	return fmt.Sprintf("deactivated %s", idOrNickname), nil
}

// Pin exempts an object from automatic eviction.
func (s *Surface) Pin(id string) error {
	return s.pools.Pin(id)
}

// Unpin removes the eviction exemption.
func (s *Surface) Unpin(id string) error {
	return s.pools.Unpin(id)
}

// Write delegates to the host filesystem and indexes the new version.
func (s *Surface) Write(ctx context.Context, path, content string) error {
	if err := s.fs.WriteFile(path, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	_, err := s.indexContent(ctx, path, content)
	return err
}

// Edit replaces the first occurrence of oldText and indexes the result.
func (s *Surface) Edit(ctx context.Context, path, oldText, newText string) error {
	data, err := s.fs.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	content := string(data)
	if !strings.Contains(content, oldText) {
		return fmt.Errorf("%w: %s", ErrOldTextNotFound, path)
	}
	return s.Write(ctx, path, strings.Replace(content, oldText, newText, 1))
}

// Ls lists a directory, indexing each plain file it observes.
func (s *Surface) Ls(ctx context.Context, dir string) ([]string, error) {
	names, err := s.fs.List(dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	for _, name := range names {
		if strings.HasSuffix(name, "/") {
			continue
		}
		if _, err := s.Index(ctx, name); err != nil {
			s.logger.Debug("skipping unreadable path", "path", name, "error", err)
		}
	}
	return names, nil
}

// Find walks root and returns paths matching the glob pattern, indexing
// every match.
func (s *Surface) Find(ctx context.Context, root, pattern string) ([]string, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	paths, err := s.fs.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	var matches []string
	for _, path := range paths {
		if !matcher.Match(filepath.Base(path)) && !matcher.Match(path) {
			continue
		}
		matches = append(matches, path)
		if _, err := s.Index(ctx, path); err != nil {
			s.logger.Debug("skipping unreadable path", "path", path, "error", err)
		}
	}
	return matches, nil
}

// GrepMatch is one matching line from Grep.
type GrepMatch struct {
	Path string
	Line int
	Text string
}

// Grep searches file contents under root with a regular expression,
// indexing every file that contains a match.
func (s *Surface) Grep(ctx context.Context, root, pattern string) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	paths, err := s.fs.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	var matches []GrepMatch
	for _, path := range paths {
		data, err := s.fs.ReadFile(path)
		if err != nil {
			continue
		}
		lines := strings.Split(string(data), "\n")
		matched := false
		for i, line := range lines {
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{Path: path, Line: i + 1, Text: line})
				matched = true
			}
		}
		if matched {
			if _, err := s.indexContent(ctx, path, string(data)); err != nil {
				return nil, err
			}
		}
	}
	return matches, nil
}

var fileTypes = map[string]string{
	".go":   "go",
	".md":   "markdown",
	".txt":  "text",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".sh":   "shell",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
}

func detectFileType(path string) string {
	if t, ok := fileTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return "text"
}
