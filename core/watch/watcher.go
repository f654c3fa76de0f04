// Package watch wraps fsnotify to feed background file changes into a
// session's mutation queue. The watcher never mutates pools directly:
// it emits events that the session drains in arrival order, serialized
// with harness-driven ingestion.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

// DefaultDebounce is the default debounce interval for file events.
const DefaultDebounce = 100 * time.Millisecond

// DefaultQueueSize bounds the event channel.
const DefaultQueueSize = 256

var (
	// ErrNoPathsConfigured indicates no watch paths were specified.
	ErrNoPathsConfigured = errors.New("no paths configured for watching")

	// ErrPathNotExist indicates a watch path does not exist.
	ErrPathNotExist = errors.New("watch path does not exist")

	// ErrPathNotDirectory indicates a watch path is not a directory.
	ErrPathNotDirectory = errors.New("watch path is not a directory")

	// ErrInvalidPattern indicates an exclude pattern could not be compiled.
	ErrInvalidPattern = errors.New("invalid exclude pattern")
)

// Op is the kind of file change observed.
type Op int

const (
	OpCreate Op = iota
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// FileEvent is one debounced file change.
type FileEvent struct {
	Path string
	Op   Op
	Time time.Time
}

// Config configures the watcher.
type Config struct {
	Paths           []string
	ExcludePatterns []string
	Debounce        time.Duration
	QueueSize       int
}

// DefaultConfig watches one root with common editor noise excluded.
func DefaultConfig(root string) Config {
	return Config{
		Paths:           []string{root},
		ExcludePatterns: []string{"**/.git/**", "**/*.swp", "**/*~"},
		Debounce:        DefaultDebounce,
		QueueSize:       DefaultQueueSize,
	}
}

// Watcher monitors directories recursively and emits debounced events.
type Watcher struct {
	config   Config
	watcher  *fsnotify.Watcher
	excludes []glob.Glob

	mu      sync.Mutex
	pending map[string]*time.Timer
	events  chan FileEvent
	stopped bool
}

func New(config Config) (*Watcher, error) {
	if err := validateConfig(&config); err != nil {
		return nil, err
	}

	excludes, err := compileExcludes(config.ExcludePatterns)
	if err != nil {
		return nil, err
	}

	fsntfy, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		config:   config,
		watcher:  fsntfy,
		excludes: excludes,
		pending:  make(map[string]*time.Timer),
		events:   make(chan FileEvent, config.QueueSize),
	}, nil
}

func validateConfig(config *Config) error {
	if len(config.Paths) == 0 {
		return ErrNoPathsConfigured
	}
	for _, path := range config.Paths {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return ErrPathNotExist
			}
			return err
		}
		if !info.IsDir() {
			return ErrPathNotDirectory
		}
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultDebounce
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	return nil
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	excludes := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, errors.Join(ErrInvalidPattern, err)
		}
		excludes = append(excludes, g)
	}
	return excludes, nil
}

// Events returns the channel the session drains.
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Start begins watching; the event channel closes when ctx is
// cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	for _, root := range w.config.Paths {
		if err := w.addRecursive(root); err != nil {
			return err
		}
	}
	go w.run(ctx)
	return nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || w.excluded(path) {
			return nil
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if w.excluded(event.Name) {
		return
	}

	op, relevant := classifyOp(event.Op)
	if !relevant {
		return
	}

	// New directories need watches before their contents change.
	if op == OpCreate {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			_ = w.addRecursive(event.Name)
			return
		}
	}

	w.debounce(FileEvent{Path: event.Name, Op: op, Time: time.Now()})
}

func classifyOp(op fsnotify.Op) (Op, bool) {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate, true
	case op.Has(fsnotify.Write):
		return OpModify, true
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete, true
	default:
		return 0, false
	}
}

// debounce coalesces rapid events on the same path, emitting only the
// last one after the quiet period.
func (w *Watcher) debounce(event FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	if timer, ok := w.pending[event.Path]; ok {
		timer.Stop()
	}
	w.pending[event.Path] = time.AfterFunc(w.config.Debounce, func() {
		w.emit(event)
	})
}

// emit holds the lock across the send so a fired timer can never race
// close: the select with default cannot block, and close waits for the
// same lock.
func (w *Watcher) emit(event FileEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	delete(w.pending, event.Path)
	if w.stopped {
		return
	}
	select {
	case w.events <- event:
	default:
		// Queue full: drop rather than block the watcher goroutine.
	}
}

func (w *Watcher) excluded(path string) bool {
	slashed := filepath.ToSlash(path)
	for _, g := range w.excludes {
		if g.Match(slashed) {
			return true
		}
	}
	return false
}

func (w *Watcher) close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.watcher.Close()
	close(w.events)
}

// Stop shuts the watcher down and closes the event channel.
func (w *Watcher) Stop() {
	w.close()
}
