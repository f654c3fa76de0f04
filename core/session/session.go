// Package session binds one harness session to its store, pools,
// ingestion engine, and tool surface. A SessionContext is exclusively
// owned by its caller: per-session processing is single-threaded and
// cooperative, with watcher-driven file changes funneled through the
// same mutation path as harness-driven ingestion.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/adalundhe/weft/core/assemble"
	"github.com/adalundhe/weft/core/ingest"
	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/pool"
	"github.com/adalundhe/weft/core/store"
	"github.com/adalundhe/weft/core/tools"
	"github.com/adalundhe/weft/core/watch"
)

// Config configures a session context.
type Config struct {
	Store        store.Store
	Harness      string
	SessionID    string
	SystemPrompt string
	Policy       pool.EvictionPolicy
	FS           tools.HostFS
	Logger       *slog.Logger
}

// SessionContext owns all mutable per-session state. Nothing in here
// is shared across sessions.
type SessionContext struct {
	mu      sync.Mutex
	store   store.Store
	pools   *pool.Manager
	engine  *ingest.Engine
	surface *tools.Surface
	logger  *slog.Logger

	harness   string
	sessionID string
	objectID  string
	chatID    string
	promptID  string

	fileEvents <-chan watch.FileEvent
}

// Open resumes the session if its Session object exists in the store,
// otherwise creates a fresh one.
func Open(ctx context.Context, cfg Config) (*SessionContext, error) {
	normalizeConfig(&cfg)

	s := newSessionContext(cfg)
	version, err := cfg.Store.Get(ctx, s.objectID)
	switch {
	case err == nil:
		if err := s.resume(ctx, version.Object); err != nil {
			return nil, fmt.Errorf("resume session %s: %w", cfg.SessionID, err)
		}
		return s, nil
	case errors.Is(err, store.ErrNotFound):
		if err := s.initialize(ctx, cfg.SystemPrompt); err != nil {
			return nil, fmt.Errorf("initialize session %s: %w", cfg.SessionID, err)
		}
		return s, nil
	default:
		return nil, err
	}
}

func normalizeConfig(cfg *Config) {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.New().String()
	}
	if cfg.Harness == "" {
		cfg.Harness = "unknown"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FS == nil {
		cfg.FS = tools.NewLocalFS("")
	}
}

func newSessionContext(cfg Config) *SessionContext {
	key := cfg.Harness + "/" + cfg.SessionID
	s := &SessionContext{
		store:     cfg.Store,
		logger:    cfg.Logger,
		harness:   cfg.Harness,
		sessionID: cfg.SessionID,
		objectID:  "session:" + key,
		chatID:    "chat:" + key,
		promptID:  "prompt:" + key,
	}
	s.pools = pool.NewManager(pool.ManagerConfig{
		Store:  cfg.Store,
		Policy: cfg.Policy,
		Logger: cfg.Logger,
	})
	s.engine = ingest.NewEngine(ingest.EngineConfig{
		Store:      cfg.Store,
		Pools:      s.pools,
		ChatID:     s.chatID,
		SessionRef: s.objectID,
		Logger:     cfg.Logger,
	})
	s.surface = tools.NewSurface(tools.SurfaceConfig{
		Store:  cfg.Store,
		Pools:  s.pools,
		FS:     cfg.FS,
		Logger: cfg.Logger,
	})
	return s
}

func (s *SessionContext) initialize(ctx context.Context, systemPrompt string) error {
	chat := object.Object{
		ID:     s.chatID,
		Type:   object.TypeChat,
		Locked: true,
		Chat: &object.ChatFields{
			SessionRef: s.objectID,
		},
	}
	version, err := s.store.Put(ctx, chat)
	if err != nil {
		return err
	}
	s.pools.Record(version.Object)

	if systemPrompt != "" {
		prompt := object.Object{
			ID:         s.promptID,
			Type:       object.TypeSystemPrompt,
			Content:    object.StringPtr(systemPrompt),
			Locked:     true,
			Provenance: "session_start",
			Prompt:     &object.PromptFields{SessionRef: s.objectID},
		}
		promptVersion, err := s.store.Put(ctx, prompt)
		if err != nil {
			return err
		}
		s.pools.Record(promptVersion.Object)
	}

	return s.persist(ctx)
}

// resume reconstructs pools and cursor from the persisted Session
// object: membership flags first, then objects re-recorded from store
// content in their original metadata order, then active content
// reloaded in activation order.
func (s *SessionContext) resume(ctx context.Context, sessionObj object.Object) error {
	fields := sessionObj.Session
	if fields == nil {
		return fmt.Errorf("session object %s has no session fields", s.objectID)
	}

	s.pools.RestoreMembership(*fields)

	for _, id := range fields.MetadataOrder {
		version, err := s.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reload object %s: %w", id, err)
		}
		s.pools.Record(version.Object)
	}

	for _, id := range fields.ActivationOrder {
		version, err := s.store.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("reload active object %s: %w", id, err)
		}
		s.pools.AutoActivate(id, version.Object.ContentString())
	}

	s.engine.RestoreCursor(ingest.Cursor{
		Position:    fields.CursorPosition,
		Fingerprint: fields.CursorFingerprint,
	})
	return nil
}

// Tools returns the tool surface exposed upward to the harness. Every
// wrapper persists the Session object after a successful mutation, so
// activate/deactivate/pin survive a crash between ingestion steps.
func (s *SessionContext) Tools() *Tools {
	return &Tools{session: s}
}

// Tools is the session-bound tool surface. Calls serialize through the
// session lock alongside ingestion and watcher events.
type Tools struct {
	session *SessionContext
}

func (t *Tools) Read(ctx context.Context, path string) (string, error) {
	return mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return s.Read(ctx, path)
	})
}

func (t *Tools) Activate(ctx context.Context, idOrNickname string) (string, error) {
	return mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return s.Activate(ctx, idOrNickname)
	})
}

func (t *Tools) Deactivate(ctx context.Context, idOrNickname string) (string, error) {
	return mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return s.Deactivate(idOrNickname)
	})
}

func (t *Tools) Pin(ctx context.Context, id string) error {
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return "", s.Pin(id)
	})
	return err
}

func (t *Tools) Unpin(ctx context.Context, id string) error {
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return "", s.Unpin(id)
	})
	return err
}

func (t *Tools) Write(ctx context.Context, path, content string) error {
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return "", s.Write(ctx, path, content)
	})
	return err
}

func (t *Tools) Edit(ctx context.Context, path, oldText, newText string) error {
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		return "", s.Edit(ctx, path, oldText, newText)
	})
	return err
}

func (t *Tools) Ls(ctx context.Context, dir string) ([]string, error) {
	var names []string
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		var lsErr error
		names, lsErr = s.Ls(ctx, dir)
		return "", lsErr
	})
	return names, err
}

func (t *Tools) Find(ctx context.Context, root, pattern string) ([]string, error) {
	var matches []string
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		var findErr error
		matches, findErr = s.Find(ctx, root, pattern)
		return "", findErr
	})
	return matches, err
}

func (t *Tools) Grep(ctx context.Context, root, pattern string) ([]tools.GrepMatch, error) {
	var matches []tools.GrepMatch
	_, err := mutate(t.session, ctx, func(s *tools.Surface) (string, error) {
		var grepErr error
		matches, grepErr = s.Grep(ctx, root, pattern)
		return "", grepErr
	})
	return matches, err
}

// mutate runs one tool operation under the session lock and persists
// the Session object on success.
func mutate(s *SessionContext, ctx context.Context, op func(*tools.Surface) (string, error)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainFileEvents(ctx)
	result, err := op(s.surface)
	if err != nil {
		return "", err
	}
	if err := s.persist(ctx); err != nil {
		s.logger.Warn("persist session state", "error", err)
	}
	return result, nil
}

// Pools exposes the pool manager for direct activation control.
func (s *SessionContext) Pools() *pool.Manager {
	return s.pools
}

// AttachWatcher funnels a watcher's events into this session's
// mutation queue. Events are drained in arrival order at the start of
// every ingestion or assembly step.
func (s *SessionContext) AttachWatcher(events <-chan watch.FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileEvents = events
}

// Ingest drains pending file events, consumes the message sequence,
// persists the session object, and returns the assembled context. On
// ingestion failure, durable state and the returned assembly reflect
// exactly the last successfully committed message.
func (s *SessionContext) Ingest(ctx context.Context, msgs []ingest.Message) (assemble.Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainFileEvents(ctx)

	ingestErr := s.engine.Ingest(ctx, msgs)

	if err := s.persist(ctx); err != nil {
		s.logger.Warn("persist session state", "error", err)
	}

	return assemble.Render(s.pools), ingestErr
}

// Assemble re-renders current pool state without consuming messages.
// The eviction sweep is recomputed first, as on every assembly step.
func (s *SessionContext) Assemble(ctx context.Context) assemble.Output {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.drainFileEvents(ctx)
	s.pools.Sweep()
	if err := s.persist(ctx); err != nil {
		s.logger.Warn("persist session state", "error", err)
	}
	return assemble.Render(s.pools)
}

// drainFileEvents applies queued watcher events in arrival order under
// the session lock, so a watcher-triggered version never interleaves
// with an in-flight tool-call mutation on the same object id.
func (s *SessionContext) drainFileEvents(ctx context.Context) {
	if s.fileEvents == nil {
		return
	}
	for {
		select {
		case event, ok := <-s.fileEvents:
			if !ok {
				s.fileEvents = nil
				return
			}
			s.applyFileEvent(ctx, event)
		default:
			return
		}
	}
}

func (s *SessionContext) applyFileEvent(ctx context.Context, event watch.FileEvent) {
	var err error
	switch event.Op {
	case watch.OpDelete:
		err = s.surface.IndexRemoval(ctx, event.Path)
	default:
		_, err = s.surface.Index(ctx, event.Path)
	}
	if err != nil {
		s.logger.Warn("apply file event", "path", event.Path, "op", event.Op.String(), "error", err)
	}
}

// persist writes the Session object: pool membership, cursor, refs.
// Put dedupes on the object hash, so an unchanged session writes
// nothing.
func (s *SessionContext) persist(ctx context.Context) error {
	fields := s.pools.Membership()
	fields.Harness = s.harness
	fields.SessionID = s.sessionID
	fields.ChatRef = s.chatID

	cursor := s.engine.Cursor()
	fields.CursorPosition = cursor.Position
	fields.CursorFingerprint = cursor.Fingerprint

	sessionObj := object.Object{
		ID:      s.objectID,
		Type:    object.TypeSession,
		Session: &fields,
	}
	_, err := s.store.Put(ctx, sessionObj)
	return err
}
