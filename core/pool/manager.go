package pool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/store"
)

var (
	// ErrNotFound indicates the id or nickname resolves to no known
	// object in this session.
	ErrNotFound = errors.New("object not found in session")

	// ErrLockedObject indicates a deactivation attempt on a locked
	// object (chat history, system prompt).
	ErrLockedObject = errors.New("object is locked and cannot be deactivated")
)

// MetadataEntry is one row of the metadata pool: the lightweight,
// always-visible record of a known object. Entries are appended in
// insertion order and never reordered or pruned within a session.
type MetadataEntry struct {
	ID       string
	Type     object.ObjectType
	Nickname string
	Detail   string
	Locked   bool
	Removed  bool
	ViewHash object.Hash
}

// ContentBlock is an id-keyed content unit handed to the assembler.
type ContentBlock struct {
	ID      string
	Content string
}

// ActivateResult reports the outcome of an activation. NullContent
// marks the informational case where the current version has no
// content: the object is active, but there is nothing to render.
type ActivateResult struct {
	ID          string
	NullContent bool
}

// ManagerConfig configures a pool manager.
type ManagerConfig struct {
	Store  store.Store
	Policy EvictionPolicy
	Logger *slog.Logger
}

// Manager owns the three context pools for one session. It is guarded
// by a single mutex; per-session processing is cooperative and
// single-threaded, so the lock only orders watcher-driven and
// harness-driven mutations.
type Manager struct {
	mu     sync.RWMutex
	store  store.Store
	policy EvictionPolicy
	logger *slog.Logger

	entries   []MetadataEntry
	index     map[string]int
	nicknames map[string]string

	prompts []ContentBlock

	chatID    string
	chatTurns []object.Turn

	active      map[string]string
	activeOrder []string
	inactive    map[string]bool
	pinned      map[string]bool
	manual      map[string]bool

	toolcallLog []object.ToolcallLogItem
	logged      map[string]bool
	currentTurn int
}

func NewManager(cfg ManagerConfig) *Manager {
	policy := cfg.Policy
	if policy.RecentToolcalls <= 0 && policy.RecentCompletedTurns <= 0 {
		policy = DefaultEvictionPolicy()
	}
	return &Manager{
		store:       cfg.Store,
		policy:      policy,
		logger:      normalizeLogger(cfg.Logger),
		index:       make(map[string]int),
		nicknames:   make(map[string]string),
		active:      make(map[string]string),
		inactive:    make(map[string]bool),
		pinned:      make(map[string]bool),
		manual:      make(map[string]bool),
		logged:      make(map[string]bool),
		currentTurn: -1,
	}
}

func normalizeLogger(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.Default()
	}
	return logger
}

// Record adds or updates the metadata entry for one object version.
// New objects start inactive; if the object is currently active, the
// active pool is refreshed to the new version's content so watcher
// updates are reflected immediately.
func (m *Manager) Record(obj object.Object) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordLocked(obj)
}

func (m *Manager) recordLocked(obj object.Object) {
	entry := MetadataEntry{
		ID:       obj.ID,
		Type:     obj.Type,
		Nickname: obj.Nickname,
		Detail:   metadataDetail(obj),
		Locked:   obj.Locked,
		Removed:  obj.Removed(),
		ViewHash: obj.MetadataViewHash,
	}

	if i, ok := m.index[obj.ID]; ok {
		m.entries[i] = entry
	} else {
		m.index[obj.ID] = len(m.entries)
		m.entries = append(m.entries, entry)
		if !m.isActiveLocked(obj.ID) {
			m.inactive[obj.ID] = true
		}
	}
	if obj.Nickname != "" {
		m.nicknames[obj.Nickname] = obj.ID
	}

	switch obj.Type {
	case object.TypeSystemPrompt:
		m.upsertPrompt(obj)
	case object.TypeChat:
		m.chatID = obj.ID
		if obj.Chat != nil {
			m.chatTurns = object.CloneTurns(obj.Chat.Turns)
		}
	}

	if _, active := m.active[obj.ID]; active {
		m.active[obj.ID] = obj.ContentString()
	}
}

func (m *Manager) upsertPrompt(obj object.Object) {
	for i, prompt := range m.prompts {
		if prompt.ID == obj.ID {
			m.prompts[i].Content = obj.ContentString()
			return
		}
	}
	m.prompts = append(m.prompts, ContentBlock{ID: obj.ID, Content: obj.ContentString()})
}

func metadataDetail(obj object.Object) string {
	switch obj.Type {
	case object.TypeFile:
		if obj.File == nil {
			return ""
		}
		if obj.File.Path == nil {
			return "removed"
		}
		return fmt.Sprintf("path=%s type=%s chars=%d", *obj.File.Path, obj.File.FileType, obj.File.CharCount)
	case object.TypeToolcall:
		if obj.Toolcall == nil {
			return ""
		}
		return fmt.Sprintf("tool=%s status=%s", obj.Toolcall.Tool, obj.Toolcall.Status)
	case object.TypeChat:
		if obj.Chat == nil {
			return ""
		}
		return fmt.Sprintf("turns=%d", obj.Chat.TurnCount)
	case object.TypeSession:
		if obj.Session == nil {
			return ""
		}
		return fmt.Sprintf("harness=%s session=%s", obj.Session.Harness, obj.Session.SessionID)
	case object.TypeSystemPrompt:
		return "system prompt"
	}
	return ""
}

// Resolve maps an id or nickname to a known object id.
func (m *Manager) Resolve(idOrNickname string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.resolveLocked(idOrNickname)
}

func (m *Manager) resolveLocked(idOrNickname string) (string, bool) {
	if _, ok := m.index[idOrNickname]; ok {
		return idOrNickname, true
	}
	if id, ok := m.nicknames[idOrNickname]; ok {
		return id, true
	}
	return "", false
}

// Activate loads the object's current content into the active pool and
// marks it active. Manual activation exempts the object from the
// automatic eviction sweep until it is explicitly deactivated.
func (m *Manager) Activate(ctx context.Context, idOrNickname string) (ActivateResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.resolveLocked(idOrNickname)
	if !ok {
		return ActivateResult{}, fmt.Errorf("%w: %q", ErrNotFound, idOrNickname)
	}

	version, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ActivateResult{}, fmt.Errorf("%w: %q", ErrNotFound, idOrNickname)
		}
		return ActivateResult{}, err
	}

	m.activateLocked(id, version.Object.ContentString())
	m.manual[id] = true

	if version.Object.Removed() {
		return ActivateResult{ID: id, NullContent: true}, nil
	}
	return ActivateResult{ID: id}, nil
}

// AutoActivate puts content into the active pool without the manual
// exemption; the eviction sweep may later reclaim it.
func (m *Manager) AutoActivate(id, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activateLocked(id, content)
}

func (m *Manager) activateLocked(id, content string) {
	if _, already := m.active[id]; !already {
		m.activeOrder = append(m.activeOrder, id)
	}
	m.active[id] = content
	delete(m.inactive, id)
}

// Deactivate removes the object from the active pool. The metadata
// entry is retained. Locked objects are denied unconditionally.
func (m *Manager) Deactivate(idOrNickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.resolveLocked(idOrNickname)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, idOrNickname)
	}
	if m.entries[m.index[id]].Locked {
		return fmt.Errorf("%w: %q", ErrLockedObject, idOrNickname)
	}

	m.deactivateLocked(id)
	m.manual[id] = false
	return nil
}

func (m *Manager) deactivateLocked(id string) {
	if _, active := m.active[id]; !active {
		m.inactive[id] = true
		return
	}
	delete(m.active, id)
	m.activeOrder = removeString(m.activeOrder, id)
	m.inactive[id] = true
}

// Pin exempts the object from automatic eviction regardless of recency.
func (m *Manager) Pin(idOrNickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.resolveLocked(idOrNickname)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, idOrNickname)
	}
	m.pinned[id] = true
	return nil
}

func (m *Manager) Unpin(idOrNickname string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.resolveLocked(idOrNickname)
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, idOrNickname)
	}
	delete(m.pinned, id)
	return nil
}

// BeginTurn advances the turn counter; called when a user message
// opens a new turn.
func (m *Manager) BeginTurn() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.currentTurn++
	return m.currentTurn
}

func (m *Manager) CurrentTurn() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentTurn
}

// RecordToolcall logs the turn a toolcall first arrived in. Later
// versions of the same toolcall (status updates) do not re-log.
func (m *Manager) RecordToolcall(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.logged[id] {
		return
	}
	m.logged[id] = true
	turn := m.currentTurn
	if turn < 0 {
		turn = 0
	}
	m.toolcallLog = append(m.toolcallLog, object.ToolcallLogItem{ID: id, Turn: turn})
}

// SetChatTurns replaces the chat history pool with the given turn
// sequence, used after the ingestion engine commits a new chat version.
func (m *Manager) SetChatTurns(chatID string, turns []object.Turn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chatID = chatID
	m.chatTurns = object.CloneTurns(turns)
}

// Sweep recomputes the recency policy and deactivates every non-pinned,
// non-manually-activated toolcall that falls outside it. Pure over
// (toolcall log, current turn); invoked at ingestion and assembly time.
func (m *Manager) Sweep() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := m.policy.Survivors(m.toolcallLog, m.currentTurn)

	var evicted []string
	for _, item := range m.toolcallLog {
		id := item.ID
		if _, active := m.active[id]; !active {
			continue
		}
		if m.pinned[id] || m.manual[id] || keep[id] {
			continue
		}
		m.deactivateLocked(id)
		evicted = append(evicted, id)
	}
	if len(evicted) > 0 {
		m.logger.Debug("toolcall eviction sweep", "evicted", len(evicted), "turn", m.currentTurn)
	}
	return evicted
}

func removeString(values []string, target string) []string {
	for i, v := range values {
		if v == target {
			return append(values[:i], values[i+1:]...)
		}
	}
	return values
}
