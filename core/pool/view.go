package pool

import (
	"sort"

	"github.com/adalundhe/weft/core/object"
)

// Prompts returns the system prompt blocks in insertion order.
func (m *Manager) Prompts() []ContentBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]ContentBlock(nil), m.prompts...)
}

// Entries returns the metadata pool in insertion order.
func (m *Manager) Entries() []MetadataEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]MetadataEntry(nil), m.entries...)
}

// ChatTurns returns the chat history pool.
func (m *Manager) ChatTurns() []object.Turn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return object.CloneTurns(m.chatTurns)
}

// ActiveBlocks returns the active content pool in activation order.
// System prompts render in their own section and are excluded here.
func (m *Manager) ActiveBlocks() []ContentBlock {
	m.mu.RLock()
	defer m.mu.RUnlock()

	blocks := make([]ContentBlock, 0, len(m.activeOrder))
	for _, id := range m.activeOrder {
		if m.isPromptLocked(id) {
			continue
		}
		blocks = append(blocks, ContentBlock{ID: id, Content: m.active[id]})
	}
	return blocks
}

// IsActive reports whether the id is in the active pool.
func (m *Manager) IsActive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isActiveLocked(id)
}

func (m *Manager) isActiveLocked(id string) bool {
	_, ok := m.active[id]
	return ok
}

// IsPinned reports whether the id carries the eviction exemption.
func (m *Manager) IsPinned(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.pinned[id]
}

func (m *Manager) isPromptLocked(id string) bool {
	for _, prompt := range m.prompts {
		if prompt.ID == id {
			return true
		}
	}
	return false
}

// ChatID returns the id of the session's chat document.
func (m *Manager) ChatID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chatID
}

// Membership snapshots the activation state into session fields for
// persistence. Set-valued fields are sorted for a stable encoding;
// order-bearing fields keep pool order.
func (m *Manager) Membership() object.SessionFields {
	m.mu.RLock()
	defer m.mu.RUnlock()

	fields := object.SessionFields{
		ChatRef:         m.chatID,
		ActiveSet:       sortedKeys(m.active),
		InactiveSet:     sortedFlags(m.inactive),
		PinnedSet:       sortedFlags(m.pinned),
		ManualSet:       sortedTrueFlags(m.manual),
		ActivationOrder: append([]string(nil), m.activeOrder...),
		ToolcallLog:     append([]object.ToolcallLogItem(nil), m.toolcallLog...),
		CurrentTurn:     m.currentTurn,
	}
	for _, entry := range m.entries {
		fields.MetadataOrder = append(fields.MetadataOrder, entry.ID)
	}
	return fields
}

// RestoreMembership reinstates activation flags and the toolcall log
// from persisted session fields. Objects themselves are re-recorded by
// the caller from store content.
func (m *Manager) RestoreMembership(fields object.SessionFields) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.chatID = fields.ChatRef
	m.currentTurn = fields.CurrentTurn
	m.toolcallLog = append([]object.ToolcallLogItem(nil), fields.ToolcallLog...)
	for _, item := range fields.ToolcallLog {
		m.logged[item.ID] = true
	}
	for _, id := range fields.PinnedSet {
		m.pinned[id] = true
	}
	for _, id := range fields.ManualSet {
		m.manual[id] = true
	}
	for _, id := range fields.InactiveSet {
		m.inactive[id] = true
	}
}

func sortedKeys(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedFlags(values map[string]bool) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedTrueFlags(values map[string]bool) []string {
	var keys []string
	for k, v := range values {
		if v {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
