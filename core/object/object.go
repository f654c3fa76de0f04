// Package object defines the versioned object model shared by the
// store, pools, and assembler: every file, toolcall, chat, session, and
// system prompt the agent can reference is an immutable versioned
// Object addressed by a stable ID and content-derived hashes.
package object

import (
	"time"
)

// ObjectType discriminates the closed set of versioned object kinds.
type ObjectType string

const (
	TypeFile         ObjectType = "file"
	TypeToolcall     ObjectType = "toolcall"
	TypeChat         ObjectType = "chat"
	TypeSession      ObjectType = "session"
	TypeSystemPrompt ObjectType = "system_prompt"
)

// Object is one version of a tracked entity. The ID is stable across
// versions; every mutation produces a new immutable version in the
// store. Removal is a new version with nil Content (and, for files,
// nil Path) rather than a deletion.
type Object struct {
	ID               string     `json:"id"`
	Type             ObjectType `json:"type"`
	Content          *string    `json:"content"`
	ContentHash      Hash       `json:"content_hash"`
	MetadataViewHash Hash       `json:"metadata_view_hash"`
	ObjectHash       Hash       `json:"object_hash"`
	Provenance       string     `json:"provenance,omitempty"`
	Locked           bool       `json:"locked"`
	Nickname         string     `json:"nickname,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`

	File     *FileFields     `json:"file,omitempty"`
	Toolcall *ToolcallFields `json:"toolcall,omitempty"`
	Chat     *ChatFields     `json:"chat,omitempty"`
	Session  *SessionFields  `json:"session,omitempty"`
	Prompt   *PromptFields   `json:"prompt,omitempty"`
}

type FileFields struct {
	Path      *string `json:"path"`
	FileType  string  `json:"file_type,omitempty"`
	CharCount int     `json:"char_count"`
}

type ToolcallFields struct {
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Status   string         `json:"status"`
	ChatRef  string         `json:"chat_ref,omitempty"`
	FileRefs []string       `json:"file_refs,omitempty"`
}

type ChatFields struct {
	Turns        []Turn   `json:"turns"`
	SessionRef   string   `json:"session_ref,omitempty"`
	TurnCount    int      `json:"turn_count"`
	ToolcallRefs []string `json:"toolcall_refs,omitempty"`
}

// SessionFields carries the per-session pool membership and cursor
// state needed to reconstruct pools on resume. Everything here is
// derived state: the authoritative content lives in the other objects.
type SessionFields struct {
	Harness           string            `json:"harness"`
	SessionID         string            `json:"session_id"`
	ChatRef           string            `json:"chat_ref"`
	ActiveSet         []string          `json:"active_set"`
	InactiveSet       []string          `json:"inactive_set"`
	PinnedSet         []string          `json:"pinned_set"`
	ManualSet         []string          `json:"manual_set"`
	MetadataOrder     []string          `json:"metadata_order"`
	ActivationOrder   []string          `json:"activation_order"`
	ToolcallLog       []ToolcallLogItem `json:"toolcall_log"`
	CurrentTurn       int               `json:"current_turn"`
	CursorPosition    int               `json:"cursor_position"`
	CursorFingerprint Hash              `json:"cursor_fingerprint"`
}

// ToolcallLogItem records the turn a toolcall arrived in, the input to
// the recency-based eviction sweep.
type ToolcallLogItem struct {
	ID   string `json:"id"`
	Turn int    `json:"turn"`
}

type PromptFields struct {
	SessionRef string `json:"session_ref,omitempty"`
}

// Turn is one element of a Chat document's turn sequence. Turns are
// internal structure of the Chat object, never top-level objects.
type Turn struct {
	Role       string         `json:"role"`
	Text       string         `json:"text,omitempty"`
	ToolCalls  []ToolCallRef  `json:"tool_calls,omitempty"`
	ToolResult *ToolResultRef `json:"tool_result,omitempty"`
}

// ToolCallRef is a tool-call descriptor embedded in an assistant turn.
// The ID is the provider-native identifier, carried through intact.
type ToolCallRef struct {
	ID   string         `json:"id"`
	Tool string         `json:"tool"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResultRef is the lightweight reference a tool-result turn carries
// in place of inline output content.
type ToolResultRef struct {
	ID     string `json:"id"`
	Tool   string `json:"tool"`
	Status string `json:"status"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Finalize returns a copy with all three hash fields recomputed from
// the current field values. Callers finalize before persisting so that
// equal documents land on equal hashes.
func Finalize(obj Object) Object {
	obj.ContentHash = ComputeContentHash(obj.Content)
	obj.MetadataViewHash = ComputeMetadataViewHash(obj)
	obj.ObjectHash = ComputeObjectHash(obj)
	return obj
}

// Removed reports whether this version represents removal.
func (o Object) Removed() bool {
	return o.Content == nil
}

// ContentString returns the content or the empty string when null.
func (o Object) ContentString() string {
	if o.Content == nil {
		return ""
	}
	return *o.Content
}

// Clone deep-copies the object so callers can mutate the copy without
// aliasing the stored version.
func (o Object) Clone() Object {
	clone := o
	if o.Content != nil {
		content := *o.Content
		clone.Content = &content
	}
	if o.File != nil {
		f := *o.File
		if o.File.Path != nil {
			path := *o.File.Path
			f.Path = &path
		}
		clone.File = &f
	}
	if o.Toolcall != nil {
		t := *o.Toolcall
		t.Args = cloneArgs(o.Toolcall.Args)
		t.FileRefs = cloneStrings(o.Toolcall.FileRefs)
		clone.Toolcall = &t
	}
	if o.Chat != nil {
		ch := *o.Chat
		ch.Turns = CloneTurns(o.Chat.Turns)
		ch.ToolcallRefs = cloneStrings(o.Chat.ToolcallRefs)
		clone.Chat = &ch
	}
	if o.Session != nil {
		s := *o.Session
		s.ActiveSet = cloneStrings(o.Session.ActiveSet)
		s.InactiveSet = cloneStrings(o.Session.InactiveSet)
		s.PinnedSet = cloneStrings(o.Session.PinnedSet)
		s.ManualSet = cloneStrings(o.Session.ManualSet)
		s.MetadataOrder = cloneStrings(o.Session.MetadataOrder)
		s.ActivationOrder = cloneStrings(o.Session.ActivationOrder)
		s.ToolcallLog = append([]ToolcallLogItem(nil), o.Session.ToolcallLog...)
		clone.Session = &s
	}
	if o.Prompt != nil {
		p := *o.Prompt
		clone.Prompt = &p
	}
	return clone
}

// CloneTurns deep-copies a turn sequence.
func CloneTurns(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	result := make([]Turn, len(turns))
	for i, turn := range turns {
		result[i] = turn
		if turn.ToolCalls != nil {
			calls := make([]ToolCallRef, len(turn.ToolCalls))
			for j, call := range turn.ToolCalls {
				calls[j] = call
				calls[j].Args = cloneArgs(call.Args)
			}
			result[i].ToolCalls = calls
		}
		if turn.ToolResult != nil {
			ref := *turn.ToolResult
			result[i].ToolResult = &ref
		}
	}
	return result
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	result := make([]string, len(values))
	copy(result, values)
	return result
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	result := make(map[string]any, len(args))
	for k, v := range args {
		result[k] = v
	}
	return result
}

// StringPtr is a convenience for building nullable content fields.
func StringPtr(s string) *string {
	return &s
}
