// Package ingest consumes the harness's incrementally growing message
// sequence and translates it into object versions and pool updates,
// tracking its position with a fingerprinted cursor so that appended
// messages are processed exactly once and replaced sequences are
// detected and absorbed without re-emitting state.
package ingest

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/adalundhe/weft/core/object"
)

// MessageKind discriminates the closed set of harness message
// variants. The harness's duck-typed stream is normalized into this
// tagged type at the boundary.
type MessageKind int

const (
	KindUser MessageKind = iota
	KindAssistant
	KindToolResult
)

func (k MessageKind) String() string {
	switch k {
	case KindUser:
		return "user"
	case KindAssistant:
		return "assistant"
	case KindToolResult:
		return "tool_result"
	default:
		return "unknown"
	}
}

// Message is one element of the harness message sequence.
type Message struct {
	Kind      MessageKind          `json:"kind"`
	Text      string               `json:"text,omitempty"`
	ToolCalls []object.ToolCallRef `json:"tool_calls,omitempty"`
	Result    *ToolResult          `json:"result,omitempty"`
}

// ToolResult carries a tool's output. CallID is the provider-native
// identifier assigned by the originating tool-call event; it is never
// re-minted downstream.
type ToolResult struct {
	CallID   string         `json:"call_id"`
	Tool     string         `json:"tool"`
	Args     map[string]any `json:"args,omitempty"`
	Status   string         `json:"status"`
	Content  string         `json:"content"`
	FileRefs []string       `json:"file_refs,omitempty"`
}

// digest canonically hashes one message. encoding/json sorts map keys,
// so equal messages always digest identically.
func (m Message) digest() object.Hash {
	data, err := json.Marshal(m)
	if err != nil {
		data = []byte("!marshal-error")
	}
	return sha256.Sum256(data)
}

// UserMessage, AssistantMessage, and ToolResultMessage are
// constructors for the three variants.
func UserMessage(text string) Message {
	return Message{Kind: KindUser, Text: text}
}

func AssistantMessage(text string, calls ...object.ToolCallRef) Message {
	return Message{Kind: KindAssistant, Text: text, ToolCalls: calls}
}

func ToolResultMessage(result ToolResult) Message {
	return Message{Kind: KindToolResult, Result: &result}
}
