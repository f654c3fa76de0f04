// Package assemble renders current pool state into the ordered context
// the model consumes. Rendering is a pure read: given unchanged pool
// state, two consecutive assemblies produce byte-identical output, so
// unchanged prefixes stay stable for provider-side prefix caching.
package assemble

import (
	"fmt"
	"strings"

	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/pool"
)

// View is the read-only pool surface the assembler consumes.
type View interface {
	Prompts() []pool.ContentBlock
	Entries() []pool.MetadataEntry
	ChatTurns() []object.Turn
	ActiveBlocks() []pool.ContentBlock
	IsActive(id string) bool
	IsPinned(id string) bool
}

// BlockKind labels the four output sections, in render order.
type BlockKind string

const (
	BlockSystemPrompt BlockKind = "system"
	BlockMetadata     BlockKind = "metadata"
	BlockChat         BlockKind = "chat"
	BlockActive       BlockKind = "active"
)

// Block is one element of the assembled output sequence.
type Block struct {
	Kind BlockKind
	ID   string
	Body string
}

// Output is the full assembled context.
type Output struct {
	Blocks []Block
}

// String concatenates the blocks into the final context text.
func (o Output) String() string {
	var b strings.Builder
	for _, block := range o.Blocks {
		b.WriteString(block.Body)
	}
	return b.String()
}

// Render assembles pool state in fixed order: system prompts, metadata
// listing, chat history (tool results as references, never inline
// output), then active content blocks in activation order.
func Render(view View) Output {
	var out Output

	for _, prompt := range view.Prompts() {
		out.Blocks = append(out.Blocks, Block{
			Kind: BlockSystemPrompt,
			ID:   prompt.ID,
			Body: fmt.Sprintf("<system %s>\n%s\n</system>\n", prompt.ID, prompt.Content),
		})
	}

	if entries := view.Entries(); len(entries) > 0 {
		out.Blocks = append(out.Blocks, Block{
			Kind: BlockMetadata,
			Body: renderMetadata(view, entries),
		})
	}

	if turns := view.ChatTurns(); len(turns) > 0 {
		out.Blocks = append(out.Blocks, Block{
			Kind: BlockChat,
			Body: renderChat(turns),
		})
	}

	for _, block := range view.ActiveBlocks() {
		out.Blocks = append(out.Blocks, Block{
			Kind: BlockActive,
			ID:   block.ID,
			Body: fmt.Sprintf("--- %s ---\n%s\n", block.ID, block.Content),
		})
	}

	return out
}

func renderMetadata(view View, entries []pool.MetadataEntry) string {
	var b strings.Builder
	b.WriteString("<objects>\n")
	for _, entry := range entries {
		b.WriteString("- [")
		b.WriteString(string(entry.Type))
		b.WriteString("] ")
		b.WriteString(entry.ID)
		if entry.Nickname != "" {
			fmt.Fprintf(&b, " (%s)", entry.Nickname)
		}
		if entry.Detail != "" {
			b.WriteString(" ")
			b.WriteString(entry.Detail)
		}
		for _, flag := range entryFlags(view, entry) {
			b.WriteString(" [")
			b.WriteString(flag)
			b.WriteString("]")
		}
		b.WriteString("\n")
	}
	b.WriteString("</objects>\n")
	return b.String()
}

func entryFlags(view View, entry pool.MetadataEntry) []string {
	var flags []string
	if view.IsActive(entry.ID) {
		flags = append(flags, "active")
	}
	if view.IsPinned(entry.ID) {
		flags = append(flags, "pinned")
	}
	if entry.Locked {
		flags = append(flags, "locked")
	}
	if entry.Removed {
		flags = append(flags, "removed")
	}
	return flags
}

func renderChat(turns []object.Turn) string {
	var b strings.Builder
	b.WriteString("<conversation>\n")
	for _, turn := range turns {
		b.WriteString(renderTurn(turn))
	}
	b.WriteString("</conversation>\n")
	return b.String()
}

func renderTurn(turn object.Turn) string {
	var b strings.Builder
	switch {
	case turn.ToolResult != nil:
		// Tool output never renders inline: a short reference points
		// the model at the metadata pool and the active section.
		ref := turn.ToolResult
		fmt.Fprintf(&b, "tool: [toolcall %s tool=%s status=%s]\n", ref.ID, ref.Tool, ref.Status)
	default:
		fmt.Fprintf(&b, "%s: %s\n", turn.Role, turn.Text)
		for _, call := range turn.ToolCalls {
			fmt.Fprintf(&b, "  -> tool_call %s (%s)\n", call.Tool, call.ID)
		}
	}
	return b.String()
}
