package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/pool"
	"github.com/adalundhe/weft/core/store"
)

// EngineConfig configures an ingestion engine for one session.
type EngineConfig struct {
	Store      store.Store
	Pools      *pool.Manager
	ChatID     string
	SessionRef string
	Logger     *slog.Logger
}

// Engine translates harness messages into object versions and pool
// updates. The cursor advances only after a message's translation has
// fully committed to the store; a failure leaves the cursor at the
// failed message so the same message is retried on the next call, and
// content-addressed Put makes that retry idempotent.
type Engine struct {
	store      store.Store
	pools      *pool.Manager
	chatID     string
	sessionRef string
	logger     *slog.Logger

	cursor        Cursor
	invalidations int
}

func NewEngine(cfg EngineConfig) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:      cfg.Store,
		pools:      cfg.Pools,
		chatID:     cfg.ChatID,
		sessionRef: cfg.SessionRef,
		logger:     logger,
	}
}

// Cursor returns the current cursor, for session persistence.
func (e *Engine) Cursor() Cursor {
	return e.cursor
}

// RestoreCursor reinstates a persisted cursor on resume.
func (e *Engine) RestoreCursor(c Cursor) {
	e.cursor = c
}

// Invalidations counts detected sequence replacements, surfaced for
// observability only; invalidation is handled internally by reset.
func (e *Engine) Invalidations() int {
	return e.invalidations
}

// Ingest consumes the message sequence from the cursor position to the
// end. A sequence that is not a simple append of what was previously
// observed resets the cursor to the new end without re-emitting any
// objects and leaves persisted state untouched. Processing is
// abortable between messages, never mid-message.
func (e *Engine) Ingest(ctx context.Context, msgs []Message) error {
	if !e.cursor.Matches(msgs) {
		e.invalidations++
		e.logger.Warn("message sequence replaced, resetting cursor",
			"previous_position", e.cursor.Position,
			"new_length", len(msgs),
		)
		e.cursor = Cursor{Position: len(msgs), Fingerprint: ChainFingerprint(msgs)}
		e.pools.Sweep()
		return nil
	}

	for i := e.cursor.Position; i < len(msgs); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.apply(ctx, msgs[i]); err != nil {
			return fmt.Errorf("ingest message %d: %w", i, err)
		}
		e.cursor = e.cursor.Extend(msgs[i])
	}

	e.pools.Sweep()
	return nil
}

func (e *Engine) apply(ctx context.Context, msg Message) error {
	switch msg.Kind {
	case KindUser:
		return e.applyUser(ctx, msg)
	case KindAssistant:
		return e.applyAssistant(ctx, msg)
	case KindToolResult:
		return e.applyToolResult(ctx, msg)
	default:
		return fmt.Errorf("unknown message kind %d", msg.Kind)
	}
}

func (e *Engine) applyUser(ctx context.Context, msg Message) error {
	turn := object.Turn{Role: object.RoleUser, Text: msg.Text}
	if err := e.appendChatTurn(ctx, turn, ""); err != nil {
		return err
	}
	e.pools.BeginTurn()
	return nil
}

func (e *Engine) applyAssistant(ctx context.Context, msg Message) error {
	// Embedded tool-call descriptors keep their provider-native
	// identifiers; no secondary id is minted.
	turn := object.Turn{
		Role:      object.RoleAssistant,
		Text:      msg.Text,
		ToolCalls: msg.ToolCalls,
	}
	return e.appendChatTurn(ctx, turn, "")
}

func (e *Engine) applyToolResult(ctx context.Context, msg Message) error {
	result := msg.Result
	if result == nil {
		return fmt.Errorf("tool result message without payload")
	}

	toolcall := object.Object{
		ID:         result.CallID,
		Type:       object.TypeToolcall,
		Content:    object.StringPtr(result.Content),
		Provenance: "tool_result",
		Toolcall: &object.ToolcallFields{
			Tool:     result.Tool,
			Args:     result.Args,
			Status:   result.Status,
			ChatRef:  e.chatID,
			FileRefs: result.FileRefs,
		},
	}
	version, err := e.store.Put(ctx, toolcall)
	if err != nil {
		return err
	}

	turn := object.Turn{
		Role: object.RoleTool,
		ToolResult: &object.ToolResultRef{
			ID:     result.CallID,
			Tool:   result.Tool,
			Status: result.Status,
		},
	}
	if err := e.appendChatTurn(ctx, turn, result.CallID); err != nil {
		return err
	}

	e.pools.Record(version.Object)
	e.pools.RecordToolcall(result.CallID)
	e.pools.AutoActivate(result.CallID, result.Content)
	return nil
}

// appendChatTurn commits a new chat version with the turn appended,
// then mirrors it into the chat history pool. The pool is only touched
// after the store acknowledges the write.
func (e *Engine) appendChatTurn(ctx context.Context, turn object.Turn, toolcallRef string) error {
	turns := append(e.pools.ChatTurns(), turn)

	chat := object.Object{
		ID:     e.chatID,
		Type:   object.TypeChat,
		Locked: true,
		Chat: &object.ChatFields{
			Turns:      turns,
			SessionRef: e.sessionRef,
			TurnCount:  len(turns),
		},
	}
	chat.Chat.ToolcallRefs = e.chatToolcallRefs(ctx, toolcallRef)

	version, err := e.store.Put(ctx, chat)
	if err != nil {
		return err
	}
	e.pools.Record(version.Object)
	return nil
}

func (e *Engine) chatToolcallRefs(ctx context.Context, newRef string) []string {
	refs := e.currentToolcallRefs(ctx)
	if newRef == "" {
		return refs
	}
	for _, ref := range refs {
		if ref == newRef {
			return refs
		}
	}
	return append(refs, newRef)
}

func (e *Engine) currentToolcallRefs(ctx context.Context) []string {
	version, err := e.store.Get(ctx, e.chatID)
	if err != nil || version.Object.Chat == nil {
		return nil
	}
	return version.Object.Chat.ToolcallRefs
}
