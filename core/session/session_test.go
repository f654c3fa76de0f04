package session_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/weft/core/assemble"
	"github.com/adalundhe/weft/core/ingest"
	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/session"
	"github.com/adalundhe/weft/core/store"
	"github.com/adalundhe/weft/core/tools"
	"github.com/adalundhe/weft/core/watch"
)

func newSessionConfig(t *testing.T, backend store.Store, root string) session.Config {
	t.Helper()
	return session.Config{
		Store:        backend,
		Harness:      "test",
		SessionID:    "s1",
		SystemPrompt: "You are a coding agent.",
		FS:           tools.NewLocalFS(root),
	}
}

func TestSession_EndToEndReadFlow(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "foo.txt"), []byte("hello world"), 0644))

	sess, err := session.Open(ctx, newSessionConfig(t, backend, root))
	require.NoError(t, err)

	// User asks, assistant issues the tool call, the read tool runs,
	// and the tool result lands in the stream.
	msgs := []ingest.Message{
		ingest.UserMessage("read foo.txt"),
		ingest.AssistantMessage("reading", object.ToolCallRef{
			ID: "call_1", Tool: "read", Args: map[string]any{"path": "foo.txt"},
		}),
	}
	_, err = sess.Ingest(ctx, msgs)
	require.NoError(t, err)

	confirmation, err := sess.Tools().Read(ctx, "foo.txt")
	require.NoError(t, err)
	assert.NotContains(t, confirmation, "hello world")

	msgs = append(msgs, ingest.ToolResultMessage(ingest.ToolResult{
		CallID: "call_1", Tool: "read", Status: "ok",
		Args:     map[string]any{"path": "foo.txt"},
		Content:  "read foo.txt: ok",
		FileRefs: []string{tools.FileID("foo.txt")},
	}))
	output, err := sess.Ingest(ctx, msgs)
	require.NoError(t, err)

	// File object carries the content hash of the literal content.
	fileVersion, err := backend.Get(ctx, tools.FileID("foo.txt"))
	require.NoError(t, err)
	assert.Equal(t, object.ComputeContentHash(object.StringPtr("hello world")),
		fileVersion.Object.ContentHash)

	text := output.String()

	// Section order: system prompt, metadata (mentions foo.txt), chat
	// with the tool result as a reference, then the active content.
	promptIdx := strings.Index(text, "You are a coding agent.")
	metaIdx := strings.Index(text, "path=foo.txt")
	chatIdx := strings.Index(text, "[toolcall call_1 tool=read status=ok]")
	activeIdx := strings.Index(text, "hello world")

	require.GreaterOrEqual(t, promptIdx, 0)
	require.Greater(t, metaIdx, promptIdx)
	require.Greater(t, chatIdx, metaIdx)
	require.Greater(t, activeIdx, chatIdx)

	var activeIDs []string
	for _, block := range output.Blocks {
		if block.Kind == assemble.BlockActive {
			activeIDs = append(activeIDs, block.ID)
		}
	}
	assert.Contains(t, activeIDs, tools.FileID("foo.txt"))
}

func TestSession_ResumeReconstructsPools(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "foo.txt"), []byte("hello world"), 0644))

	cfg := newSessionConfig(t, backend, root)

	sess, err := session.Open(ctx, cfg)
	require.NoError(t, err)

	msgs := []ingest.Message{
		ingest.UserMessage("read foo.txt"),
		ingest.AssistantMessage("on it"),
	}
	_, err = sess.Ingest(ctx, msgs)
	require.NoError(t, err)
	_, err = sess.Tools().Read(ctx, "foo.txt")
	require.NoError(t, err)
	require.NoError(t, sess.Tools().Pin(ctx, tools.FileID("foo.txt")))

	before := sess.Assemble(ctx).String()

	// A brand-new context over the same store resumes seamlessly.
	resumed, err := session.Open(ctx, cfg)
	require.NoError(t, err)

	after := resumed.Assemble(ctx).String()
	assert.Equal(t, before, after, "resumed session must render the same context")
	assert.True(t, resumed.Pools().IsPinned(tools.FileID("foo.txt")))

	// The cursor survived too: re-ingesting the same prefix is a no-op.
	output, err := resumed.Ingest(ctx, msgs)
	require.NoError(t, err)
	assert.Equal(t, after, output.String())
}

func TestSession_WatcherEventsFunnelThroughQueue(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	root := t.TempDir()
	path := filepath.Join(root, "watched.txt")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0644))

	sess, err := session.Open(ctx, newSessionConfig(t, backend, root))
	require.NoError(t, err)

	events := make(chan watch.FileEvent, 4)
	sess.AttachWatcher(events)

	// Create, modify, delete: each drained at the next assembly step,
	// in arrival order.
	events <- watch.FileEvent{Path: "watched.txt", Op: watch.OpCreate}
	sess.Assemble(ctx)

	require.NoError(t, os.WriteFile(path, []byte("v2"), 0644))
	events <- watch.FileEvent{Path: "watched.txt", Op: watch.OpModify}
	events <- watch.FileEvent{Path: "watched.txt", Op: watch.OpDelete}
	sess.Assemble(ctx)

	history, err := backend.History(ctx, tools.FileID("watched.txt"))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "v1", history[0].Object.ContentString())
	assert.Equal(t, "v2", history[1].Object.ContentString())
	assert.True(t, history[2].Object.Removed())
	assert.Nil(t, history[2].Object.File.Path)
}

func TestSession_SequenceReplacementKeepsState(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()

	sess, err := session.Open(ctx, newSessionConfig(t, backend, t.TempDir()))
	require.NoError(t, err)

	_, err = sess.Ingest(ctx, []ingest.Message{
		ingest.UserMessage("hello"),
		ingest.AssistantMessage("hi"),
	})
	require.NoError(t, err)
	before := sess.Assemble(ctx).String()

	// The harness compacts its transcript; the session absorbs it.
	output, err := sess.Ingest(ctx, []ingest.Message{
		ingest.UserMessage("compacted"),
	})
	require.NoError(t, err)
	assert.Equal(t, before, output.String(), "replacement must not re-emit or drop state")
}
