package assemble_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/weft/core/assemble"
	"github.com/adalundhe/weft/core/object"
	"github.com/adalundhe/weft/core/pool"
	"github.com/adalundhe/weft/core/store"
)

func seedPools(t *testing.T) (*pool.Manager, *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	backend := store.NewMemoryStore()
	pools := pool.NewManager(pool.ManagerConfig{Store: backend})

	prompt := object.Object{
		ID:      "prompt:s1",
		Type:    object.TypeSystemPrompt,
		Content: object.StringPtr("You are a coding agent."),
		Locked:  true,
		Prompt:  &object.PromptFields{SessionRef: "session:s1"},
	}
	version, err := backend.Put(ctx, prompt)
	require.NoError(t, err)
	pools.Record(version.Object)

	path := "foo.txt"
	file := object.Object{
		ID:       "file:foo.txt",
		Type:     object.TypeFile,
		Content:  object.StringPtr("hello world"),
		Nickname: "foo.txt",
		File:     &object.FileFields{Path: &path, FileType: "text", CharCount: 11},
	}
	version, err = backend.Put(ctx, file)
	require.NoError(t, err)
	pools.Record(version.Object)

	chat := object.Object{
		ID:     "chat:s1",
		Type:   object.TypeChat,
		Locked: true,
		Chat: &object.ChatFields{
			Turns: []object.Turn{
				{Role: object.RoleUser, Text: "read foo.txt"},
				{Role: object.RoleAssistant, Text: "reading",
					ToolCalls: []object.ToolCallRef{{ID: "call_1", Tool: "read"}}},
				{Role: object.RoleTool,
					ToolResult: &object.ToolResultRef{ID: "call_1", Tool: "read", Status: "ok"}},
			},
			TurnCount: 3,
		},
	}
	version, err = backend.Put(ctx, chat)
	require.NoError(t, err)
	pools.Record(version.Object)

	return pools, backend
}

func TestRender_SectionOrder(t *testing.T) {
	pools, _ := seedPools(t)
	_, err := pools.Activate(context.Background(), "file:foo.txt")
	require.NoError(t, err)

	out := assemble.Render(pools)
	require.NotEmpty(t, out.Blocks)

	var kinds []assemble.BlockKind
	for _, block := range out.Blocks {
		kinds = append(kinds, block.Kind)
	}
	assert.Equal(t, []assemble.BlockKind{
		assemble.BlockSystemPrompt,
		assemble.BlockMetadata,
		assemble.BlockChat,
		assemble.BlockActive,
	}, kinds)
}

func TestRender_Deterministic(t *testing.T) {
	pools, _ := seedPools(t)
	_, err := pools.Activate(context.Background(), "file:foo.txt")
	require.NoError(t, err)

	first := assemble.Render(pools).String()
	second := assemble.Render(pools).String()
	assert.Equal(t, first, second, "unchanged pool state must render byte-identically")
}

func TestRender_ToolResultsNeverInline(t *testing.T) {
	pools, backend := seedPools(t)
	ctx := context.Background()

	toolcall := object.Object{
		ID:       "call_1",
		Type:     object.TypeToolcall,
		Content:  object.StringPtr("SECRET TOOL OUTPUT"),
		Toolcall: &object.ToolcallFields{Tool: "read", Status: "ok"},
	}
	version, err := backend.Put(ctx, toolcall)
	require.NoError(t, err)
	pools.Record(version.Object)

	out := assemble.Render(pools)
	for _, block := range out.Blocks {
		if block.Kind == assemble.BlockChat {
			assert.NotContains(t, block.Body, "SECRET TOOL OUTPUT")
			assert.Contains(t, block.Body, "[toolcall call_1 tool=read status=ok]")
		}
	}
}

func TestRender_ActivationChangesOnlyTrailingSections(t *testing.T) {
	pools, _ := seedPools(t)
	ctx := context.Background()

	before := assemble.Render(pools)
	_, err := pools.Activate(ctx, "file:foo.txt")
	require.NoError(t, err)
	after := assemble.Render(pools)

	assert.Equal(t, before.Blocks[0], after.Blocks[0],
		"system prompt prefix must be unaffected by activation")

	var active []assemble.Block
	for _, block := range after.Blocks {
		if block.Kind == assemble.BlockActive {
			active = append(active, block)
		}
	}
	require.Len(t, active, 1)
	assert.Equal(t, "file:foo.txt", active[0].ID)
	assert.Contains(t, active[0].Body, "hello world")
}

func TestRender_DeactivationRemovesContentKeepsMetadata(t *testing.T) {
	pools, _ := seedPools(t)
	ctx := context.Background()

	_, err := pools.Activate(ctx, "file:foo.txt")
	require.NoError(t, err)
	require.NoError(t, pools.Deactivate("file:foo.txt"))

	out := assemble.Render(pools).String()
	assert.NotContains(t, out, "hello world")
	assert.Contains(t, out, "foo.txt", "metadata entry persists after deactivation")
}

func TestRender_ActiveBlocksInActivationOrder(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryStore()
	pools := pool.NewManager(pool.ManagerConfig{Store: backend})

	for _, name := range []string{"b.txt", "a.txt", "c.txt"} {
		path := name
		obj := object.Object{
			ID:      "file:" + name,
			Type:    object.TypeFile,
			Content: object.StringPtr("content of " + name),
			File:    &object.FileFields{Path: &path, FileType: "text", CharCount: len(name) + 11},
		}
		version, err := backend.Put(ctx, obj)
		require.NoError(t, err)
		pools.Record(version.Object)
		_, err = pools.Activate(ctx, obj.ID)
		require.NoError(t, err)
	}

	out := assemble.Render(pools)
	var ids []string
	for _, block := range out.Blocks {
		if block.Kind == assemble.BlockActive {
			ids = append(ids, block.ID)
		}
	}
	assert.Equal(t, []string{"file:b.txt", "file:a.txt", "file:c.txt"}, ids)

	again := assemble.Render(pools)
	assert.Equal(t, out.String(), again.String(), "order must be stable across calls")
}
