package conversation

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/toolcall"
)

func TestAppendCreatesAndTitles(t *testing.T) {
	store := NewStore(t.TempDir(), logging.Nop())

	require.NoError(t, store.Append("c1", Message{Role: "user", Content: "fix the session\nstore bug"}))
	require.NoError(t, store.Append("c1", Message{
		Role:    "assistant",
		Content: "Done.",
		PendingToolCalls: []toolcall.State{
			{ToolCallID: "tc-1", Title: "Edit store.go", Status: toolcall.StatusCompleted},
		},
	}))

	conv, err := store.Get("c1")
	require.NoError(t, err)
	require.Equal(t, "fix the session store bug", conv.Title)
	require.Len(t, conv.Messages, 2)
	require.Len(t, conv.Messages[1].PendingToolCalls, 1)
	require.False(t, conv.Messages[0].Timestamp.IsZero())
}

func TestListMetadataSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir, logging.Nop())

	require.NoError(t, store.Append("good", Message{Role: "user", Content: "hello"}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{broken"), 0644))

	metas, err := store.ListMetadata()
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "good", metas[0].ID)
	require.Equal(t, 1, metas[0].MessageCount)
	require.Equal(t, "hello", metas[0].Preview)
}

func TestListMetadataMissingDir(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "nope"), logging.Nop())
	metas, err := store.ListMetadata()
	require.NoError(t, err)
	require.Empty(t, metas)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := NewStore(t.TempDir(), logging.Nop())
	require.NoError(t, store.Append("c1", Message{Role: "user", Content: "hi"}))
	require.NoError(t, store.Delete("c1"))
	require.NoError(t, store.Delete("c1"))

	_, err := store.Get("c1")
	require.Error(t, err)
}
