package history

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aj47/acp-remote/internal/logging"
)

func writeAugmentSession(t *testing.T, root, id, request, response, workspace, modified string) {
	t.Helper()
	doc := `{
		"sessionId": "` + id + `",
		"created": "2026-01-02T09:00:00Z",
		"modified": "` + modified + `",
		"chatHistory": [
			{
				"exchange": {
					"request_message": "` + request + `",
					"response_text": "` + response + `",
					"request_nodes": [
						{"type": "ide_state", "ide_state": {"workspace_folders": [{"path": "` + workspace + `"}]}}
					]
				},
				"finishedAt": "2026-01-02T09:30:00Z"
			}
		]
	}`
	require.NoError(t, os.WriteFile(filepath.Join(root, id+".json"), []byte(doc), 0644))
}

func TestAugmentAvailable(t *testing.T) {
	provider := NewAugmentProvider(AugmentParams{Root: filepath.Join(t.TempDir(), "missing"), Logger: logging.Nop()})
	require.False(t, provider.Available())

	root := t.TempDir()
	provider = NewAugmentProvider(AugmentParams{Root: root, Logger: logging.Nop()})
	require.True(t, provider.Available())
}

func TestAugmentListMetadata(t *testing.T) {
	root := t.TempDir()
	writeAugmentSession(t, root, "older", "first question", "answer", "/work/api", "2026-01-02T10:00:00Z")
	writeAugmentSession(t, root, "newer", "second question", "answer", "/work/web", "2026-01-03T10:00:00Z")
	// A malformed file is skipped, never fatal.
	require.NoError(t, os.WriteFile(filepath.Join(root, "broken.json"), []byte("{not json"), 0644))

	provider := NewAugmentProvider(AugmentParams{Root: root, Logger: logging.Nop()})
	items, err := provider.ListMetadata(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)

	require.Equal(t, "newer", items[0].ID)
	require.Equal(t, "older", items[1].ID)
	require.Equal(t, SourceAugment, items[0].Source)
	require.Equal(t, "second question", items[0].Title)
	require.Equal(t, "second question", items[0].Preview)
	require.Equal(t, "/work/web", items[0].WorkspacePath)
	require.Equal(t, 2, items[0].MessageCount)
	require.Equal(t, time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC), items[0].UpdatedAt)
}

func TestAugmentListMetadataLimit(t *testing.T) {
	root := t.TempDir()
	writeAugmentSession(t, root, "a", "q", "a", "/w", "2026-01-01T10:00:00Z")
	writeAugmentSession(t, root, "b", "q", "a", "/w", "2026-01-02T10:00:00Z")
	writeAugmentSession(t, root, "c", "q", "a", "/w", "2026-01-03T10:00:00Z")

	provider := NewAugmentProvider(AugmentParams{Root: root, Logger: logging.Nop()})
	items, err := provider.ListMetadata(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, "c", items[0].ID)
	require.Equal(t, "b", items[1].ID)
}

func TestAugmentListingCached(t *testing.T) {
	root := t.TempDir()
	writeAugmentSession(t, root, "a", "q", "a", "/w", "2026-01-01T10:00:00Z")

	provider := NewAugmentProvider(AugmentParams{Root: root, Logger: logging.Nop()})
	current := time.Now()
	provider.cache.now = func() time.Time { return current }

	items, err := provider.ListMetadata(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// A new session within the TTL window is not picked up.
	writeAugmentSession(t, root, "b", "q", "a", "/w", "2026-01-02T10:00:00Z")
	items, err = provider.ListMetadata(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 1)

	// After expiry the scan repeats.
	current = current.Add(listingTTL + time.Second)
	items, err = provider.ListMetadata(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
}

func TestAugmentLoadSession(t *testing.T) {
	root := t.TempDir()
	writeAugmentSession(t, root, "s1", "fix the build", "done", "/work/api", "2026-01-02T10:00:00Z")

	provider := NewAugmentProvider(AugmentParams{Root: root, Logger: logging.Nop()})
	session, err := provider.LoadSession(context.Background(), "s1")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.Equal(t, "s1", session.ID)
	require.Equal(t, "/work/api", session.WorkspacePath)
	require.Len(t, session.Messages, 2)
	require.Equal(t, "user", session.Messages[0].Role)
	require.Equal(t, "fix the build", session.Messages[0].Content)
	require.Equal(t, "assistant", session.Messages[1].Role)
	require.Equal(t, "done", session.Messages[1].Content)
}

func TestAugmentLoadSessionMissing(t *testing.T) {
	provider := NewAugmentProvider(AugmentParams{Root: t.TempDir(), Logger: logging.Nop()})
	session, err := provider.LoadSession(context.Background(), "nope")
	require.NoError(t, err)
	require.Nil(t, session)
}

type fakeAdopter struct {
	agentName string
	sessionID string
	workspace string
	err       error
}

func (a *fakeAdopter) AdoptExternalSession(_ context.Context, agentName, sessionID, workspacePath string) (string, error) {
	a.agentName = agentName
	a.sessionID = sessionID
	a.workspace = workspacePath
	if a.err != nil {
		return "", a.err
	}
	return "conv-1", nil
}

func TestAugmentContinueSession(t *testing.T) {
	root := t.TempDir()
	writeAugmentSession(t, root, "s1", "q", "a", "/work/api", "2026-01-02T10:00:00Z")

	adopter := &fakeAdopter{}
	provider := NewAugmentProvider(AugmentParams{Root: root, AgentName: "auggie", Adopter: adopter, Logger: logging.Nop()})

	result := provider.ContinueSession(context.Background(), ContinueOptions{SessionID: "s1"})
	require.True(t, result.Success)
	require.Equal(t, "s1", result.SessionID)
	require.Equal(t, "conv-1", result.ConversationID)
	require.Equal(t, "auggie", adopter.agentName)
	require.Equal(t, "/work/api", adopter.workspace, "workspace recovered from the archive when not supplied")
}

func TestAugmentContinueSessionFailure(t *testing.T) {
	adopter := &fakeAdopter{err: errors.New("agent unavailable")}
	provider := NewAugmentProvider(AugmentParams{Root: t.TempDir(), AgentName: "auggie", Adopter: adopter, Logger: logging.Nop()})

	result := provider.ContinueSession(context.Background(), ContinueOptions{SessionID: "s1"})
	require.False(t, result.Success)
	require.Contains(t, result.Error, "agent unavailable")
}
