package toolcall

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/logging"
)

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]Status{
		"":            StatusPending,
		"pending":     StatusPending,
		"queued":      StatusPending,
		"running":     StatusInProgress,
		"in_progress": StatusInProgress,
		"completed":   StatusCompleted,
		"success":     StatusCompleted,
		"failed":      StatusFailed,
		"cancelled":   StatusFailed,
		"weird-word":  StatusPending,
	}
	for raw, want := range cases {
		require.Equal(t, want, NormalizeStatus(raw), "raw=%q", raw)
	}
}

func TestRecordUpdateLifecycleMonotonic(t *testing.T) {
	tracker := NewTracker(logging.Nop())
	current := time.Now()
	tracker.now = func() time.Time { return current }

	first := tracker.RecordUpdate("sess-1", acp.ToolCall{
		ID: "tc-1", Title: "Reading main.go", Status: "pending",
	})
	require.Len(t, first, 1)
	require.Equal(t, StatusPending, first[0].Status)
	startTime := first[0].StartTime

	current = current.Add(time.Second)
	second := tracker.RecordUpdate("sess-1", acp.ToolCall{ID: "tc-1", Status: "running"})
	require.Equal(t, StatusInProgress, second[0].Status)
	require.Equal(t, startTime, second[0].StartTime)
	require.Equal(t, "Reading main.go", second[0].Title, "title preserved on sparse update")

	third := tracker.RecordUpdate("sess-1", acp.ToolCall{ID: "tc-1", Status: "completed"})
	require.Equal(t, StatusCompleted, third[0].Status)
	require.Equal(t, startTime, third[0].StartTime)
}

func TestRecordUpdateReturnsFullSetOrdered(t *testing.T) {
	tracker := NewTracker(logging.Nop())
	current := time.Now()
	tracker.now = func() time.Time { return current }

	tracker.RecordUpdate("sess-1", acp.ToolCall{ID: "tc-1", Title: "First"})
	current = current.Add(10 * time.Millisecond)
	snapshot := tracker.RecordUpdate("sess-1", acp.ToolCall{ID: "tc-2", Title: "Second"})

	require.Len(t, snapshot, 2)
	require.Equal(t, "tc-1", snapshot[0].ToolCallID)
	require.Equal(t, "tc-2", snapshot[1].ToolCallID)

	// Other sessions are isolated.
	require.Empty(t, tracker.Snapshot("sess-other"))
}

func TestCrossReferenceRouting(t *testing.T) {
	tracker := NewTracker(logging.Nop())
	tracker.MapAgentSessionToUISession("agent-1", "ui-1")
	tracker.MapAgentSessionToUISession("agent-2", "ui-2")

	uiSession, ok := tracker.ResolveUISession("agent-1")
	require.True(t, ok)
	require.Equal(t, "ui-1", uiSession)

	tracker.ClearMapping("agent-1")
	_, ok = tracker.ResolveUISession("agent-1")
	require.False(t, ok)

	// Remapping replaces.
	tracker.MapAgentSessionToUISession("agent-2", "ui-9")
	uiSession, _ = tracker.ResolveUISession("agent-2")
	require.Equal(t, "ui-9", uiSession)
}

func TestClearSessionDropsCallsAndMapping(t *testing.T) {
	tracker := NewTracker(logging.Nop())
	tracker.MapAgentSessionToUISession("agent-1", "ui-1")
	tracker.RecordUpdate("agent-1", acp.ToolCall{ID: "tc-1"})

	tracker.ClearSession("agent-1")

	require.Empty(t, tracker.Snapshot("agent-1"))
	_, ok := tracker.ResolveUISession("agent-1")
	require.False(t, ok)
}

func TestClearUISessionSweepsAllMappedSessions(t *testing.T) {
	tracker := NewTracker(logging.Nop())
	tracker.MapAgentSessionToUISession("agent-1", "ui-1")
	tracker.MapAgentSessionToUISession("agent-2", "ui-1")
	tracker.MapAgentSessionToUISession("agent-3", "ui-2")
	tracker.RecordUpdate("agent-1", acp.ToolCall{ID: "tc-1"})
	tracker.RecordUpdate("agent-3", acp.ToolCall{ID: "tc-3"})

	tracker.ClearUISession("ui-1")

	require.Empty(t, tracker.Snapshot("agent-1"))
	_, ok := tracker.ResolveUISession("agent-2")
	require.False(t, ok)

	// ui-2 state survives.
	require.Len(t, tracker.Snapshot("agent-3"), 1)
	_, ok = tracker.ResolveUISession("agent-3")
	require.True(t, ok)
}
