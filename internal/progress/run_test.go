package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/toolcall"
)

type captureSink struct {
	mu        sync.Mutex
	snapshots []Snapshot
}

func (s *captureSink) Publish(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snapshot)
}

func (s *captureSink) all() []Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Snapshot(nil), s.snapshots...)
}

func newTestRun(sink Sink) *Run {
	return NewRun(RunParams{
		SessionID:      "agent-sess-1",
		UISessionID:    "ui-1",
		ConversationID: "conv-1",
		AgentName:      "claude",
		Tracker:        toolcall.NewTracker(logging.Nop()),
		Sink:           sink,
		Logger:         logging.Nop(),
	})
}

func TestStreamingBufferMonotonicGrowth(t *testing.T) {
	sink := &captureSink{}
	run := newTestRun(sink)

	for _, delta := range []string{"a", "b", "c"} {
		run.OnSessionUpdate(acp.SessionUpdate{
			SessionID: "agent-sess-1",
			Content:   []acp.ContentBlock{acp.TextBlock(delta)},
		})
	}

	snapshots := sink.all()
	require.Len(t, snapshots, 3)
	require.Equal(t, "a", snapshots[0].StreamingContent.Text)
	require.Equal(t, "ab", snapshots[1].StreamingContent.Text)
	require.Equal(t, "abc", snapshots[2].StreamingContent.Text)

	for _, snapshot := range snapshots {
		require.True(t, snapshot.StreamingContent.IsStreaming)
		lastStep := snapshot.Steps[len(snapshot.Steps)-1]
		require.Equal(t, StepText, lastStep.Type)
		require.Equal(t, snapshot.StreamingContent.Text, lastStep.Content,
			"text step carries the full buffer")
	}
}

func TestToolUseBlocksBecomePendingSteps(t *testing.T) {
	sink := &captureSink{}
	run := newTestRun(sink)

	run.OnSessionUpdate(acp.SessionUpdate{
		SessionID: "agent-sess-1",
		Content: []acp.ContentBlock{
			acp.ToolUseBlock("read_file", map[string]any{"path": "main.go"}),
		},
	})

	pending := run.PendingToolCalls()
	require.Len(t, pending, 1)
	require.Equal(t, toolcall.StatusPending, pending[0].Status)

	snapshots := sink.all()
	require.Len(t, snapshots, 1)
	require.Equal(t, StepToolCall, snapshots[0].Steps[0].Type)
}

func TestStatsOnlyUpdateEmitsSyntheticStep(t *testing.T) {
	sink := &captureSink{}
	run := newTestRun(sink)

	run.OnSessionUpdate(acp.SessionUpdate{
		SessionID: "agent-sess-1",
		ToolResponseStats: &acp.ToolResponseStats{
			DurationMS:      1200,
			OutputTokens:    321,
			CacheReadTokens: 100,
			SubAgentID:      "sub-1",
		},
	})

	snapshots := sink.all()
	require.Len(t, snapshots, 1)
	require.Len(t, snapshots[0].Steps, 1)
	step := snapshots[0].Steps[0]
	require.Equal(t, StepToolCompleted, step.Type)
	require.NotNil(t, step.Stats)
	require.Equal(t, int64(1200), step.Stats.DurationMS)
	require.Equal(t, "sub-1", step.Stats.SubAgentID)
}

func TestToolCallUpdateCarriesFullTrackedSet(t *testing.T) {
	sink := &captureSink{}
	run := newTestRun(sink)

	run.OnToolCallUpdate(acp.ToolCallUpdate{
		SessionID: "agent-sess-1",
		ToolCall:  acp.ToolCall{ID: "tc-1", Title: "Read", Status: "pending"},
	})
	run.OnToolCallUpdate(acp.ToolCallUpdate{
		SessionID: "agent-sess-1",
		ToolCall:  acp.ToolCall{ID: "tc-2", Title: "Edit", Status: "running"},
	})

	snapshots := sink.all()
	require.Len(t, snapshots, 2)
	last := snapshots[1].Steps[len(snapshots[1].Steps)-1]
	require.Len(t, last.ToolCalls, 2, "snapshot re-renders the whole active set")
}

func TestCompleteEmitsFinalSnapshot(t *testing.T) {
	sink := &captureSink{}
	run := newTestRun(sink)

	run.OnSessionUpdate(acp.SessionUpdate{
		SessionID: "agent-sess-1",
		Content:   []acp.ContentBlock{acp.TextBlock("partial")},
	})
	run.Complete("final answer")

	snapshots := sink.all()
	final := snapshots[len(snapshots)-1]
	require.True(t, final.IsComplete)
	require.Equal(t, "final answer", final.FinalContent)
	require.False(t, final.StreamingContent.IsStreaming)
	require.Equal(t, "partial", final.StreamingContent.Text)
	require.NotNil(t, final.SessionInfo)
	require.Equal(t, "claude", final.SessionInfo.AgentName)
}

func TestSinkPanicIsContained(t *testing.T) {
	run := NewRun(RunParams{
		ConversationID: "conv-1",
		Sink:           panicSink{},
		Logger:         logging.Nop(),
	})
	require.NotPanics(t, func() {
		run.OnSessionUpdate(acp.SessionUpdate{Content: []acp.ContentBlock{acp.TextBlock("x")}})
	})
	require.Equal(t, "x", run.Text())
}

type panicSink struct{}

func (panicSink) Publish(Snapshot) { panic("sink exploded") }
