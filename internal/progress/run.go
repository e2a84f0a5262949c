package progress

import (
	"sync"
	"time"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/toolcall"
)

// Step types emitted in progress snapshots.
const (
	StepText          = "text"
	StepToolCall      = "tool_call"
	StepToolCompleted = "tool_completed"
)

// Step is one consolidated progress item. Text steps carry the entire
// accumulated buffer, not the incremental delta.
type Step struct {
	Type      string                 `json:"type"`
	Content   string                 `json:"content,omitempty"`
	ToolCalls []toolcall.State       `json:"toolCalls,omitempty"`
	Stats     *acp.ToolResponseStats `json:"stats,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// StreamingContent is the live text state attached to every snapshot.
type StreamingContent struct {
	Text        string `json:"text"`
	IsStreaming bool   `json:"isStreaming"`
}

// SessionInfo identifies the agent session serving a run.
type SessionInfo struct {
	AgentName      string `json:"agentName"`
	AgentSessionID string `json:"agentSessionId"`
}

// HistoryMessage is one prior conversation entry carried along with every
// snapshot, so a UI can render the whole thread from a single payload.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Snapshot is the consolidated progress view pushed to attached UIs.
type Snapshot struct {
	SessionID           string           `json:"sessionId"`
	ConversationID      string           `json:"conversationId"`
	Steps               []Step           `json:"steps"`
	IsComplete          bool             `json:"isComplete"`
	FinalContent        string           `json:"finalContent,omitempty"`
	StreamingContent    StreamingContent `json:"streamingContent"`
	ConversationHistory []HistoryMessage `json:"conversationHistory"`
	SessionInfo         *SessionInfo     `json:"acpSessionInfo,omitempty"`
}

// Run accumulates streamed events for one orchestration run and emits
// consolidated snapshots to the hub after every upstream notification. The
// text buffer is append-only for the lifetime of the run, so no snapshot ever
// shows less text than an earlier one. Run implements acp.NotificationHandler
// and is subscribed to the agent's notification stream for the duration of
// the run.
type Run struct {
	mu sync.Mutex

	sessionID      string
	uiSessionID    string
	conversationID string
	info           *SessionInfo

	buffer           []byte
	steps            []Step
	pendingToolCalls []toolcall.State
	history          []HistoryMessage
	complete         bool

	tracker *toolcall.Tracker
	sink    Sink
	logger  logging.Logger
	now     func() time.Time
}

// Sink receives snapshots from a run. Emission is fire-and-forget: a slow or
// failing sink must not stall notification handling.
type Sink interface {
	Publish(snapshot Snapshot)
}

// RunParams configures a Run.
type RunParams struct {
	SessionID      string
	UISessionID    string
	ConversationID string
	AgentName      string
	// History is the conversation up to and including the prompt that
	// started this run.
	History []HistoryMessage
	Tracker *toolcall.Tracker
	Sink    Sink
	Logger  logging.Logger
}

// NewRun creates a run accumulator.
func NewRun(params RunParams) *Run {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ProgressRun")
	}
	var info *SessionInfo
	if params.AgentName != "" || params.SessionID != "" {
		info = &SessionInfo{AgentName: params.AgentName, AgentSessionID: params.SessionID}
	}
	return &Run{
		sessionID:      params.SessionID,
		uiSessionID:    params.UISessionID,
		conversationID: params.ConversationID,
		info:           info,
		history:        append([]HistoryMessage(nil), params.History...),
		tracker:        params.Tracker,
		sink:           params.Sink,
		logger:         logger,
		now:            time.Now,
	}
}

// OnSessionUpdate folds a session/update notification into the run state and
// emits one snapshot. Text blocks append to the buffer; tool_use blocks are
// recorded as pending tool-call steps; a stats-only update still produces a
// synthetic tool-completed step so UIs can show completion without new text.
func (r *Run) OnSessionUpdate(update acp.SessionUpdate) {
	r.mu.Lock()

	appended := false
	for _, block := range update.Content {
		switch block.Type {
		case acp.ContentTypeText:
			if block.Text == "" {
				continue
			}
			r.buffer = append(r.buffer, block.Text...)
			appended = true
		case acp.ContentTypeToolUse:
			state := toolcall.State{
				ToolCallID: block.Name,
				Title:      block.Name,
				Status:     toolcall.StatusPending,
				StartTime:  r.now().UnixMilli(),
			}
			r.pendingToolCalls = append(r.pendingToolCalls, state)
			r.steps = append(r.steps, Step{
				Type:      StepToolCall,
				ToolCalls: []toolcall.State{state},
				Timestamp: r.now(),
			})
		}
	}

	if appended {
		r.steps = append(r.steps, Step{
			Type:      StepText,
			Content:   string(r.buffer),
			Timestamp: r.now(),
		})
	}

	if !appended && len(update.Content) == 0 && update.ToolResponseStats != nil {
		r.steps = append(r.steps, Step{
			Type:      StepToolCompleted,
			Stats:     update.ToolResponseStats,
			Timestamp: r.now(),
		})
	}

	if update.IsComplete {
		r.complete = true
	}

	r.emitLocked(r.snapshotLocked())
	r.mu.Unlock()
}

// OnToolCallUpdate folds a tool-call lifecycle notification into the tracker
// and emits a snapshot carrying the full tracked set for the session.
func (r *Run) OnToolCallUpdate(update acp.ToolCallUpdate) {
	var states []toolcall.State
	if r.tracker != nil {
		states = r.tracker.RecordUpdate(update.SessionID, update.ToolCall)
	}

	r.mu.Lock()
	r.steps = append(r.steps, Step{
		Type:      StepToolCall,
		ToolCalls: states,
		Timestamp: r.now(),
	})
	r.emitLocked(r.snapshotLocked())
	r.mu.Unlock()
}

// Complete finalizes the run with the canonical response text and emits the
// terminal snapshot.
func (r *Run) Complete(finalContent string) {
	r.mu.Lock()
	r.complete = true
	if finalContent != "" {
		r.history = append(r.history, HistoryMessage{Role: "assistant", Content: finalContent})
	}
	snapshot := r.snapshotLocked()
	snapshot.FinalContent = finalContent
	r.emitLocked(snapshot)
	r.mu.Unlock()
}

// Text returns the accumulated streamed text.
func (r *Run) Text() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return string(r.buffer)
}

// PendingToolCalls returns the tool calls announced during this run, for
// attachment to the assistant history entry.
func (r *Run) PendingToolCalls() []toolcall.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]toolcall.State(nil), r.pendingToolCalls...)
}

func (r *Run) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID:      r.uiSessionID,
		ConversationID: r.conversationID,
		Steps:          append([]Step(nil), r.steps...),
		IsComplete:     r.complete,
		StreamingContent: StreamingContent{
			Text:        string(r.buffer),
			IsStreaming: !r.complete,
		},
		ConversationHistory: append([]HistoryMessage(nil), r.history...),
		SessionInfo:         r.info,
	}
}

// emitLocked publishes under r.mu so snapshots leave in the exact order the
// notifications arrived. The sink contract is non-blocking publish, so the
// lock is held only briefly.
func (r *Run) emitLocked(snapshot Snapshot) {
	if r.sink == nil {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("progress sink panicked: %v", rec)
		}
	}()
	r.sink.Publish(snapshot)
}
