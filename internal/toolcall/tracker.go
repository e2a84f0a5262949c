package toolcall

import (
	"sort"
	"sync"
	"time"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/logging"
)

// Status is the normalized four-state tool-call lifecycle.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// NormalizeStatus maps the agent's native status vocabulary onto the four
// internal states. Unknown values are treated as pending so a new lifecycle
// word from an agent never drops a call from the UI.
func NormalizeStatus(raw string) Status {
	switch raw {
	case "pending", "queued", "created", "":
		return StatusPending
	case "in_progress", "running", "executing", "started":
		return StatusInProgress
	case "completed", "done", "success", "succeeded", "finished":
		return StatusCompleted
	case "failed", "error", "errored", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusPending
	}
}

// State is the tracked view of one tool call within an orchestration run.
type State struct {
	ToolCallID string                 `json:"toolCallId"`
	Title      string                 `json:"title"`
	Kind       string                 `json:"kind,omitempty"`
	Status     Status                 `json:"status"`
	StartTime  int64                  `json:"startTime"`
	Locations  []acp.ToolCallLocation `json:"locations,omitempty"`
}

// Tracker maintains per-session tool-call state machines plus the agent
// session to UI session cross-reference used to route approval requests.
// Everything here is ephemeral; nothing survives a restart.
type Tracker struct {
	mu         sync.RWMutex
	calls      map[string]map[string]*State // agentSessionID -> toolCallID -> state
	uiSessions map[string]string            // agentSessionID -> uiSessionID
	logger     logging.Logger
	now        func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker(logger logging.Logger) *Tracker {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ToolCallTracker")
	}
	return &Tracker{
		calls:      make(map[string]map[string]*State),
		uiSessions: make(map[string]string),
		logger:     logger,
		now:        time.Now,
	}
}

// RecordUpdate upserts the call described by update and returns the full
// current set of tracked calls for the session, ordered by start time. UIs
// re-render the whole active set, so the snapshot is complete rather than a
// delta. StartTime is fixed by the first sighting of a toolCallId.
func (t *Tracker) RecordUpdate(sessionID string, update acp.ToolCall) []State {
	t.mu.Lock()
	defer t.mu.Unlock()

	sessionCalls, ok := t.calls[sessionID]
	if !ok {
		sessionCalls = make(map[string]*State)
		t.calls[sessionID] = sessionCalls
	}

	state, ok := sessionCalls[update.ID]
	if !ok {
		state = &State{
			ToolCallID: update.ID,
			StartTime:  t.now().UnixMilli(),
		}
		sessionCalls[update.ID] = state
	}
	if update.Title != "" {
		state.Title = update.Title
	}
	if update.Kind != "" {
		state.Kind = update.Kind
	}
	if len(update.Locations) > 0 {
		state.Locations = update.Locations
	}
	state.Status = NormalizeStatus(update.Status)

	return snapshotLocked(sessionCalls)
}

// Snapshot returns the tracked calls for sessionID ordered by start time.
func (t *Tracker) Snapshot(sessionID string) []State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return snapshotLocked(t.calls[sessionID])
}

// MapAgentSessionToUISession records the routing entry for approval requests.
// One agent session maps to exactly one UI session per run; remapping logs
// and replaces.
func (t *Tracker) MapAgentSessionToUISession(agentSessionID, uiSessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.uiSessions[agentSessionID]; ok && existing != uiSessionID {
		t.logger.Warn("agent session %s remapped from UI session %s to %s",
			agentSessionID, existing, uiSessionID)
	}
	t.uiSessions[agentSessionID] = uiSessionID
}

// ResolveUISession returns the UI session an approval request for
// agentSessionID should reach.
func (t *Tracker) ResolveUISession(agentSessionID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	uiSessionID, ok := t.uiSessions[agentSessionID]
	return uiSessionID, ok
}

// ClearMapping removes only the cross-reference entry.
func (t *Tracker) ClearMapping(agentSessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.uiSessions, agentSessionID)
}

// ClearSession drops all tracked state for agentSessionID: tool calls and the
// cross-reference. Used on run completion and by the emergency-stop path. The
// persisted session record is deliberately untouched; the agent session may
// remain resumable.
func (t *Tracker) ClearSession(agentSessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.calls, agentSessionID)
	delete(t.uiSessions, agentSessionID)
}

// ClearUISession drops state for every agent session mapped to uiSessionID.
func (t *Tracker) ClearUISession(uiSessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for agentSessionID, mapped := range t.uiSessions {
		if mapped == uiSessionID {
			delete(t.calls, agentSessionID)
			delete(t.uiSessions, agentSessionID)
		}
	}
}

func snapshotLocked(calls map[string]*State) []State {
	if len(calls) == 0 {
		return nil
	}
	out := make([]State, 0, len(calls))
	for _, state := range calls {
		out = append(out, *state)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartTime != out[j].StartTime {
			return out[i].StartTime < out[j].StartTime
		}
		return out[i].ToolCallID < out[j].ToolCallID
	})
	return out
}
