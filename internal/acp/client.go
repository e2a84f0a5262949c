package acp

import (
	"context"
	"sync"

	"github.com/aj47/acp-remote/internal/logging"
)

// NotificationHandler receives decoded ACP notifications for one agent session.
type NotificationHandler interface {
	OnSessionUpdate(update SessionUpdate)
	OnToolCallUpdate(update ToolCallUpdate)
}

// SessionClient is the capability this module consumes to talk to an external
// agent process. The JSON-RPC transport and subprocess lifecycle live behind
// it; callers only see session operations plus a notification stream.
type SessionClient interface {
	// CreateSession starts a fresh agent session rooted at cwd.
	CreateSession(ctx context.Context, cwd string) (string, error)

	// LoadSession resumes a session the agent may still recognize from an
	// earlier process. The returned id is authoritative and may differ from
	// the requested one.
	LoadSession(ctx context.Context, sessionID, cwd string) (string, error)

	// SendPrompt drives one prompt turn and blocks until the agent reports a
	// stop reason. Streaming output arrives through subscribed handlers.
	SendPrompt(ctx context.Context, sessionID, text string) (PromptResult, error)

	// Subscribe registers a handler for the session's notifications and
	// returns the function that removes it again.
	Subscribe(sessionID string, handler NotificationHandler) (unsubscribe func())
}

// Dispatcher fans decoded notifications out to per-session subscribers. A
// transport implementation feeds it from its read loop; orchestration runs
// subscribe through it. Delivery never blocks the feeding goroutine beyond the
// handler calls themselves, and a panicking handler is contained and logged.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]*subscription
	logger   logging.Logger
}

type subscription struct {
	handler NotificationHandler
}

// NewDispatcher creates an empty notification dispatcher.
func NewDispatcher(logger logging.Logger) *Dispatcher {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ACPDispatcher")
	}
	return &Dispatcher{
		handlers: make(map[string][]*subscription),
		logger:   logger,
	}
}

// Subscribe registers handler for sessionID notifications.
func (d *Dispatcher) Subscribe(sessionID string, handler NotificationHandler) func() {
	if handler == nil {
		return func() {}
	}
	sub := &subscription{handler: handler}
	d.mu.Lock()
	d.handlers[sessionID] = append(d.handlers[sessionID], sub)
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			d.remove(sessionID, sub)
		})
	}
}

func (d *Dispatcher) remove(sessionID string, sub *subscription) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subs := d.handlers[sessionID]
	for i, candidate := range subs {
		if candidate == sub {
			d.handlers[sessionID] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.handlers[sessionID]) == 0 {
		delete(d.handlers, sessionID)
	}
}

// DispatchSessionUpdate delivers a session/update notification.
func (d *Dispatcher) DispatchSessionUpdate(update SessionUpdate) {
	for _, sub := range d.snapshot(update.SessionID) {
		d.deliver(func() { sub.handler.OnSessionUpdate(update) })
	}
}

// DispatchToolCallUpdate delivers a tool-call lifecycle notification.
func (d *Dispatcher) DispatchToolCallUpdate(update ToolCallUpdate) {
	for _, sub := range d.snapshot(update.SessionID) {
		d.deliver(func() { sub.handler.OnToolCallUpdate(update) })
	}
}

// SubscriberCount reports how many handlers are attached to sessionID.
func (d *Dispatcher) SubscriberCount(sessionID string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.handlers[sessionID])
}

func (d *Dispatcher) snapshot(sessionID string) []*subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := d.handlers[sessionID]
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out
}

// deliver runs one handler call, containing panics so a broken listener never
// kills the transport read loop.
func (d *Dispatcher) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("notification handler panicked: %v", r)
		}
	}()
	fn()
}
