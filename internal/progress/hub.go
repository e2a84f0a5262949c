package progress

import (
	"sync"

	"github.com/aj47/acp-remote/internal/logging"
)

// subscriberBuffer bounds how many undelivered snapshots a slow client may
// have in flight before newer ones are dropped for it.
const subscriberBuffer = 64

// Hub fans snapshots out to attached UI listeners, keyed by conversation id,
// and retains the latest snapshot per conversation for long-poll consumers.
// Publish never blocks: a subscriber whose buffer is full misses that
// snapshot (it will catch up on the next one, which carries the full
// accumulated state anyway).
type Hub struct {
	mu      sync.RWMutex
	latest  map[string]Snapshot
	clients map[string][]chan Snapshot
	logger  logging.Logger
	dropped int64
}

// NewHub creates an empty hub.
func NewHub(logger logging.Logger) *Hub {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ProgressHub")
	}
	return &Hub{
		latest:  make(map[string]Snapshot),
		clients: make(map[string][]chan Snapshot),
		logger:  logger,
	}
}

// Publish implements Sink.
func (h *Hub) Publish(snapshot Snapshot) {
	h.mu.Lock()
	h.latest[snapshot.ConversationID] = snapshot
	subscribers := append([]chan Snapshot(nil), h.clients[snapshot.ConversationID]...)
	h.mu.Unlock()

	for _, ch := range subscribers {
		select {
		case ch <- snapshot:
		default:
			h.mu.Lock()
			h.dropped++
			dropped := h.dropped
			h.mu.Unlock()
			h.logger.Debug("subscriber buffer full for %s, snapshot dropped (total dropped: %d)",
				snapshot.ConversationID, dropped)
		}
	}
}

// Latest returns the most recent snapshot for conversationID.
func (h *Hub) Latest(conversationID string) (Snapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	snapshot, ok := h.latest[conversationID]
	return snapshot, ok
}

// Subscribe attaches a listener channel for conversationID. The returned
// cancel function detaches it and closes the channel.
func (h *Hub) Subscribe(conversationID string) (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, subscriberBuffer)
	h.mu.Lock()
	h.clients[conversationID] = append(h.clients[conversationID], ch)
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			subs := h.clients[conversationID]
			for i, candidate := range subs {
				if candidate == ch {
					h.clients[conversationID] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(h.clients[conversationID]) == 0 {
				delete(h.clients, conversationID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Forget drops the retained snapshot for conversationID.
func (h *Hub) Forget(conversationID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.latest, conversationID)
}
