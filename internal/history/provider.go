// Package history reads session archives written by external coding agents
// and merges them with locally stored conversations into one browsable list.
package history

import (
	"context"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// listingTTL is how long a provider's metadata scan stays fresh.
	listingTTL = 30 * time.Second

	// parseConcurrency caps concurrent per-file parses during a scan.
	parseConcurrency = 10

	// previewLength bounds titles and previews extracted from messages.
	previewLength = 120
)

// Metadata describes one externally stored session without its messages.
type Metadata struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Source        string    `json:"source"`
	WorkspacePath string    `json:"workspacePath,omitempty"`
	MessageCount  int       `json:"messageCount,omitempty"`
	Preview       string    `json:"preview,omitempty"`
	FilePath      string    `json:"filePath"`
}

// Message is one entry of a fully loaded external session.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// Session is a fully loaded external session.
type Session struct {
	Metadata
	Messages []Message `json:"messages"`
}

// ContinueOptions carries what a provider needs to pick an archived session
// back up.
type ContinueOptions struct {
	SessionID     string `json:"sessionId"`
	WorkspacePath string `json:"workspacePath,omitempty"`
}

// ContinueResult reports the outcome of a continue attempt.
type ContinueResult struct {
	Success        bool   `json:"success"`
	SessionID      string `json:"sessionId,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Provider reads one external agent's on-disk session format.
type Provider interface {
	// Name identifies the provider; it is used as the Source tag on listings.
	Name() string
	// Available reports whether the provider's root directory is readable.
	Available() bool
	// ListMetadata returns up to limit session summaries, newest first.
	ListMetadata(ctx context.Context, limit int) ([]Metadata, error)
	// LoadSession loads the full message list for id. A missing session is
	// (nil, nil), not an error.
	LoadSession(ctx context.Context, id string) (*Session, error)
	// ContinueSession resumes an archived session so the user can keep
	// talking to it. Best-effort; failures come back in the result.
	ContinueSession(ctx context.Context, opts ContinueOptions) ContinueResult
}

// SessionAdopter binds a resumable external agent session to a fresh local
// conversation. The orchestrator implements it.
type SessionAdopter interface {
	AdoptExternalSession(ctx context.Context, agentName, sessionID, workspacePath string) (conversationID string, err error)
}

// listingCache holds scan results per root directory with a freshness window,
// so repeated listings within the TTL skip the directory walk entirely.
type listingCache struct {
	entries *lru.Cache[string, cachedListing]
	ttl     time.Duration
	now     func() time.Time
}

type cachedListing struct {
	items    []Metadata
	storedAt time.Time
}

func newListingCache(ttl time.Duration) *listingCache {
	// lru.New only errors on a non-positive size.
	cache, _ := lru.New[string, cachedListing](8)
	return &listingCache{entries: cache, ttl: ttl, now: time.Now}
}

func (c *listingCache) get(key string) ([]Metadata, bool) {
	entry, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.entries.Remove(key)
		return nil, false
	}
	return entry.items, true
}

func (c *listingCache) put(key string, items []Metadata) {
	c.entries.Add(key, cachedListing{items: items, storedAt: c.now()})
}

func (c *listingCache) invalidate(key string) {
	c.entries.Remove(key)
}

func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string, max int) string {
	if len(text) <= max {
		return text
	}
	return text[:max]
}
