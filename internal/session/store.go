package session

import (
	"sync"
	"time"

	"github.com/aj47/acp-remote/internal/logging"
)

// Record binds a conversation to the agent session currently serving it.
type Record struct {
	SessionID        string `json:"sessionId"`
	AgentName        string `json:"agentName"`
	CreatedAt        int64  `json:"createdAt"`
	LastUsedAt       int64  `json:"lastUsedAt"`
	ContextInjected  bool   `json:"contextInjected,omitempty"`
	WorkingDirectory string `json:"cwd,omitempty"`
}

// PersistedBinding is the read-only view used for resume attempts. It is
// available regardless of verification state.
type PersistedBinding struct {
	SessionID        string
	AgentName        string
	WorkingDirectory string
}

// Store maps conversation ids to agent session records. Records loaded from
// disk are not trusted until the agent confirms them again: Get only returns
// records verified during this process lifetime, while GetPersisted exposes
// the raw binding so callers can attempt an explicit resume.
//
// One mutex guards everything, including the disk write, so concurrent
// mutations from different conversations cannot interleave a stale snapshot
// onto disk. Nothing on the notification hot path goes through this store.
type Store struct {
	mu       sync.Mutex
	records  map[string]*Record
	verified map[string]bool
	file     *sessionFile
	logger   logging.Logger
	now      func() time.Time
}

// NewStore creates a session store persisted at path. A missing or malformed
// persisted file is treated as empty; startup never fails on it.
func NewStore(path string, logger logging.Logger) *Store {
	logger = logging.OrNop(logger)
	store := &Store{
		records:  make(map[string]*Record),
		verified: make(map[string]bool),
		file:     newSessionFile(path),
		logger:   logger,
		now:      time.Now,
	}
	loaded, err := store.file.Load()
	if err != nil {
		logger.Warn("failed to load persisted sessions, starting empty: %v", err)
		return store
	}
	store.records = loaded
	return store
}

// FilePath reports where the store persists its records.
func (s *Store) FilePath() string {
	return s.file.path
}

// Get returns the record for conversationID only when it has been verified
// active during this process lifetime.
func (s *Store) Get(conversationID string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.verified[conversationID] {
		return Record{}, false
	}
	record, ok := s.records[conversationID]
	if !ok {
		return Record{}, false
	}
	return *record, true
}

// GetPersisted returns the stored binding for conversationID without any
// verification gating. Callers use it to drive an explicit resume.
func (s *Store) GetPersisted(conversationID string) (PersistedBinding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[conversationID]
	if !ok {
		return PersistedBinding{}, false
	}
	return PersistedBinding{
		SessionID:        record.SessionID,
		AgentName:        record.AgentName,
		WorkingDirectory: record.WorkingDirectory,
	}, true
}

// Upsert binds conversationID to an agent session, marks it verified, and
// persists before returning. Rebinding to a different session or agent starts
// a fresh record, so the context-injected flag never leaks across sessions.
func (s *Store) Upsert(conversationID, sessionID, agentName, workingDirectory string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nowMillis := s.now().UnixMilli()
	record, ok := s.records[conversationID]
	if !ok || record.SessionID != sessionID || record.AgentName != agentName {
		record = &Record{
			SessionID: sessionID,
			AgentName: agentName,
			CreatedAt: nowMillis,
		}
		s.records[conversationID] = record
	}
	record.LastUsedAt = maxInt64(record.LastUsedAt, nowMillis)
	if workingDirectory != "" {
		record.WorkingDirectory = workingDirectory
	}
	s.verified[conversationID] = true
	s.persistLocked()
}

// Clear removes the record and its verification flag, then persists.
func (s *Store) Clear(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, conversationID)
	delete(s.verified, conversationID)
	s.persistLocked()
}

// ClearAll wipes every record. When persist is false the on-disk file is left
// untouched (mid-shutdown fast path).
func (s *Store) ClearAll(persist bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]*Record)
	s.verified = make(map[string]bool)
	if persist {
		s.persistLocked()
	}
}

// Touch bumps LastUsedAt without writing to disk.
func (s *Store) Touch(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[conversationID]
	if !ok {
		return
	}
	record.LastUsedAt = maxInt64(record.LastUsedAt, s.now().UnixMilli())
}

// MarkContextInjected records that the one-shot context prefix has been sent
// for this conversation's session, then persists.
func (s *Store) MarkContextInjected(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[conversationID]
	if !ok {
		return
	}
	record.ContextInjected = true
	s.persistLocked()
}

// HasContextInjected reports whether the context prefix was already sent.
func (s *Store) HasContextInjected(conversationID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[conversationID]
	return ok && record.ContextInjected
}

// persistLocked writes the current records through the single file write
// path. Failures are logged and swallowed; in-memory state stays
// authoritative for the process lifetime. Caller must hold s.mu.
func (s *Store) persistLocked() {
	if err := s.file.Save(s.records); err != nil {
		s.logger.Warn("failed to persist sessions: %v", err)
	}
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
