package conversation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/toolcall"
)

// Message is one entry in a conversation's history. Assistant entries may
// carry the tool calls that were pending when the turn completed.
type Message struct {
	Role             string           `json:"role"`
	Content          string           `json:"content"`
	Timestamp        time.Time        `json:"timestamp"`
	PendingToolCalls []toolcall.State `json:"pendingToolCalls,omitempty"`
}

// Conversation is the user-facing message thread. It outlives any particular
// agent session.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Metadata is a lightweight listing view of one conversation.
type Metadata struct {
	ID           string    `json:"id"`
	Title        string    `json:"title,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Preview      string    `json:"preview,omitempty"`
}

const previewLength = 120

// Store persists conversations as one JSON file each under baseDir.
type Store struct {
	baseDir string
	mu      sync.Mutex
	logger  logging.Logger
}

// NewStore creates a conversation store rooted at baseDir.
func NewStore(baseDir string, logger logging.Logger) *Store {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ConversationStore")
	}
	return &Store{baseDir: baseDir, logger: logger}
}

// Get loads a conversation by id.
func (s *Store) Get(id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(id)
}

// Append adds a message to the conversation, creating it on first write.
func (s *Store) Append(id string, message Message) error {
	if id == "" {
		return fmt.Errorf("conversation id is required")
	}
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.loadLocked(id)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		now := time.Now()
		conv = &Conversation{ID: id, CreatedAt: now, UpdatedAt: now}
	}

	conv.Messages = append(conv.Messages, message)
	conv.UpdatedAt = time.Now()
	if conv.Title == "" && message.Role == "user" {
		conv.Title = truncate(flatten(message.Content), previewLength)
	}

	return s.saveLocked(conv)
}

// ListMetadata returns listing metadata for every stored conversation.
// Unreadable files are logged and skipped.
func (s *Store) ListMetadata() ([]Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.baseDir, err)
	}

	var out []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		conv, err := s.loadLocked(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping conversation file %s: %v", entry.Name(), err)
			continue
		}
		meta := Metadata{
			ID:           conv.ID,
			Title:        conv.Title,
			CreatedAt:    conv.CreatedAt,
			UpdatedAt:    conv.UpdatedAt,
			MessageCount: len(conv.Messages),
		}
		if len(conv.Messages) > 0 {
			meta.Preview = truncate(flatten(conv.Messages[len(conv.Messages)-1].Content), previewLength)
		}
		out = append(out, meta)
	}
	return out, nil
}

// Delete removes a conversation. Deleting a missing one is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.pathFor(id))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

func (s *Store) pathFor(id string) string {
	return filepath.Join(s.baseDir, id+".json")
}

func (s *Store) loadLocked(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.pathFor(id))
	if err != nil {
		return nil, err
	}
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

func (s *Store) saveLocked(conv *Conversation) error {
	if err := os.MkdirAll(s.baseDir, 0755); err != nil {
		return fmt.Errorf("create %s: %w", s.baseDir, err)
	}
	data, err := json.MarshalIndent(conv, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.pathFor(conv.ID), data, 0644)
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
