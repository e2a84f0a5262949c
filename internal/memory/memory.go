package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Importance ranks how strongly a memory should be surfaced during context
// injection.
type Importance string

const (
	ImportanceCritical Importance = "critical"
	ImportanceHigh     Importance = "high"
	ImportanceMedium   Importance = "medium"
	ImportanceLow      Importance = "low"
)

// rank orders tiers for sorting; unknown tiers sort after low.
func (i Importance) rank() int {
	switch i {
	case ImportanceCritical:
		return 0
	case ImportanceHigh:
		return 1
	case ImportanceMedium:
		return 2
	case ImportanceLow:
		return 3
	default:
		return 4
	}
}

// Entry is one remembered fact about the user or their projects.
type Entry struct {
	ID         string     `json:"id"`
	Content    string     `json:"content"`
	Importance Importance `json:"importance"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Provider supplies memories to the context injector.
type Provider interface {
	List(ctx context.Context) ([]Entry, error)
}

// Rank orders entries by importance tier (critical first) then recency
// descending, and truncates to limit when limit > 0.
func Rank(entries []Entry, limit int) []Entry {
	ranked := append([]Entry(nil), entries...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Importance.rank() != ranked[j].Importance.rank() {
			return ranked[i].Importance.rank() < ranked[j].Importance.rank()
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// FileStore persists entries as a single JSON document at path.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a file-backed memory store at path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// List returns all stored entries. A missing file yields an empty list.
func (s *FileStore) List(_ context.Context) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

// Add appends an entry, filling in id, timestamp, and a default importance.
func (s *FileStore) Add(_ context.Context, entry Entry) (Entry, error) {
	entry.Content = strings.TrimSpace(entry.Content)
	if entry.Content == "" {
		return Entry{}, fmt.Errorf("content is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Importance == "" {
		entry.Importance = ImportanceMedium
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.loadLocked()
	if err != nil {
		return Entry{}, err
	}
	entries = append(entries, entry)
	if err := s.saveLocked(entries); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Remove deletes an entry by id. Removing a missing id is not an error.
func (s *FileStore) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries, err := s.loadLocked()
	if err != nil {
		return err
	}
	filtered := entries[:0]
	for _, entry := range entries {
		if entry.ID != id {
			filtered = append(filtered, entry)
		}
	}
	if len(filtered) == len(entries) {
		return nil
	}
	return s.saveLocked(filtered)
}

func (s *FileStore) loadLocked() ([]Entry, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore) saveLocked(entries []Entry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(s.path), err)
	}
	return os.WriteFile(s.path, data, 0644)
}
