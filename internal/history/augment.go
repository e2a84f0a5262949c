package history

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

	"golang.org/x/sync/errgroup"

	"github.com/aj47/acp-remote/internal/logging"
)

// SourceAugment tags sessions read from the Augment exchange archive.
const SourceAugment = "augment"

// augmentFile is one archived session: a single JSON document holding the
// whole exchange history.
type augmentFile struct {
	SessionID   string            `json:"sessionId"`
	Title       string            `json:"title,omitempty"`
	Created     string            `json:"created"`
	Modified    string            `json:"modified"`
	ChatHistory []augmentExchange `json:"chatHistory"`
}

type augmentExchange struct {
	Exchange   augmentTurn `json:"exchange"`
	FinishedAt string      `json:"finishedAt,omitempty"`
}

type augmentTurn struct {
	RequestMessage string        `json:"request_message"`
	ResponseText   string        `json:"response_text"`
	RequestNodes   []augmentNode `json:"request_nodes,omitempty"`
}

// augmentNode is one structured attachment on a request. Only the IDE-state
// node matters here: it carries the workspace folders the session ran in.
type augmentNode struct {
	Type     string           `json:"type"`
	IDEState *augmentIDEState `json:"ide_state,omitempty"`
}

type augmentIDEState struct {
	WorkspaceFolders []struct {
		Path string `json:"path"`
	} `json:"workspace_folders"`
}

// AugmentProvider reads an Augment session archive: one JSON file per
// session under a flat root directory. Files are small, so metadata parsing
// reads the whole document.
type AugmentProvider struct {
	root      string
	agentName string
	adopter   SessionAdopter
	cache     *listingCache
	logger    logging.Logger
}

// AugmentParams configures an AugmentProvider.
type AugmentParams struct {
	Root      string
	AgentName string
	Adopter   SessionAdopter
	Logger    logging.Logger
}

// NewAugmentProvider builds a provider over the archive at params.Root.
func NewAugmentProvider(params AugmentParams) *AugmentProvider {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("AugmentHistory")
	}
	return &AugmentProvider{
		root:      params.Root,
		agentName: params.AgentName,
		adopter:   params.Adopter,
		cache:     newListingCache(listingTTL),
		logger:    logger,
	}
}

func (p *AugmentProvider) Name() string { return SourceAugment }

// Available reports whether the archive root exists and is a directory.
func (p *AugmentProvider) Available() bool {
	info, err := os.Stat(p.root)
	return err == nil && info.IsDir()
}

// ListMetadata scans the archive, newest first. The scan result is cached
// for a short window; individual unreadable files are skipped with a log.
func (p *AugmentProvider) ListMetadata(ctx context.Context, limit int) ([]Metadata, error) {
	items, ok := p.cache.get(p.root)
	if !ok {
		scanned, err := p.scan(ctx)
		if err != nil {
			return nil, err
		}
		p.cache.put(p.root, scanned)
		items = scanned
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (p *AugmentProvider) scan(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.root, err)
	}

	var (
		mu    sync.Mutex
		items []Metadata
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(p.root, entry.Name())
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			meta, err := p.parseMetadata(path)
			if err != nil {
				p.logger.Warn("skipping session file %s: %v", path, err)
				return nil
			}
			mu.Lock()
			items = append(items, meta)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

func (p *AugmentProvider) parseMetadata(path string) (Metadata, error) {
	doc, info, err := p.readFile(path)
	if err != nil {
		return Metadata{}, err
	}

	meta := Metadata{
		ID:           sessionIDFor(doc, path),
		Title:        doc.Title,
		CreatedAt:    parseTimeOr(doc.Created, info.ModTime()),
		UpdatedAt:    parseTimeOr(doc.Modified, info.ModTime()),
		Source:       SourceAugment,
		MessageCount: countMessages(doc.ChatHistory),
		FilePath:     path,
	}
	if first := firstRequest(doc.ChatHistory); first != "" {
		if meta.Title == "" {
			meta.Title = truncate(flatten(first), previewLength)
		}
		meta.Preview = truncate(flatten(first), previewLength)
	}
	meta.WorkspacePath = workspaceOf(doc.ChatHistory)
	return meta, nil
}

// LoadSession reads the full exchange history for id. The id is the session
// file's base name (which matches the recorded sessionId).
func (p *AugmentProvider) LoadSession(_ context.Context, id string) (*Session, error) {
	path := filepath.Join(p.root, id+".json")
	doc, info, err := p.readFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	session := &Session{
		Metadata: Metadata{
			ID:            sessionIDFor(doc, path),
			Title:         doc.Title,
			CreatedAt:     parseTimeOr(doc.Created, info.ModTime()),
			UpdatedAt:     parseTimeOr(doc.Modified, info.ModTime()),
			Source:        SourceAugment,
			WorkspacePath: workspaceOf(doc.ChatHistory),
			MessageCount:  countMessages(doc.ChatHistory),
			FilePath:      path,
		},
	}
	for _, item := range doc.ChatHistory {
		finished := parseTimeOr(item.FinishedAt, time.Time{})
		if text := item.Exchange.RequestMessage; text != "" {
			session.Messages = append(session.Messages, Message{Role: "user", Content: text, Timestamp: finished})
		}
		if text := item.Exchange.ResponseText; text != "" {
			session.Messages = append(session.Messages, Message{Role: "assistant", Content: text, Timestamp: finished})
		}
	}
	if session.Title == "" && len(session.Messages) > 0 {
		session.Title = truncate(flatten(session.Messages[0].Content), previewLength)
	}
	return session, nil
}

// ContinueSession resumes the archived session through the agent connection
// and binds it to a fresh local conversation.
func (p *AugmentProvider) ContinueSession(ctx context.Context, opts ContinueOptions) ContinueResult {
	if p.adopter == nil {
		return ContinueResult{Error: "continue is not wired for this provider"}
	}
	workspace := opts.WorkspacePath
	if workspace == "" {
		if session, err := p.LoadSession(ctx, opts.SessionID); err == nil && session != nil {
			workspace = session.WorkspacePath
		}
	}
	conversationID, err := p.adopter.AdoptExternalSession(ctx, p.agentName, opts.SessionID, workspace)
	if err != nil {
		return ContinueResult{Error: err.Error()}
	}
	p.cache.invalidate(p.root)
	return ContinueResult{Success: true, SessionID: opts.SessionID, ConversationID: conversationID}
}

func (p *AugmentProvider) readFile(path string) (*augmentFile, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	var doc augmentFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &doc, info, nil
}

func sessionIDFor(doc *augmentFile, path string) string {
	if doc.SessionID != "" {
		return doc.SessionID
	}
	return strings.TrimSuffix(filepath.Base(path), ".json")
}

func firstRequest(history []augmentExchange) string {
	for _, item := range history {
		if item.Exchange.RequestMessage != "" {
			return item.Exchange.RequestMessage
		}
	}
	return ""
}

// workspaceOf pulls the workspace path from the first exchange carrying an
// IDE-state node.
func workspaceOf(history []augmentExchange) string {
	for _, item := range history {
		for _, node := range item.Exchange.RequestNodes {
			if node.IDEState == nil {
				continue
			}
			for _, folder := range node.IDEState.WorkspaceFolders {
				if folder.Path != "" {
					return folder.Path
				}
			}
		}
	}
	return ""
}

func countMessages(history []augmentExchange) int {
	count := 0
	for _, item := range history {
		if item.Exchange.RequestMessage != "" {
			count++
		}
		if item.Exchange.ResponseText != "" {
			count++
		}
	}
	return count
}

// parseTimeOr accepts the archive's RFC 3339 timestamps and falls back when
// the field is missing or malformed.
func parseTimeOr(value string, fallback time.Time) time.Time {
	if value == "" {
		return fallback
	}
	if parsed, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return parsed
	}
	if parsed, err := time.Parse(time.RFC3339, value); err == nil {
		return parsed
	}
	return fallback
}

var _ Provider = (*AugmentProvider)(nil)
