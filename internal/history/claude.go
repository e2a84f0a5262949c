package history

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aj47/acp-remote/internal/logging"
)

// SourceClaude tags sessions read from the Claude Code project archive.
const SourceClaude = "claude"

const (
	// subAgentFilePrefix marks sub-agent warm-up sessions, which are noise
	// in a history listing.
	subAgentFilePrefix = "agent-"

	// metadataScanLines bounds how deep a metadata parse reads into a
	// session file. These files can run to megabytes; the first user
	// message is always near the top.
	metadataScanLines = 10

	// maxLineBytes sizes the scanner buffer. Single lines carry whole tool
	// results, so the default 64K is not enough.
	maxLineBytes = 10 * 1024 * 1024
)

// claudeLine is one JSONL record of a session file. Message content is raw
// because the archive stores either a plain string or a block list.
type claudeLine struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Cwd       string `json:"cwd,omitempty"`
	Timestamp string `json:"timestamp"`
	Message   *struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	} `json:"message,omitempty"`
}

// ClaudeProvider reads the Claude Code session archive: per-project
// directories whose names encode the project path, each holding one JSONL
// file per session.
type ClaudeProvider struct {
	root          string
	resumeCommand []string
	cache         *listingCache
	logger        logging.Logger
}

// ClaudeParams configures a ClaudeProvider. ResumeCommand is the argv used
// to reopen a session in a terminal; "{sessionId}" in any argument is
// replaced with the session id.
type ClaudeParams struct {
	Root          string
	ResumeCommand []string
	Logger        logging.Logger
}

// NewClaudeProvider builds a provider over the archive at params.Root.
func NewClaudeProvider(params ClaudeParams) *ClaudeProvider {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("ClaudeHistory")
	}
	return &ClaudeProvider{
		root:          params.Root,
		resumeCommand: params.ResumeCommand,
		cache:         newListingCache(listingTTL),
		logger:        logger,
	}
}

func (p *ClaudeProvider) Name() string { return SourceClaude }

// Available reports whether the archive root exists and is a directory.
func (p *ClaudeProvider) Available() bool {
	info, err := os.Stat(p.root)
	return err == nil && info.IsDir()
}

// decodeProjectDir reverses the archive's directory naming: a leading dash
// stands for the root separator and every remaining dash for a separator.
// "-Users-pat-dev-api" decodes to "/Users/pat/dev/api".
func decodeProjectDir(name string) string {
	if strings.HasPrefix(name, "-") {
		return string(filepath.Separator) + strings.ReplaceAll(name[1:], "-", string(filepath.Separator))
	}
	return strings.ReplaceAll(name, "-", string(filepath.Separator))
}

// ListMetadata scans every project directory for session files, newest
// first. The scan is cached for a short window.
func (p *ClaudeProvider) ListMetadata(ctx context.Context, limit int) ([]Metadata, error) {
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

func (p *ClaudeProvider) scan(ctx context.Context) ([]Metadata, error) {
	projects, err := os.ReadDir(p.root)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p.root, err)
	}

	var (
		mu    sync.Mutex
		items []Metadata
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parseConcurrency)
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		projectDir := filepath.Join(p.root, project.Name())
		workspace := decodeProjectDir(project.Name())
		files, err := os.ReadDir(projectDir)
		if err != nil {
			p.logger.Warn("skipping project dir %s: %v", projectDir, err)
			continue
		}
		for _, file := range files {
			name := file.Name()
			if file.IsDir() || !strings.HasSuffix(name, ".jsonl") || strings.HasPrefix(name, subAgentFilePrefix) {
				continue
			}
			path := filepath.Join(projectDir, name)
			g.Go(func() error {
				if err := ctx.Err(); err != nil {
					return err
				}
				meta, err := p.parseMetadata(path, workspace)
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
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
	return items, nil
}

// parseMetadata reads only the head of the file: enough to find the session
// id and the first user message for the title.
func (p *ClaudeProvider) parseMetadata(path, workspace string) (Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Metadata{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return Metadata{}, err
	}
	defer file.Close()

	meta := Metadata{
		ID:            strings.TrimSuffix(filepath.Base(path), ".jsonl"),
		Source:        SourceClaude,
		WorkspacePath: workspace,
		UpdatedAt:     info.ModTime(),
		CreatedAt:     info.ModTime(),
		FilePath:      path,
	}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for lines := 0; lines < metadataScanLines && scanner.Scan(); lines++ {
		var line claudeLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if lines == 0 {
			if created := parseTimeOr(line.Timestamp, time.Time{}); !created.IsZero() {
				meta.CreatedAt = created
			}
		}
		if meta.WorkspacePath == "" && line.Cwd != "" {
			meta.WorkspacePath = line.Cwd
		}
		if meta.Title == "" && line.Type == "user" && line.Message != nil {
			if text := decodeMessageContent(line.Message.Content); text != "" {
				meta.Title = truncate(flatten(text), previewLength)
				meta.Preview = meta.Title
				break
			}
		}
	}
	return meta, scanner.Err()
}

// LoadSession parses every line of the session file. Queue bookkeeping and
// system records are skipped; cwd comes from the first line that has one.
func (p *ClaudeProvider) LoadSession(ctx context.Context, id string) (*Session, error) {
	path, workspace, err := p.findSessionFile(id)
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, nil
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	session := &Session{
		Metadata: Metadata{
			ID:            id,
			Source:        SourceClaude,
			WorkspacePath: workspace,
			CreatedAt:     info.ModTime(),
			UpdatedAt:     info.ModTime(),
			FilePath:      path,
		},
	}

	cwdFound := workspace != ""
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	first := true
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var line claudeLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			continue
		}
		if first {
			if created := parseTimeOr(line.Timestamp, time.Time{}); !created.IsZero() {
				session.CreatedAt = created
			}
			first = false
		}
		if !cwdFound && line.Cwd != "" {
			session.WorkspacePath = line.Cwd
			cwdFound = true
		}
		if line.Type != "user" && line.Type != "assistant" {
			continue
		}
		if line.Message == nil {
			continue
		}
		text := decodeMessageContent(line.Message.Content)
		if text == "" {
			continue
		}
		role := line.Message.Role
		if role == "" {
			role = line.Type
		}
		session.Messages = append(session.Messages, Message{
			Role:      role,
			Content:   text,
			Timestamp: parseTimeOr(line.Timestamp, time.Time{}),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", path, err)
	}

	session.MessageCount = len(session.Messages)
	for _, message := range session.Messages {
		if message.Role == "user" {
			session.Title = truncate(flatten(message.Content), previewLength)
			session.Preview = session.Title
			break
		}
	}
	return session, nil
}

// ContinueSession reopens the session with the configured resume command in
// the session's workspace. The command is detached; a missing CLI surfaces
// as a failed result, never a panic.
func (p *ClaudeProvider) ContinueSession(ctx context.Context, opts ContinueOptions) ContinueResult {
	if len(p.resumeCommand) == 0 {
		return ContinueResult{Error: "no resume command configured"}
	}

	workspace := opts.WorkspacePath
	if workspace == "" {
		if _, ws, err := p.findSessionFile(opts.SessionID); err == nil {
			workspace = ws
		}
	}

	argv := make([]string, len(p.resumeCommand))
	for i, arg := range p.resumeCommand {
		argv[i] = strings.ReplaceAll(arg, "{sessionId}", opts.SessionID)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	if workspace != "" {
		cmd.Dir = workspace
	}
	if err := cmd.Start(); err != nil {
		return ContinueResult{Error: fmt.Sprintf("start %s: %v", argv[0], err)}
	}
	go func() {
		// Reap the child; its lifetime belongs to the user's terminal.
		if err := cmd.Wait(); err != nil {
			p.logger.Info("resume command for %s exited: %v", opts.SessionID, err)
		}
	}()
	return ContinueResult{Success: true, SessionID: opts.SessionID}
}

// findSessionFile locates <id>.jsonl across all project directories and
// returns its path and the decoded workspace. Missing is ("", "", nil).
func (p *ClaudeProvider) findSessionFile(id string) (string, string, error) {
	projects, err := os.ReadDir(p.root)
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", nil
		}
		return "", "", fmt.Errorf("read %s: %w", p.root, err)
	}
	for _, project := range projects {
		if !project.IsDir() {
			continue
		}
		candidate := filepath.Join(p.root, project.Name(), id+".jsonl")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, decodeProjectDir(project.Name()), nil
		}
	}
	return "", "", nil
}

// decodeMessageContent handles both content encodings the archive uses: a
// plain string, or a list of typed blocks from which the text blocks are
// joined.
func decodeMessageContent(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return ""
	}
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

var _ Provider = (*ClaudeProvider)(nil)
