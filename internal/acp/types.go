package acp

import (
	"encoding/json"
	"fmt"
)

// Content block types carried in session/update notifications.
const (
	ContentTypeText    = "text"
	ContentTypeToolUse = "tool_use"
)

// ContentBlock is the tagged union carried by session updates: either a text
// delta or a tool invocation announcement.
type ContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

// UnmarshalJSON validates the tag so malformed agent payloads fail loudly at
// the decode boundary instead of deep inside the progress pipeline.
func (b *ContentBlock) UnmarshalJSON(data []byte) error {
	type raw ContentBlock
	var decoded raw
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	switch decoded.Type {
	case ContentTypeText, ContentTypeToolUse:
	default:
		return fmt.Errorf("unknown content block type %q", decoded.Type)
	}
	*b = ContentBlock(decoded)
	return nil
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: ContentTypeText, Text: text}
}

// ToolUseBlock builds a tool_use content block.
func ToolUseBlock(name string, input map[string]any) ContentBlock {
	return ContentBlock{Type: ContentTypeToolUse, Name: name, Input: input}
}

// ToolResponseStats carries execution statistics attached to a session update
// that has no new content (a tool finished and only timing/usage arrived).
type ToolResponseStats struct {
	DurationMS      int64  `json:"duration_ms"`
	InputTokens     int    `json:"input_tokens,omitempty"`
	OutputTokens    int    `json:"output_tokens,omitempty"`
	CacheReadTokens int    `json:"cache_read_tokens,omitempty"`
	SubAgentID      string `json:"sub_agent_id,omitempty"`
}

// SessionUpdate is the session/update notification payload.
type SessionUpdate struct {
	SessionID         string             `json:"sessionId"`
	Content           []ContentBlock     `json:"content,omitempty"`
	IsComplete        bool               `json:"isComplete,omitempty"`
	ToolResponseStats *ToolResponseStats `json:"toolResponseStats,omitempty"`
}

// ToolCallLocation points at a file position a tool call touches.
type ToolCallLocation struct {
	Path string `json:"path"`
	Line int    `json:"line,omitempty"`
}

// ToolCall describes one tool invocation as reported by the agent. Status uses
// the agent's native vocabulary; internal/toolcall normalizes it.
type ToolCall struct {
	ID        string             `json:"toolCallId"`
	Title     string             `json:"title"`
	Kind      string             `json:"kind,omitempty"`
	Status    string             `json:"status,omitempty"`
	Locations []ToolCallLocation `json:"locations,omitempty"`
}

// ToolCallUpdate is the tool-call lifecycle notification payload.
type ToolCallUpdate struct {
	SessionID          string   `json:"sessionId"`
	ToolCall           ToolCall `json:"toolCall"`
	AwaitingPermission bool     `json:"awaitingPermission,omitempty"`
}

// PromptResult is the outcome of a completed prompt turn.
type PromptResult struct {
	Response   string `json:"response"`
	StopReason string `json:"stopReason,omitempty"`
}
