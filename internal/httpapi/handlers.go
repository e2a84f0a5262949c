package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aj47/acp-remote/internal/history"
	"github.com/aj47/acp-remote/internal/orchestrator"
)

const (
	defaultHistoryLimit = 50

	// longPollTimeout is how long a progress request waits for a snapshot
	// before answering empty. Kept under common proxy idle timeouts.
	longPollTimeout = 25 * time.Second
)

// PromptRequest drives one turn of a conversation through an agent.
type PromptRequest struct {
	ConversationID  string `json:"conversationId"`
	UISessionID     string `json:"sessionId"`
	Agent           string `json:"agent,omitempty"`
	Message         string `json:"message"`
	ForceNewSession bool   `json:"forceNewSession,omitempty"`
}

func (s *Server) handlePrompt(c *gin.Context) {
	var req PromptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Message == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "message is required"})
		return
	}
	if req.ConversationID == "" {
		req.ConversationID = uuid.NewString()
	}
	if req.UISessionID == "" {
		req.UISessionID = uuid.NewString()
	}

	result := s.runner.Run(c.Request.Context(), orchestrator.Request{
		ConversationID:  req.ConversationID,
		UISessionID:     req.UISessionID,
		AgentName:       req.Agent,
		Transcript:      req.Message,
		ForceNewSession: req.ForceNewSession,
	})

	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, APIResponse{
		Success: result.Success,
		Data: gin.H{
			"conversationId": req.ConversationID,
			"sessionId":      req.UISessionID,
			"result":         result,
		},
		Error: result.Error,
	})
}

// StopRequest tears down tracking for one UI session.
type StopRequest struct {
	UISessionID string `json:"sessionId"`
}

func (s *Server) handleStop(c *gin.Context) {
	var req StopRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.UISessionID == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "sessionId is required"})
		return
	}
	s.runner.StopSession(req.UISessionID)
	c.JSON(http.StatusOK, APIResponse{Success: true})
}

// handleProgress answers with the latest snapshot for the conversation. With
// ?wait=true and no retained snapshot yet, it long-polls until one arrives
// or the timeout lapses.
func (s *Server) handleProgress(c *gin.Context) {
	conversationID := c.Param("conversationID")

	if snapshot, ok := s.hub.Latest(conversationID); ok {
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: snapshot})
		return
	}
	if c.Query("wait") != "true" {
		c.JSON(http.StatusNoContent, nil)
		return
	}

	updates, cancel := s.hub.Subscribe(conversationID)
	defer cancel()

	select {
	case snapshot := <-updates:
		c.JSON(http.StatusOK, APIResponse{Success: true, Data: snapshot})
	case <-time.After(longPollTimeout):
		c.JSON(http.StatusNoContent, nil)
	case <-c.Request.Context().Done():
	}
}

func (s *Server) handleHistoryList(c *gin.Context) {
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, APIResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}
	items := s.aggregator.ListUnified(c.Request.Context(), limit)
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"items": items}})
}

func (s *Server) handleHistorySession(c *gin.Context) {
	session, err := s.aggregator.Load(c.Request.Context(), c.Param("source"), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Error: err.Error()})
		return
	}
	if session == nil {
		c.JSON(http.StatusNotFound, APIResponse{Error: "session not found"})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: session})
}

// ContinueRequest picks an archived external session back up.
type ContinueRequest struct {
	Source        string `json:"source"`
	SessionID     string `json:"sessionId"`
	WorkspacePath string `json:"workspacePath,omitempty"`
}

func (s *Server) handleHistoryContinue(c *gin.Context) {
	var req ContinueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "invalid request: " + err.Error()})
		return
	}
	if req.Source == "" || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, APIResponse{Error: "source and sessionId are required"})
		return
	}

	result := s.aggregator.Continue(c.Request.Context(), req.Source, history.ContinueOptions{
		SessionID:     req.SessionID,
		WorkspacePath: req.WorkspacePath,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	c.JSON(status, APIResponse{Success: result.Success, Data: result, Error: result.Error})
}

func (s *Server) handleConversationList(c *gin.Context) {
	items, err := s.conversations.ListMetadata()
	if err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: gin.H{"conversations": items}})
}

func (s *Server) handleConversationGet(c *gin.Context) {
	conv, err := s.conversations.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, APIResponse{Error: "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: conv})
}

func (s *Server) handleConversationDelete(c *gin.Context) {
	if err := s.conversations.Delete(c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, APIResponse{Error: err.Error()})
		return
	}
	s.hub.Forget(c.Param("id"))
	c.JSON(http.StatusOK, APIResponse{Success: true})
}
