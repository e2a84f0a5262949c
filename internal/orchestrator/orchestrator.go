package orchestrator

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/aj47/acp-remote/internal/acp"
	"github.com/aj47/acp-remote/internal/config"
	"github.com/aj47/acp-remote/internal/contextpack"
	"github.com/aj47/acp-remote/internal/conversation"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/progress"
	"github.com/aj47/acp-remote/internal/session"
	"github.com/aj47/acp-remote/internal/toolcall"
)

// Session resolution outcomes, used as metric labels.
const (
	outcomeReused  = "reused"
	outcomeResumed = "resumed"
	outcomeCreated = "created"
)

// Request describes one prompt to drive through an agent session.
type Request struct {
	ConversationID  string
	UISessionID     string
	AgentName       string
	Transcript      string
	ForceNewSession bool
}

// Result is the structured outcome of one orchestration run. Failures are
// reported here, never as panics or partial state.
type Result struct {
	Success        bool   `json:"success"`
	Response       string `json:"response,omitempty"`
	StopReason     string `json:"stopReason,omitempty"`
	AgentSessionID string `json:"agentSessionId,omitempty"`
	Error          string `json:"error,omitempty"`
}

// Orchestrator drives a prompt through an agent session: resolve or create
// the session, inject one-shot context, stream progress, record history, and
// return a structured result.
type Orchestrator struct {
	client        acp.SessionClient
	sessions      *session.Store
	conversations *conversation.Store
	injector      *contextpack.Injector
	tracker       *toolcall.Tracker
	hub           *progress.Hub
	cfg           *config.Config
	defaultCwd    string
	metrics       *Metrics
	logger        logging.Logger
}

// Params configures an Orchestrator.
type Params struct {
	Client        acp.SessionClient
	Sessions      *session.Store
	Conversations *conversation.Store
	Injector      *contextpack.Injector
	Tracker       *toolcall.Tracker
	Hub           *progress.Hub
	Config        *config.Config
	DefaultCwd    string
	Metrics       *Metrics
	Logger        logging.Logger
}

// New builds an Orchestrator.
func New(params Params) *Orchestrator {
	logger := params.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Orchestrator")
	}
	metrics := params.Metrics
	if metrics == nil {
		metrics = defaultMetrics()
	}
	return &Orchestrator{
		client:        params.Client,
		sessions:      params.Sessions,
		conversations: params.Conversations,
		injector:      params.Injector,
		tracker:       params.Tracker,
		hub:           params.Hub,
		cfg:           params.Config,
		defaultCwd:    params.DefaultCwd,
		metrics:       metrics,
		logger:        logger,
	}
}

// Run executes one prompt turn. Every failure path returns a Result with
// Success=false and the error message; tracker state and notification
// subscriptions are torn down on all paths.
func (o *Orchestrator) Run(ctx context.Context, req Request) Result {
	started := time.Now()
	o.metrics.IncActiveRuns()
	defer o.metrics.DecActiveRuns()

	profile := o.resolveProfile(req.AgentName)
	if profile != nil && req.AgentName == "" {
		req.AgentName = profile.Name
	}

	sessionID, contextPending, err := o.resolveSession(ctx, req, profile)
	if err != nil {
		o.metrics.IncRunFailure("session_resolution")
		o.metrics.ObserveRunDuration("failed", time.Since(started))
		o.logger.Error("session resolution failed for %s: %v", req.ConversationID, err)
		return Result{Success: false, Error: err.Error()}
	}

	o.tracker.MapAgentSessionToUISession(sessionID, req.UISessionID)
	defer o.tracker.ClearSession(sessionID)

	// The raw transcript is what history keeps; the prefix is a transport
	// addition, not a conversation message.
	if err := o.conversations.Append(req.ConversationID, conversation.Message{
		Role:    "user",
		Content: req.Transcript,
	}); err != nil {
		o.logger.Warn("failed to record user entry for %s: %v", req.ConversationID, err)
	}

	run := progress.NewRun(progress.RunParams{
		SessionID:      sessionID,
		UISessionID:    req.UISessionID,
		ConversationID: req.ConversationID,
		AgentName:      req.AgentName,
		History:        o.historyFor(req.ConversationID),
		Tracker:        o.tracker,
		Sink:           o.hub,
		Logger:         o.logger,
	})
	unsubscribe := o.client.Subscribe(sessionID, run)
	defer unsubscribe()

	promptText := req.Transcript
	if contextPending {
		if prefix := o.injector.BuildPrefix(ctx, profile); prefix != "" {
			promptText = prefix + "\n\n" + req.Transcript
		}
	}

	promptResult, err := o.client.SendPrompt(ctx, sessionID, promptText)
	if err != nil {
		// Accumulated partial text stays available through the hub's
		// retained snapshot; session state is untouched so a retry can
		// re-resolve.
		o.metrics.IncRunFailure("send_prompt")
		o.metrics.ObserveRunDuration("failed", time.Since(started))
		o.logger.Error("sendPrompt failed for %s (session %s): %v", req.ConversationID, sessionID, err)
		return Result{Success: false, AgentSessionID: sessionID, Error: err.Error()}
	}

	if contextPending {
		o.sessions.MarkContextInjected(req.ConversationID)
	}
	o.sessions.Touch(req.ConversationID)

	finalContent := promptResult.Response
	if finalContent == "" {
		finalContent = run.Text()
	}

	if err := o.conversations.Append(req.ConversationID, conversation.Message{
		Role:             "assistant",
		Content:          finalContent,
		PendingToolCalls: run.PendingToolCalls(),
	}); err != nil {
		// Best-effort: the in-memory result already carries the response.
		o.logger.Warn("failed to record assistant entry for %s: %v", req.ConversationID, err)
	}

	run.Complete(finalContent)
	o.metrics.ObserveRunDuration("ok", time.Since(started))

	return Result{
		Success:        true,
		Response:       finalContent,
		StopReason:     promptResult.StopReason,
		AgentSessionID: sessionID,
	}
}

// historyFor loads the conversation's messages for embedding in progress
// snapshots. Best-effort: an unreadable conversation just means snapshots
// carry no prior history.
func (o *Orchestrator) historyFor(conversationID string) []progress.HistoryMessage {
	conv, err := o.conversations.Get(conversationID)
	if err != nil {
		return nil
	}
	out := make([]progress.HistoryMessage, 0, len(conv.Messages))
	for _, message := range conv.Messages {
		out = append(out, progress.HistoryMessage{Role: message.Role, Content: message.Content})
	}
	return out
}

// resolveSession finds or creates the agent session for the request. The
// second return reports whether the one-shot context prefix still needs to go
// out with this prompt.
func (o *Orchestrator) resolveSession(ctx context.Context, req Request, profile *config.AgentProfile) (string, bool, error) {
	if req.ForceNewSession {
		return o.createWithContext(ctx, req, profile, "")
	}

	// Verified in-memory record for this conversation and agent.
	if record, ok := o.sessions.Get(req.ConversationID); ok && record.AgentName == req.AgentName {
		o.sessions.Touch(req.ConversationID)
		o.metrics.IncSessionOutcome(outcomeReused)
		return record.SessionID, !record.ContextInjected, nil
	}

	// Persisted-but-unverified record: try to resume it.
	if binding, ok := o.sessions.GetPersisted(req.ConversationID); ok {
		if binding.AgentName == req.AgentName {
			cwd := o.workingDirectory(binding.WorkingDirectory, profile)
			resumedID, err := o.client.LoadSession(ctx, binding.SessionID, cwd)
			if err == nil {
				o.sessions.Upsert(req.ConversationID, resumedID, req.AgentName, cwd)
				// The agent already replayed this session's history, so the
				// context prefix has effectively been delivered.
				o.sessions.MarkContextInjected(req.ConversationID)
				o.metrics.IncSessionOutcome(outcomeResumed)
				return resumedID, false, nil
			}
			o.logger.Info("resume of session %s failed (%v), creating a fresh one", binding.SessionID, err)
			o.sessions.Clear(req.ConversationID)
			return o.createWithContext(ctx, req, profile, binding.WorkingDirectory)
		}

		// The conversation switched agents; drop the stale binding rather
		// than letting dormant records accumulate.
		o.logger.Info("conversation %s switched agent %s -> %s, clearing old session",
			req.ConversationID, binding.AgentName, req.AgentName)
		o.sessions.Clear(req.ConversationID)
	}

	return o.createWithContext(ctx, req, profile, "")
}

func (o *Orchestrator) createWithContext(ctx context.Context, req Request, profile *config.AgentProfile, preferredCwd string) (string, bool, error) {
	sessionID, err := o.createSession(ctx, req, profile, preferredCwd)
	if err != nil {
		return "", false, err
	}
	return sessionID, !o.sessions.HasContextInjected(req.ConversationID), nil
}

func (o *Orchestrator) createSession(ctx context.Context, req Request, profile *config.AgentProfile, preferredCwd string) (string, error) {
	cwd := o.workingDirectory(preferredCwd, profile)
	sessionID, err := o.client.CreateSession(ctx, cwd)
	if err != nil {
		return "", err
	}
	o.sessions.Upsert(req.ConversationID, sessionID, req.AgentName, cwd)
	o.metrics.IncSessionOutcome(outcomeCreated)
	return sessionID, nil
}

// workingDirectory picks the cwd for session calls: the persisted one if
// known, else the profile's configured directory, else the process default.
func (o *Orchestrator) workingDirectory(persisted string, profile *config.AgentProfile) string {
	if persisted != "" {
		return persisted
	}
	if profile != nil && profile.WorkingDirectory != "" {
		return profile.WorkingDirectory
	}
	return o.defaultCwd
}

func (o *Orchestrator) resolveProfile(agentName string) *config.AgentProfile {
	if o.cfg == nil {
		return nil
	}
	name := agentName
	if name == "" {
		name = o.cfg.DefaultAgent
	}
	if profile, ok := o.cfg.AgentByName(name); ok {
		return &profile
	}
	return nil
}

// AdoptExternalSession resumes an agent session that was recorded outside
// this process (for example by the agent's own CLI) and binds it to a brand
// new conversation. The agent replays the session's history on load, so the
// context prefix is treated as already delivered.
func (o *Orchestrator) AdoptExternalSession(ctx context.Context, agentName, sessionID, workspacePath string) (string, error) {
	profile := o.resolveProfile(agentName)
	if profile != nil && agentName == "" {
		agentName = profile.Name
	}
	cwd := o.workingDirectory(workspacePath, profile)
	resumedID, err := o.client.LoadSession(ctx, sessionID, cwd)
	if err != nil {
		return "", err
	}
	conversationID := uuid.NewString()
	o.sessions.Upsert(conversationID, resumedID, agentName, cwd)
	o.sessions.MarkContextInjected(conversationID)
	o.metrics.IncSessionOutcome(outcomeResumed)
	o.logger.Info("adopted external session %s as conversation %s", sessionID, conversationID)
	return conversationID, nil
}

// ResumeForContinue drives the "load persisted session" path on behalf of an
// external-history continue action: it verifies the persisted binding with
// the agent and leaves the store ready for a normal Run to reuse it.
func (o *Orchestrator) ResumeForContinue(ctx context.Context, conversationID string) (string, error) {
	binding, ok := o.sessions.GetPersisted(conversationID)
	if !ok {
		return "", errNoPersistedSession
	}
	profile := o.resolveProfile(binding.AgentName)
	cwd := o.workingDirectory(binding.WorkingDirectory, profile)
	resumedID, err := o.client.LoadSession(ctx, binding.SessionID, cwd)
	if err != nil {
		o.sessions.Clear(conversationID)
		return "", err
	}
	o.sessions.Upsert(conversationID, resumedID, binding.AgentName, cwd)
	o.sessions.MarkContextInjected(conversationID)
	return resumedID, nil
}

// StopSession is the emergency-stop entry point: it clears tool-call state
// and cross-references for everything mapped to uiSessionID. Persisted
// session records stay; the agent session may remain resumable.
func (o *Orchestrator) StopSession(uiSessionID string) {
	o.tracker.ClearUISession(uiSessionID)
}
