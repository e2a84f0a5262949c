package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/aj47/acp-remote/internal/conversation"
	"github.com/aj47/acp-remote/internal/history"
	"github.com/aj47/acp-remote/internal/logging"
	"github.com/aj47/acp-remote/internal/orchestrator"
	"github.com/aj47/acp-remote/internal/progress"
)

type fakeRunner struct {
	lastRequest orchestrator.Request
	result      orchestrator.Result
	stopped     []string
}

func (r *fakeRunner) Run(_ context.Context, req orchestrator.Request) orchestrator.Result {
	r.lastRequest = req
	return r.result
}

func (r *fakeRunner) StopSession(uiSessionID string) {
	r.stopped = append(r.stopped, uiSessionID)
}

type testEnv struct {
	server *Server
	runner *fakeRunner
	hub    *progress.Hub
	convs  *conversation.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	runner := &fakeRunner{result: orchestrator.Result{Success: true, Response: "done", AgentSessionID: "sess-1"}}
	hub := progress.NewHub(logging.Nop())
	convs := conversation.NewStore(t.TempDir(), logging.Nop())
	aggregator := history.NewAggregator(nil, convs, logging.Nop())

	server := NewServer(Params{
		Addr:          "127.0.0.1:0",
		Runner:        runner,
		Aggregator:    aggregator,
		Conversations: convs,
		Hub:           hub,
		Logger:        logging.Nop(),
	})
	return &testEnv{server: server, runner: runner, hub: hub, convs: convs}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, decodeResponse(t, recorder).Success)
}

func TestPrompt(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/prompt", PromptRequest{
		ConversationID: "c1",
		UISessionID:    "ui-1",
		Agent:          "claude",
		Message:        "hello",
	})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.True(t, decodeResponse(t, recorder).Success)
	require.Equal(t, "c1", env.runner.lastRequest.ConversationID)
	require.Equal(t, "hello", env.runner.lastRequest.Transcript)
	require.Equal(t, "claude", env.runner.lastRequest.AgentName)
}

func TestPromptGeneratesIDs(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/prompt", PromptRequest{Message: "hello"})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NotEmpty(t, env.runner.lastRequest.ConversationID)
	require.NotEmpty(t, env.runner.lastRequest.UISessionID)
}

func TestPromptValidation(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/prompt", PromptRequest{ConversationID: "c1"})
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestPromptFailurePropagates(t *testing.T) {
	env := newTestEnv(t)
	env.runner.result = orchestrator.Result{Success: false, Error: "agent crashed"}
	recorder := env.do(t, http.MethodPost, "/api/prompt", PromptRequest{ConversationID: "c1", Message: "hello"})
	require.Equal(t, http.StatusBadGateway, recorder.Code)
	resp := decodeResponse(t, recorder)
	require.False(t, resp.Success)
	require.Contains(t, resp.Error, "agent crashed")
}

func TestStop(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/stop", StopRequest{UISessionID: "ui-1"})
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Equal(t, []string{"ui-1"}, env.runner.stopped)
}

func TestProgressLatest(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Publish(progress.Snapshot{ConversationID: "c1", StreamingContent: progress.StreamingContent{Text: "partial"}})

	recorder := env.do(t, http.MethodGet, "/api/progress/c1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "partial")
}

func TestProgressEmptyWithoutWait(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/api/progress/unknown", nil)
	require.Equal(t, http.StatusNoContent, recorder.Code)
}

func TestProgressLongPoll(t *testing.T) {
	env := newTestEnv(t)
	go func() {
		time.Sleep(50 * time.Millisecond)
		env.hub.Publish(progress.Snapshot{ConversationID: "c1", IsComplete: true})
	}()

	recorder := env.do(t, http.MethodGet, "/api/progress/c1?wait=true", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "isComplete")
}

func TestHistoryList(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.convs.Append("c1", conversation.Message{Role: "user", Content: "local question"}))

	recorder := env.do(t, http.MethodGet, "/api/history?limit=10", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "local question")

	recorder = env.do(t, http.MethodGet, "/api/history?limit=nope", nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestHistorySessionNotFound(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodGet, "/api/history/mystery/s1", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestHistoryContinueUnknownSource(t *testing.T) {
	env := newTestEnv(t)
	recorder := env.do(t, http.MethodPost, "/api/history/continue", ContinueRequest{Source: "mystery", SessionID: "s1"})
	require.Equal(t, http.StatusBadGateway, recorder.Code)
	require.Contains(t, decodeResponse(t, recorder).Error, "unknown history source")
}

func TestConversationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.convs.Append("c1", conversation.Message{Role: "user", Content: "hi"}))

	recorder := env.do(t, http.MethodGet, "/api/conversations", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.Contains(t, recorder.Body.String(), "c1")

	recorder = env.do(t, http.MethodGet, "/api/conversations/c1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.do(t, http.MethodDelete, "/api/conversations/c1", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	recorder = env.do(t, http.MethodGet, "/api/conversations/c1", nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStreamDeliversSnapshots(t *testing.T) {
	env := newTestEnv(t)
	env.hub.Publish(progress.Snapshot{ConversationID: "c1", StreamingContent: progress.StreamingContent{Text: "a"}})

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream/c1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Retained snapshot arrives first.
	var first progress.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "a", first.StreamingContent.Text)

	env.hub.Publish(progress.Snapshot{ConversationID: "c1", StreamingContent: progress.StreamingContent{Text: "ab"}})
	var second progress.Snapshot
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "ab", second.StreamingContent.Text)
}
