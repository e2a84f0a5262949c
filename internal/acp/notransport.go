package acp

import (
	"context"
	"errors"
)

// ErrNoTransport is returned by every call on a NoTransportClient.
var ErrNoTransport = errors.New("no agent transport connected")

// NoTransportClient is the SessionClient used when the daemon runs without
// an embedded agent connection: history browsing and progress delivery work,
// prompt driving fails with a structured transport error. Embedders supply a
// real client wired to their agent processes.
type NoTransportClient struct{}

func (NoTransportClient) CreateSession(context.Context, string) (string, error) {
	return "", NewTransportError("createSession", ErrNoTransport)
}

func (NoTransportClient) LoadSession(context.Context, string, string) (string, error) {
	return "", NewTransportError("loadSession", ErrNoTransport)
}

func (NoTransportClient) SendPrompt(context.Context, string, string) (PromptResult, error) {
	return PromptResult{}, NewTransportError("sendPrompt", ErrNoTransport)
}

func (NoTransportClient) Subscribe(string, NotificationHandler) func() {
	return func() {}
}

var _ SessionClient = NoTransportClient{}
