package acp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
)

// TransportError reports a failed call against the agent process: the
// subprocess died, the pipe closed, or the response was malformed.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "acp transport error"
	}
	op := strings.TrimSpace(e.Op)
	if op == "" {
		return fmt.Sprintf("acp transport error: %v", e.Err)
	}
	return fmt.Sprintf("acp %s failed: %v", op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps err as a transport failure for the named operation.
func NewTransportError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransportError{Op: op, Err: err}
}

// IsRetryableError reports whether an ACP transport error is safe to retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
