// Package transport defines the channel that carries a turn to the
// generation service and streams its events back.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/turnwire/turnwire/pkg/types"
)

// Request describes one turn to dispatch.
type Request struct {
	Prompt    string
	SessionID string
}

// Publisher receives the envelopes a transport produces. The demultiplexer
// implements it; tests substitute their own.
type Publisher interface {
	Publish(types.Envelope)
}

// Transport dispatches turns to a generation service. Dispatch must return
// promptly with the request id; the stream itself arrives out-of-band
// through the Publisher the transport was constructed with, every envelope
// tagged with that id.
type Transport interface {
	Dispatch(ctx context.Context, req Request) (string, error)
	Close() error
}

// NewRequestID returns a fresh request correlation id.
func NewRequestID() string {
	return fmt.Sprintf("req_%s", ulid.Make().String())
}

// ClassifyError maps a dispatch or stream failure onto the error taxonomy.
// Unknown failures default to transient so callers may retry.
func ClassifyError(err error) *types.ErrorInfo {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return types.NewSetupError(err.Error())
	case errors.Is(err, context.Canceled):
		return types.NewAbortedError(err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewTransientError(err.Error())
	case errors.As(err, &netErr):
		return types.NewTransientError(err.Error())
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "unauthorized"), strings.Contains(msg, "invalid api key"),
		strings.Contains(msg, "authentication"):
		return types.NewAuthError(err.Error())
	case strings.Contains(msg, "429"), strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "quota"), strings.Contains(msg, "overloaded"):
		return types.NewRateLimitedError(err.Error())
	}
	return types.NewTransientError(err.Error())
}
