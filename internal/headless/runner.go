package headless

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/session"
	"github.com/turnwire/turnwire/internal/transport"
	"github.com/turnwire/turnwire/pkg/types"
)

// Runner executes one turn over an already-wired transport and reports the
// outcome. It owns a throwaway controller; the transport and demultiplexer
// are shared infrastructure handed in by the caller.
type Runner struct {
	trans   transport.Transport
	demux   *event.Demux
	tracker *latency.Tracker
	cfg     *Config
	log     zerolog.Logger
}

// NewRunner creates a runner over the given transport stack.
func NewRunner(trans transport.Transport, demux *event.Demux, tracker *latency.Tracker, cfg *Config) *Runner {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Runner{
		trans:   trans,
		demux:   demux,
		tracker: tracker,
		cfg:     cfg,
		log:     logging.Component("headless"),
	}
}

// Run drives the turn to a terminal state, streaming output to w, and
// returns the result. The error mirrors Result.Error for Go callers; the
// result is always non-nil so the exit code is available either way.
func (r *Runner) Run(ctx context.Context, w io.Writer) (*Result, error) {
	printer := NewPrinter(w, r.cfg.Format, r.cfg.Quiet)

	if r.cfg.Prompt == "" {
		err := errors.New("prompt is required")
		res := &Result{Status: "error", Error: err.Error(), ExitCode: ExitInvalidInput}
		printer.Summary(res)
		return res, err
	}

	sessionID := r.cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	ctrl := session.NewController(r.trans, r.demux, r.tracker)

	// Terminal transitions arrive through the controller's listener; the
	// session-scoped feed drives streaming output and the first-token
	// stopwatch for the summary.
	terminal := make(chan types.Observable, 1)
	unsubChange := ctrl.OnChange(func(obs types.Observable) {
		if obs.State == types.StateComplete || obs.State == types.StateError {
			select {
			case terminal <- obs:
			default:
			}
		}
	})
	defer unsubChange()

	var (
		mu         sync.Mutex
		firstToken time.Duration
	)
	started := time.Now()
	unsubFeed := r.demux.SubscribeAll(func(env types.Envelope) {
		if env.SessionID != sessionID {
			return
		}
		mu.Lock()
		if firstToken == 0 {
			switch env.Event.(type) {
			case *types.TextEvent, *types.ToolStartEvent:
				firstToken = time.Since(started)
			}
		}
		mu.Unlock()
		printer.Envelope(env)
	})
	defer unsubFeed()

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	requestID, err := ctrl.Send(runCtx, r.cfg.Prompt, sessionID)
	if err != nil {
		info := transport.ClassifyError(err)
		res := r.result(ctrl.Snapshot(), sessionID, requestID, started, 0)
		res.Status = "error"
		res.Error = info.Message
		res.ExitCode = exitCodeFor(info)
		printer.Summary(res)
		return res, err
	}

	select {
	case obs := <-terminal:
		mu.Lock()
		ft := firstToken
		mu.Unlock()

		res := r.result(obs, sessionID, requestID, started, ft)
		if err := printer.Summary(res); err != nil {
			return res, err
		}
		if obs.State == types.StateError {
			return res, errors.New(res.Error)
		}
		return res, nil

	case <-runCtx.Done():
		res := r.result(ctrl.Snapshot(), sessionID, requestID, started, 0)
		res.Status = "timeout"
		res.Error = runCtx.Err().Error()
		res.ExitCode = ExitTimeout
		printer.Summary(res)
		return res, runCtx.Err()
	}
}

// result assembles the Result from a snapshot.
func (r *Runner) result(obs types.Observable, sessionID, requestID string, started time.Time, firstToken time.Duration) *Result {
	res := &Result{
		SessionID:  sessionID,
		RequestID:  requestID,
		Status:     string(obs.State),
		DurationMs: time.Since(started).Milliseconds(),
		ExitCode:   ExitSuccess,
	}
	if firstToken > 0 {
		res.FirstTokenMs = firstToken.Milliseconds()
	}

	ctx := obs.Context
	if ctx == nil {
		return res
	}
	res.Text = ctx.Text
	res.Reasoning = ctx.Reasoning
	for _, t := range ctx.Tools {
		res.Tools = append(res.Tools, ToolSummary{
			Tool:       t.Name,
			Status:     string(t.Status),
			DurationMs: t.DurationMs,
			Error:      t.ErrorMessage,
		})
	}
	if ctx.Completion != nil {
		res.DurationMs = ctx.Completion.DurationMs
		res.CostUSD = ctx.Completion.CostUSD
		res.TotalTokens = ctx.Completion.TotalTokens
	}
	if ctx.Error != nil {
		res.Error = ctx.Error.Message
		res.ExitCode = exitCodeFor(ctx.Error)
	}
	return res
}

// exitCodeFor maps the error taxonomy onto exit codes.
func exitCodeFor(info *types.ErrorInfo) ExitCode {
	if info == nil {
		return ExitError
	}
	switch info.Code {
	case types.ErrCodeAuth, types.ErrCodeRateLimited:
		return ExitProviderErr
	default:
		return ExitError
	}
}
