package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// Publisher receives the envelopes running calls produce. The transport
// layer passes its demultiplexer through.
type Publisher interface {
	Publish(types.Envelope)
}

// Call is one model-requested tool invocation inside a turn. ID is the
// provider's call id and becomes the toolId on the wire.
type Call struct {
	ID        string
	Name      string
	Input     json.RawMessage
	RequestID string
	SessionID string
}

// Runner executes model-requested calls against a registry, each in its own
// goroutine, publishing a tool_start envelope when a call launches and a
// tool_complete when it settles. Result payloads are JSON strings: the
// tool's output on success, the failure message on error. Unknown tool
// names settle as errors rather than failing the turn.
type Runner struct {
	registry *Registry
	pub      Publisher
	workDir  string
	log      zerolog.Logger
}

// NewRunner creates a runner publishing through pub.
func NewRunner(registry *Registry, pub Publisher, workDir string) *Runner {
	return &Runner{
		registry: registry,
		pub:      pub,
		workDir:  workDir,
		log:      logging.Component("tool"),
	}
}

// Registry returns the registry the runner executes against.
func (r *Runner) Registry() *Registry {
	return r.registry
}

// RunAll executes the calls concurrently and blocks until every one has
// published its completion. The returned map carries each call's output
// keyed by call id, ready to feed back to the model; failed calls map to
// an error line so the model sees what went wrong.
func (r *Runner) RunAll(ctx context.Context, calls []Call) map[string]string {
	results := make([]string, len(calls))

	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = r.run(gctx, call)
			return nil // Don't propagate errors - we want partial results
		})
	}
	_ = g.Wait()

	outputs := make(map[string]string, len(calls))
	for i, call := range calls {
		outputs[call.ID] = results[i]
	}
	return outputs
}

// run executes one call and returns the output destined for the model's
// tool result slot.
func (r *Runner) run(ctx context.Context, call Call) string {
	r.publish(call, &types.ToolStartEvent{
		ToolID:   call.ID,
		ToolName: call.Name,
		Input:    call.Input,
	})

	started := time.Now()

	t, ok := r.registry.Get(call.Name)
	if !ok {
		return r.fail(call, started, fmt.Sprintf("tool not found: %s", call.Name))
	}

	toolCtx := &Context{
		RequestID: call.RequestID,
		SessionID: call.SessionID,
		CallID:    call.ID,
		WorkDir:   r.workDir,
	}

	result, err := t.Execute(ctx, call.Input, toolCtx)
	if err != nil {
		return r.fail(call, started, err.Error())
	}

	payload, _ := json.Marshal(result.Output)
	r.publish(call, &types.ToolCompleteEvent{
		ToolID:     call.ID,
		Result:     payload,
		DurationMs: time.Since(started).Milliseconds(),
	})

	r.log.Debug().
		Str("tool", call.Name).
		Str("callId", call.ID).
		Int64("durationMs", time.Since(started).Milliseconds()).
		Msg("Tool call completed")

	return result.Output
}

// fail publishes an errored completion and returns the line the model will
// see in the tool result slot.
func (r *Runner) fail(call Call, started time.Time, msg string) string {
	r.log.Warn().
		Str("tool", call.Name).
		Str("callId", call.ID).
		Msg(msg)

	payload, _ := json.Marshal(msg)
	r.publish(call, &types.ToolCompleteEvent{
		ToolID:     call.ID,
		Result:     payload,
		IsError:    true,
		DurationMs: time.Since(started).Milliseconds(),
	})

	return "Error: " + msg
}

func (r *Runner) publish(call Call, ev types.Event) {
	r.pub.Publish(types.NewEnvelope(call.RequestID, call.SessionID, ev))
}
