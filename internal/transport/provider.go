package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/schema"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/provider"
	"github.com/turnwire/turnwire/internal/tool"
	"github.com/turnwire/turnwire/pkg/types"
)

const (
	// MaxRounds is the maximum number of completion rounds in one turn.
	MaxRounds = 50
	// MaxRetries is the maximum number of retries for API errors.
	MaxRetries = 3
	// RetryInitialInterval is the initial interval for exponential backoff.
	RetryInitialInterval = time.Second
	// RetryMaxInterval is the maximum interval for exponential backoff.
	RetryMaxInterval = 30 * time.Second
	// RetryMaxElapsedTime is the maximum total time for retries.
	RetryMaxElapsedTime = 2 * time.Minute

	// defaultMaxTokens applies when the model catalog carries no output cap.
	defaultMaxTokens = 8192
)

// newRetryBackoff creates an exponential backoff with jitter, capped by
// MaxRetries and cancelled with the context.
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = RetryInitialInterval
	b.MaxInterval = RetryMaxInterval
	b.MaxElapsedTime = RetryMaxElapsedTime
	b.RandomizationFactor = 0.5
	b.Multiplier = 2.0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, MaxRetries), ctx)
}

// ProviderTransport drives real model turns through the provider registry.
// Each dispatch streams one turn: text deltas become text events, reasoning
// deltas become thinking events, and completion metadata becomes the final
// complete event with usage-derived cost. With a tool runner attached,
// model-requested calls execute between completion rounds and their results
// feed the next round; without one, requested calls are announced and the
// turn ends.
type ProviderTransport struct {
	pub      Publisher
	registry *provider.Registry
	runner   *tool.Runner
	system   string

	ctx    context.Context
	cancel context.CancelFunc
	closed chan struct{}
	wg     sync.WaitGroup

	log zerolog.Logger
}

// ProviderOption configures a ProviderTransport.
type ProviderOption func(*ProviderTransport)

// WithRunner attaches a tool runner. Without one the transport only tracks
// tool requests, it never executes them.
func WithRunner(r *tool.Runner) ProviderOption {
	return func(t *ProviderTransport) {
		t.runner = r
	}
}

// WithSystemPrompt sets the system prompt sent with every turn.
func WithSystemPrompt(s string) ProviderOption {
	return func(t *ProviderTransport) {
		t.system = s
	}
}

// NewProviderTransport creates a transport backed by the given registry.
func NewProviderTransport(pub Publisher, registry *provider.Registry, opts ...ProviderOption) *ProviderTransport {
	ctx, cancel := context.WithCancel(context.Background())
	t := &ProviderTransport{
		pub:      pub,
		registry: registry,
		ctx:      ctx,
		cancel:   cancel,
		closed:   make(chan struct{}),
		log:      logging.Component("transport"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Dispatch resolves the configured model and drives the turn in the
// background. Resolution failures are returned directly so the caller can
// surface them without waiting on the stream.
func (t *ProviderTransport) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-t.closed:
		return "", fmt.Errorf("provider transport closed")
	default:
	}

	model, err := t.registry.DefaultModel()
	if err != nil {
		return "", err
	}
	prov, err := t.registry.Get(model.ProviderID)
	if err != nil {
		return "", err
	}

	requestID := NewRequestID()

	t.wg.Add(1)
	go t.drive(requestID, req, prov, model)

	return requestID, nil
}

// Close cancels in-flight turns and waits for their goroutines.
func (t *ProviderTransport) Close() error {
	select {
	case <-t.closed:
		return nil
	default:
		close(t.closed)
	}
	t.cancel()
	t.wg.Wait()
	return nil
}

// usageTotals sums token usage across the rounds of one turn.
type usageTotals struct {
	prompt     int
	completion int
	seen       bool
}

// drive runs the completion loop for one turn.
func (t *ProviderTransport) drive(requestID string, req Request, prov provider.Provider, model *types.Model) {
	defer t.wg.Done()

	ctx := t.ctx

	t.emit(requestID, req.SessionID, &types.StartEvent{})
	started := time.Now()

	messages := provider.PromptMessages(t.system, req.Prompt)

	var tools []*schema.ToolInfo
	if t.runner != nil && model.SupportsTools {
		tools = t.runner.Registry().ToolInfos()
	}

	maxTokens := model.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	usage := &usageTotals{}
	retryBackoff := newRetryBackoff(ctx)
	round := 0

	for {
		select {
		case <-ctx.Done():
			t.fail(requestID, req.SessionID, ctx.Err())
			return
		default:
		}

		if round >= MaxRounds {
			t.fail(requestID, req.SessionID, fmt.Errorf("tool round limit reached after %d rounds", round))
			return
		}

		stream, err := prov.CreateCompletion(ctx, &provider.CompletionRequest{
			Model:     model.ID,
			Messages:  messages,
			Tools:     tools,
			MaxTokens: maxTokens,
		})
		if err != nil {
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				t.fail(requestID, req.SessionID, err)
				return
			}
			t.log.Warn().Err(err).Str("requestId", requestID).Dur("retryIn", nextInterval).Msg("Completion request failed, retrying")
			time.Sleep(nextInterval)
			continue
		}

		res, err := t.consume(ctx, stream, requestID, req.SessionID)
		stream.Close()

		if err != nil {
			// A round that already streamed deltas cannot be replayed:
			// the events are out and would double up downstream.
			if res.emitted {
				t.fail(requestID, req.SessionID, err)
				return
			}
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				t.fail(requestID, req.SessionID, err)
				return
			}
			t.log.Warn().Err(err).Str("requestId", requestID).Dur("retryIn", nextInterval).Msg("Stream failed, retrying")
			time.Sleep(nextInterval)
			continue
		}

		retryBackoff.Reset()

		if res.usageSeen {
			usage.prompt += res.promptTokens
			usage.completion += res.completionTokens
			usage.seen = true
		}

		switch res.finishReason {
		case "stop", "end_turn":
			t.complete(requestID, req.SessionID, started, model, usage)
			return

		case "tool_use", "tool_calls":
			if t.runner == nil || len(res.calls) == 0 {
				// No runner: announce the requested calls so they are
				// tracked, then end the turn with them unresolved.
				for _, c := range res.calls {
					t.emit(requestID, req.SessionID, &types.ToolStartEvent{
						ToolID:   c.id,
						ToolName: c.name,
						Input:    c.input(),
					})
				}
				t.complete(requestID, req.SessionID, started, model, usage)
				return
			}

			calls := make([]tool.Call, len(res.calls))
			for i, c := range res.calls {
				calls[i] = tool.Call{
					ID:        c.id,
					Name:      c.name,
					Input:     c.input(),
					RequestID: requestID,
					SessionID: req.SessionID,
				}
			}
			outputs := t.runner.RunAll(ctx, calls)

			messages = append(messages, res.assistantMessage())
			for _, c := range res.calls {
				messages = append(messages, provider.ToolResultMessage(c.id, outputs[c.id]))
			}

			round++
			continue

		case "max_tokens", "length":
			// Truncated output is still a finished turn.
			t.complete(requestID, req.SessionID, started, model, usage)
			return

		case "error":
			if res.emitted {
				t.fail(requestID, req.SessionID, fmt.Errorf("provider reported a stream error"))
				return
			}
			nextInterval := retryBackoff.NextBackOff()
			if nextInterval == backoff.Stop {
				t.fail(requestID, req.SessionID, fmt.Errorf("stream error: max retries exceeded"))
				return
			}
			time.Sleep(nextInterval)
			continue

		default:
			// Unknown finish reason, treat as stop.
			t.complete(requestID, req.SessionID, started, model, usage)
			return
		}
	}
}

// roundResult accumulates one completion round.
type roundResult struct {
	finishReason     string
	text             string
	reasoning        string
	calls            []*pendingCall
	promptTokens     int
	completionTokens int
	usageSeen        bool

	// emitted reports whether any event from this round reached the wire.
	emitted bool
}

// pendingCall is a tool call assembled from stream fragments.
type pendingCall struct {
	id   string
	name string
	args string
}

// input returns the accumulated arguments as raw JSON, nil when empty.
func (c *pendingCall) input() json.RawMessage {
	if c.args == "" {
		return nil
	}
	return json.RawMessage(c.args)
}

// assistantMessage rebuilds the round as the assistant turn for the next
// completion request, tool calls included.
func (r *roundResult) assistantMessage() *schema.Message {
	toolCalls := make([]schema.ToolCall, len(r.calls))
	for i, c := range r.calls {
		toolCalls[i] = schema.ToolCall{
			ID: c.id,
			Function: schema.FunctionCall{
				Name:      c.name,
				Arguments: c.args,
			},
		}
	}
	return &schema.Message{
		Role:      schema.Assistant,
		Content:   r.text,
		ToolCalls: toolCalls,
	}
}

// consume reads one completion stream, emitting deltas as wire events.
// Message content and reasoning arrive cumulatively, so only the new suffix
// of each chunk is emitted. Tool-call fragments are keyed by index when the
// provider uses fragment indexing, by id otherwise, and their argument
// fragments concatenate.
func (t *ProviderTransport) consume(ctx context.Context, stream *provider.CompletionStream, requestID, sessionID string) (*roundResult, error) {
	res := &roundResult{}
	callsByKey := make(map[string]*pendingCall)

	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		msg, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return res, err
		}

		if len(msg.Content) > len(res.text) {
			delta := msg.Content[len(res.text):]
			res.text = msg.Content
			res.emitted = true
			t.emit(requestID, sessionID, &types.TextEvent{Content: delta})
		}

		if len(msg.ReasoningContent) > len(res.reasoning) {
			delta := msg.ReasoningContent[len(res.reasoning):]
			res.reasoning = msg.ReasoningContent
			res.emitted = true
			t.emit(requestID, sessionID, &types.ThinkingEvent{Content: delta})
		}

		for _, tc := range msg.ToolCalls {
			key := tc.ID
			if tc.Index != nil {
				key = fmt.Sprintf("idx_%d", *tc.Index)
			}
			call, ok := callsByKey[key]
			if !ok {
				call = &pendingCall{}
				callsByKey[key] = call
				res.calls = append(res.calls, call)
			}
			if tc.ID != "" {
				call.id = tc.ID
			}
			if tc.Function.Name != "" {
				call.name = tc.Function.Name
			}
			call.args += tc.Function.Arguments
		}

		if msg.ResponseMeta != nil {
			if msg.ResponseMeta.Usage != nil {
				res.promptTokens = msg.ResponseMeta.Usage.PromptTokens
				res.completionTokens = msg.ResponseMeta.Usage.CompletionTokens
				res.usageSeen = true
			}
			if msg.ResponseMeta.FinishReason != "" {
				res.finishReason = msg.ResponseMeta.FinishReason
				break
			}
		}
	}

	// Some providers stream calls without ids; settle on generated ones
	// before the ids go out on the wire.
	for _, c := range res.calls {
		if c.id == "" {
			c.id = fmt.Sprintf("call_%s", ulid.Make().String())
		}
	}

	if res.finishReason == "" {
		if len(res.calls) > 0 {
			res.finishReason = "tool_use"
		} else {
			res.finishReason = "stop"
		}
	}

	return res, nil
}

// complete emits the terminal complete event. Cost and token totals ride
// along only when the provider reported usage.
func (t *ProviderTransport) complete(requestID, sessionID string, started time.Time, model *types.Model, usage *usageTotals) {
	ev := &types.CompleteEvent{
		SessionID:  sessionID,
		DurationMs: time.Since(started).Milliseconds(),
	}
	if usage.seen {
		total := usage.prompt + usage.completion
		cost := model.Cost(usage.prompt, usage.completion)
		ev.TotalTokens = &total
		ev.CostUSD = &cost
	}
	t.emit(requestID, sessionID, ev)

	t.log.Debug().
		Str("requestId", requestID).
		Int64("durationMs", ev.DurationMs).
		Msg("Turn completed")
}

// fail classifies the error and emits the terminal error event.
func (t *ProviderTransport) fail(requestID, sessionID string, err error) {
	info := ClassifyError(err)
	t.log.Error().
		Str("requestId", requestID).
		Str("code", info.Code).
		Msg(info.Message)

	t.emit(requestID, sessionID, &types.ErrorEvent{
		Code:        info.Code,
		Message:     info.Message,
		Recoverable: info.Recoverable,
	})
}

func (t *ProviderTransport) emit(requestID, sessionID string, ev types.Event) {
	t.pub.Publish(types.NewEnvelope(requestID, sessionID, ev))
}
