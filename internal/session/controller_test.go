package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/transport"
	"github.com/turnwire/turnwire/pkg/types"
)

// fakeTransport records dispatches and lets the test emit stream events
// synchronously through the demultiplexer.
type fakeTransport struct {
	mu       sync.Mutex
	pub      transport.Publisher
	requests []transport.Request
	nextID   int
	failWith error
}

func (f *fakeTransport) Dispatch(ctx context.Context, req transport.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return "", f.failWith
	}
	f.requests = append(f.requests, req)
	f.nextID++
	return fmt.Sprintf("req_%d", f.nextID), nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) emit(requestID, sessionID string, ev types.Event) {
	f.pub.Publish(types.NewEnvelope(requestID, sessionID, ev))
}

func newTestController(t *testing.T) (*Controller, *fakeTransport, *latency.Tracker) {
	t.Helper()
	demux := event.NewDemux()
	t.Cleanup(func() { _ = demux.Close() })

	ft := &fakeTransport{pub: demux}
	tracker := latency.NewTracker()
	return NewController(ft, demux, tracker), ft, tracker
}

func TestController_SendHappyPath(t *testing.T) {
	c, ft, tracker := newTestController(t)

	reqID, err := c.Send(context.Background(), "hi", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "req_1", reqID)

	obs := c.Snapshot()
	assert.Equal(t, types.StateSending, obs.State)
	assert.True(t, obs.IsLoading)
	assert.Equal(t, "req_1", obs.Context.RequestID)
	assert.Equal(t, "sess-1", obs.Context.SessionID)
	assert.True(t, tracker.Pending(reqID))

	require.Len(t, ft.requests, 1)
	assert.Equal(t, "hi", ft.requests[0].Prompt)
	assert.Equal(t, "sess-1", ft.requests[0].SessionID)

	ft.emit(reqID, "sess-1", &types.StartEvent{})
	assert.Equal(t, types.StateStreaming, c.Snapshot().State)

	ft.emit(reqID, "sess-1", &types.TextEvent{Content: "Hel"})
	ft.emit(reqID, "sess-1", &types.TextEvent{Content: "lo"})
	ft.emit(reqID, "sess-1", &types.CompleteEvent{
		DurationMs:  900,
		CostUSD:     ptrFloat(0.001),
		TotalTokens: ptrInt(5),
	})

	obs = c.Snapshot()
	assert.Equal(t, types.StateComplete, obs.State)
	assert.True(t, obs.IsComplete)
	assert.False(t, obs.IsLoading)
	assert.Equal(t, "Hello", obs.Context.Text)
	require.NotNil(t, obs.Context.Completion)
	assert.Equal(t, int64(900), obs.Context.Completion.DurationMs)
	assert.Equal(t, 0.001, *obs.Context.Completion.CostUSD)
	assert.Equal(t, 5, *obs.Context.Completion.TotalTokens)

	// Completion clears the latency entry.
	assert.False(t, tracker.Pending(reqID))
}

func TestController_FirstTokenMarking(t *testing.T) {
	c, ft, tracker := newTestController(t)

	reqID, err := c.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.True(t, tracker.Pending(reqID))

	// Stream open and reasoning are not perceptible output.
	ft.emit(reqID, "", &types.StartEvent{})
	assert.True(t, tracker.Pending(reqID))
	ft.emit(reqID, "", &types.ThinkingEvent{Content: "pondering"})
	assert.True(t, tracker.Pending(reqID))

	// The first text chunk is.
	ft.emit(reqID, "", &types.TextEvent{Content: "H"})
	assert.False(t, tracker.Pending(reqID))
}

func TestController_ToolStartMarksFirstToken(t *testing.T) {
	c, ft, tracker := newTestController(t)

	reqID, err := c.Send(context.Background(), "hi", "")
	require.NoError(t, err)

	ft.emit(reqID, "", &types.ToolStartEvent{ToolID: "t1", ToolName: "search"})
	assert.False(t, tracker.Pending(reqID))
}

func TestController_SupersedeDropsOldEvents(t *testing.T) {
	c, ft, tracker := newTestController(t)

	first, err := c.Send(context.Background(), "one", "")
	require.NoError(t, err)
	ft.emit(first, "", &types.TextEvent{Content: "old "})
	assert.Equal(t, "old ", c.Snapshot().Context.Text)

	second, err := c.Send(context.Background(), "two", "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.False(t, tracker.Pending(first))
	assert.True(t, tracker.Pending(second))

	// Late events for the superseded id are foreign now.
	ft.emit(first, "", &types.TextEvent{Content: "stale"})
	ft.emit(first, "", &types.CompleteEvent{DurationMs: 1})

	obs := c.Snapshot()
	assert.Equal(t, types.StateSending, obs.State)
	assert.Equal(t, "req_2", obs.Context.RequestID)
	assert.Empty(t, obs.Context.Text)

	ft.emit(second, "", &types.TextEvent{Content: "new"})
	assert.Equal(t, "new", c.Snapshot().Context.Text)
}

func TestController_DispatchFailure(t *testing.T) {
	c, ft, _ := newTestController(t)
	ft.failWith = errors.New("401 unauthorized")

	reqID, err := c.Send(context.Background(), "hi", "")
	assert.Error(t, err)
	assert.Empty(t, reqID)

	obs := c.Snapshot()
	assert.Equal(t, types.StateError, obs.State)
	assert.True(t, obs.IsError)
	require.NotNil(t, obs.Context.Error)
	assert.Equal(t, types.ErrCodeAuth, obs.Context.Error.Code)
	assert.False(t, obs.Context.Error.Recoverable)

	// A failed dispatch still leaves the session retryable.
	ft.failWith = nil
	_, err = c.Send(context.Background(), "hi again", "")
	assert.NoError(t, err)
	assert.Equal(t, types.StateSending, c.Snapshot().State)
}

func TestController_ErrorTurnPreservesPartialOutput(t *testing.T) {
	c, ft, tracker := newTestController(t)

	reqID, err := c.Send(context.Background(), "hi", "")
	require.NoError(t, err)

	ft.emit(reqID, "", &types.TextEvent{Content: "partial"})
	ft.emit(reqID, "", &types.ErrorEvent{Code: "1002", Message: "net down", Recoverable: true})

	obs := c.Snapshot()
	assert.Equal(t, types.StateError, obs.State)
	assert.Equal(t, "partial", obs.Context.Text)
	assert.True(t, obs.Context.Error.Recoverable)
	assert.False(t, tracker.Pending(reqID))

	// The subscription is gone; nothing more lands.
	ft.emit(reqID, "", &types.TextEvent{Content: " more"})
	assert.Equal(t, "partial", c.Snapshot().Context.Text)
}

func TestController_ResetOnlyFromTerminal(t *testing.T) {
	c, ft, _ := newTestController(t)

	assert.False(t, c.Reset(), "reset from idle must be a no-op")

	reqID, err := c.Send(context.Background(), "hi", "sess-1")
	require.NoError(t, err)
	assert.False(t, c.Reset(), "reset from sending must be a no-op")

	ft.emit(reqID, "sess-1", &types.TextEvent{Content: "x"})
	assert.False(t, c.Reset(), "reset from streaming must be a no-op")
	assert.Equal(t, types.StateStreaming, c.Snapshot().State)

	ft.emit(reqID, "sess-1", &types.CompleteEvent{DurationMs: 1})
	assert.True(t, c.Reset())

	obs := c.Snapshot()
	assert.Equal(t, types.StateIdle, obs.State)
	assert.Empty(t, obs.Context.SessionID)
	assert.Empty(t, obs.Context.Text)
}

func TestController_OnChange(t *testing.T) {
	c, ft, _ := newTestController(t)

	var mu sync.Mutex
	var states []types.State
	remove := c.OnChange(func(obs types.Observable) {
		mu.Lock()
		states = append(states, obs.State)
		mu.Unlock()
	})

	reqID, err := c.Send(context.Background(), "hi", "")
	require.NoError(t, err)
	ft.emit(reqID, "", &types.TextEvent{Content: "a"})
	ft.emit(reqID, "", &types.CompleteEvent{DurationMs: 1})

	mu.Lock()
	got := append([]types.State(nil), states...)
	mu.Unlock()
	assert.Equal(t, []types.State{
		types.StateSending,
		types.StateStreaming,
		types.StateComplete,
	}, got)

	remove()
	remove() // safe to call twice

	c.Reset()
	mu.Lock()
	assert.Len(t, states, 3, "removed listener must not fire")
	mu.Unlock()
}

func TestController_IndependentControllers(t *testing.T) {
	demux := event.NewDemux()
	t.Cleanup(func() { _ = demux.Close() })

	ft := &fakeTransport{pub: demux}
	tracker := latency.NewTracker()
	c1 := NewController(ft, demux, tracker)
	c2 := NewController(ft, demux, tracker)

	req1, err := c1.Send(context.Background(), "one", "")
	require.NoError(t, err)
	req2, err := c2.Send(context.Background(), "two", "")
	require.NoError(t, err)

	ft.emit(req1, "", &types.TextEvent{Content: "for one"})
	ft.emit(req2, "", &types.TextEvent{Content: "for two"})

	assert.Equal(t, "for one", c1.Snapshot().Context.Text)
	assert.Equal(t, "for two", c2.Snapshot().Context.Text)
}
