package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/latency"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/metrics"
	"github.com/turnwire/turnwire/internal/transport"
	"github.com/turnwire/turnwire/pkg/types"
)

type listenerEntry struct {
	id uint64
	fn func(types.Observable)
}

// Controller orchestrates one conversation: it dispatches turns to the
// transport, correlates the returned stream through the demultiplexer,
// drives the state machine, and forwards latency side effects. Controllers
// are independent; each owns its machine and active request id.
type Controller struct {
	mu sync.Mutex

	machine *Machine
	trans   transport.Transport
	demux   *event.Demux
	tracker *latency.Tracker
	log     zerolog.Logger

	active    string
	unsub     func()
	listeners []listenerEntry
	nextID    uint64
}

// NewController wires a controller over a transport, demultiplexer, and
// latency tracker. The demultiplexer must be the one the transport
// publishes into.
func NewController(t transport.Transport, d *event.Demux, tr *latency.Tracker) *Controller {
	return &Controller{
		machine: NewMachine(),
		trans:   t,
		demux:   d,
		tracker: tr,
		log:     logging.Component("controller"),
	}
}

// Send dispatches a prompt and begins streaming its response. It returns
// the request id correlating the new turn. A send while a turn is still
// in flight supersedes it: the old subscription is torn down first and any
// late events for the old id are dropped as foreign.
//
// Dispatch failures do not surface as panics or bare errors alone: the
// machine transitions to error with the classified failure, and the error
// is also returned for the call site.
func (c *Controller) Send(ctx context.Context, prompt, sessionID string) (string, error) {
	c.mu.Lock()

	c.supersedeLocked()

	requestID, err := c.trans.Dispatch(ctx, transport.Request{Prompt: prompt, SessionID: sessionID})
	if err != nil {
		info := transport.ClassifyError(err)
		c.machine.Send("", sessionID)
		c.machine.Apply(&types.ErrorEvent{
			Code:        info.Code,
			Message:     info.Message,
			Recoverable: info.Recoverable,
		})
		metrics.TurnsTotal.WithLabelValues("error").Inc()
		obs := c.machine.Observable()
		ls := c.listenersLocked()
		c.mu.Unlock()

		c.log.Error().Err(err).Str("code", info.Code).Msg("Dispatch failed")
		notify(ls, obs)
		return "", err
	}

	c.tracker.MarkStart(requestID)
	c.machine.Send(requestID, sessionID)
	c.active = requestID
	c.unsub = c.demux.Subscribe(requestID, c.handleEnvelope)

	obs := c.machine.Observable()
	ls := c.listenersLocked()
	c.mu.Unlock()

	c.log.Info().
		Str("requestId", requestID).
		Str("sessionId", sessionID).
		Msg("Turn dispatched")
	notify(ls, obs)
	return requestID, nil
}

// supersedeLocked tears down the in-flight turn, if any, so a new request
// id can take over correlation.
func (c *Controller) supersedeLocked() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	if c.active == "" {
		return
	}
	c.tracker.Clear(c.active)
	metrics.TurnsTotal.WithLabelValues("superseded").Inc()
	c.log.Debug().Str("requestId", c.active).Msg("Turn superseded")
	c.active = ""
}

// Reset returns the session to idle. Valid only from complete or error;
// any other state is a no-op and Reset reports false.
func (c *Controller) Reset() bool {
	c.mu.Lock()
	changed := c.machine.Reset()
	var obs types.Observable
	var ls []listenerEntry
	if changed {
		obs = c.machine.Observable()
		ls = c.listenersLocked()
	}
	c.mu.Unlock()

	if changed {
		notify(ls, obs)
	}
	return changed
}

// Snapshot returns the current observable state with a copied context.
func (c *Controller) Snapshot() types.Observable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Observable()
}

// OnChange registers a listener invoked with a fresh snapshot after every
// state or context change. The returned function removes the listener and
// is safe to call more than once.
func (c *Controller) OnChange(fn func(types.Observable)) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listenerEntry{id: id, fn: fn})
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// handleEnvelope is the demultiplexer handler for the active request. It
// runs in the transport's publishing goroutine and must stay quick.
func (c *Controller) handleEnvelope(env types.Envelope) {
	c.mu.Lock()
	if env.RequestID == "" || env.RequestID != c.active {
		c.mu.Unlock()
		return
	}

	metrics.EventsTotal.WithLabelValues(env.Event.EventType()).Inc()

	// First perceptible output is text or tool activity. Stream-open
	// acknowledgements and reasoning do not stop the latency clock.
	switch env.Event.(type) {
	case *types.TextEvent, *types.ToolStartEvent:
		c.tracker.MarkFirstToken(env.RequestID)
	}

	changed := c.machine.Apply(env.Event)

	switch c.machine.State() {
	case types.StateComplete:
		c.finishLocked("complete")
	case types.StateError:
		c.finishLocked("error")
	}

	var obs types.Observable
	var ls []listenerEntry
	if changed {
		obs = c.machine.Observable()
		ls = c.listenersLocked()
	}
	c.mu.Unlock()

	if changed {
		notify(ls, obs)
	}
}

// finishLocked closes out the active turn on a terminal transition:
// subscription removed, latency entry cleared, outcome counted.
func (c *Controller) finishLocked(outcome string) {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
	if c.active == "" {
		return
	}
	c.tracker.Clear(c.active)
	metrics.TurnsTotal.WithLabelValues(outcome).Inc()
	for _, t := range c.machine.Context().Tools {
		metrics.ToolExecutions.WithLabelValues(string(t.Status)).Inc()
	}
	c.log.Info().
		Str("requestId", c.active).
		Str("outcome", outcome).
		Msg("Turn finished")
	c.active = ""
}

func (c *Controller) listenersLocked() []listenerEntry {
	ls := make([]listenerEntry, len(c.listeners))
	copy(ls, c.listeners)
	return ls
}

func notify(ls []listenerEntry, obs types.Observable) {
	for _, l := range ls {
		l.fn(obs)
	}
}
