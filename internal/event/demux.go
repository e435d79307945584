// Package event provides the demultiplexer that correlates stream events
// with the request they belong to, using watermill for relay fan-out.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// TopicEnvelopes is the watermill topic carrying marshalled envelopes for
// relay consumers (SSE, WebSocket, sinks).
const TopicEnvelopes = "turn.envelopes"

// Handler receives envelopes for a subscription.
type Handler func(env types.Envelope)

// subscriberEntry wraps a handler with an ID.
type subscriberEntry struct {
	id uint64
	fn Handler
}

// Demux routes each published envelope to the handlers subscribed to its
// request id, dropping envelopes nobody claims: foreign ids, superseded ids,
// and anything arriving after unsubscribe. Delivery happens in the
// publisher's goroutine, so envelopes published from one transport loop
// reach a handler in publish order.
//
// Relay consumers that want every envelope regardless of request id attach
// through SubscribeAll or through the watermill channel returned by Relay.
type Demux struct {
	mu sync.RWMutex

	// Watermill pub/sub carrying marshalled envelopes to relay consumers.
	pubsub *gochannel.GoChannel

	// Direct handler tracking, keyed by request id.
	byRequest map[string][]subscriberEntry
	global    []subscriberEntry

	nextID uint64
	closed bool
}

// NewDemux creates a demultiplexer.
func NewDemux() *Demux {
	return &Demux{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		byRequest: make(map[string][]subscriberEntry),
	}
}

// newID generates a unique subscriber ID.
func (d *Demux) newID() uint64 {
	return atomic.AddUint64(&d.nextID, 1)
}

// Subscribe registers a handler for one request id and returns an
// unsubscribe function. Unsubscribing is safe to call more than once and
// safe after Close.
func (d *Demux) Subscribe(requestID string, fn Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}

	id := d.newID()
	entry := subscriberEntry{id: id, fn: fn}
	d.byRequest[requestID] = append(d.byRequest[requestID], entry)

	return func() {
		d.unsubscribe(requestID, id)
	}
}

// SubscribeAll registers a handler for every envelope.
// Returns an unsubscribe function.
func (d *Demux) SubscribeAll(fn Handler) func() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return func() {}
	}

	id := d.newID()
	entry := subscriberEntry{id: id, fn: fn}
	d.global = append(d.global, entry)

	return func() {
		d.unsubscribeGlobal(id)
	}
}

// unsubscribe removes a handler for a request id.
func (d *Demux) unsubscribe(requestID string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.byRequest[requestID]
	for i, entry := range subs {
		if entry.id == id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(d.byRequest, requestID)
	} else {
		d.byRequest[requestID] = subs
	}
}

// unsubscribeGlobal removes a global handler.
func (d *Demux) unsubscribeGlobal(id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, entry := range d.global {
		if entry.id == id {
			d.global = append(d.global[:i], d.global[i+1:]...)
			break
		}
	}
}

// Publish delivers an envelope to the handlers subscribed to its request id
// and to all global handlers, synchronously in the caller's goroutine. The
// envelope is also forwarded onto the watermill relay topic. Handlers must
// return quickly; anything slow belongs behind its own buffered channel.
func (d *Demux) Publish(env types.Envelope) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return
	}

	subs := make([]Handler, 0, len(d.byRequest[env.RequestID])+len(d.global))
	for _, entry := range d.byRequest[env.RequestID] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range d.global {
		subs = append(subs, entry.fn)
	}
	d.mu.RUnlock()

	for _, fn := range subs {
		fn(env)
	}

	d.relay(env)
}

// relay forwards the envelope to watermill consumers.
func (d *Demux) relay(env types.Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		logging.Error().Err(err).Str("requestId", env.RequestID).Msg("Failed to marshal envelope for relay")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := d.pubsub.Publish(TopicEnvelopes, msg); err != nil {
		logging.Debug().Err(err).Msg("Relay publish after close")
	}
}

// Relay returns a watermill subscription carrying every envelope published
// after the call, as marshalled JSON. Consumers must Ack each message. The
// channel closes when ctx is cancelled or the demux is closed.
func (d *Demux) Relay(ctx context.Context) (<-chan *message.Message, error) {
	return d.pubsub.Subscribe(ctx, TopicEnvelopes)
}

// Close drops all handlers and shuts the relay down.
func (d *Demux) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.byRequest = make(map[string][]subscriberEntry)
	d.global = nil
	d.mu.Unlock()

	return d.pubsub.Close()
}
