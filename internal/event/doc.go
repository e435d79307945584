/*
Package event provides the request-scoped envelope demultiplexer for the
turnwire coordinator.

A single transport connection carries envelopes for every in-flight request.
The demultiplexer routes each envelope to the handlers registered for its
request id, so a consumer sees only the stream it asked for, in the order
the transport produced it.

# Architecture

The package is built on top of watermill's gochannel for infrastructure while
delivering request-scoped handlers by direct call to preserve ordering. Every
published envelope is also relayed onto a watermill topic for feed consumers
(SSE, WebSocket, sinks) that tolerate channel semantics.

# Routing Rules

An envelope is delivered to a handler when its RequestID matches the id the
handler subscribed under. Everything else is dropped for that handler:

  - Envelopes tagged with a different request id
  - Envelopes for a request whose subscription was already removed
  - Envelopes arriving after unsubscribe, even mid-stream

Global handlers registered with SubscribeAll receive every envelope
regardless of request id.

# Basic Usage

Subscribing to one request's stream:

	unsubscribe := demux.Subscribe(requestID, func(env types.Envelope) {
		machine.Apply(env.Event)
	})
	defer unsubscribe()

Unsubscribe is idempotent; calling it twice is harmless. Subscribing to all
traffic:

	unsubscribe := demux.SubscribeAll(func(env types.Envelope) {
		log.Debug().Str("requestId", env.RequestID).Msg("envelope")
	})
	defer unsubscribe()

Publishing (normally done by a transport):

	demux.Publish(types.NewEnvelope(requestID, sessionID, &types.TextEvent{
		Content: chunk,
	}))

# Subscriber Safety Guidelines

Handlers run synchronously in the publisher's goroutine so that a request's
envelopes arrive in publish order. To avoid stalling the transport, handlers
MUST:

  - Complete quickly (avoid long-running operations)
  - Use non-blocking channel sends (select with default case)
  - Never call Publish from within a handler (no re-entrant publishing)
  - Never acquire locks that the publisher might hold

Example of a safe handler:

	demux.SubscribeAll(func(env types.Envelope) {
	    select {
	    case feed <- env:
	    default:
	        log.Warn().Str("requestId", env.RequestID).Msg("feed full, envelope dropped")
	    }
	})

# Relay

Consumers that want channel semantics instead of callbacks read the watermill
relay topic:

	msgs, err := demux.Relay(ctx)
	if err != nil {
	    return err
	}
	for msg := range msgs {
	    var env types.Envelope
	    if err := json.Unmarshal(msg.Payload, &env); err == nil {
	        feed(env)
	    }
	    msg.Ack()
	}

Messages must be acked or the gochannel subscriber stalls.

# Thread Safety

The demultiplexer is safe for concurrent use. Subscribe, unsubscribe, and
Publish may be called from multiple goroutines; handler registration is
protected by internal synchronization.
*/
package event
