// Package session implements the coordination core of turnwire: a
// deterministic five-state machine per conversation and the controller
// that drives it from a transport's event stream.
//
// # Architecture Overview
//
// The package is built around two components:
//
//   - Machine: the state machine (idle, sending, streaming, complete,
//     error) owning the accumulating Context
//   - Controller: the public orchestrator wiring transport dispatch, the
//     event demultiplexer, and the latency tracker around one Machine
//
// # State Machine
//
// A turn follows idle -> sending -> streaming -> complete | error. From
// complete or error a new send starts over and reset returns to idle.
// Every transition is a synchronous reaction to one event; pairs outside
// the table are no-ops rather than failures, which is what makes
// duplicate terminal events, stray tool results, and unknown wire tags
// safe to receive:
//
//	m := session.NewMachine()
//	m.Send("req_01H...", "sess-1")
//	m.Apply(&types.TextEvent{Content: "Hel"})
//	m.Apply(&types.TextEvent{Content: "lo"})
//	m.Apply(&types.CompleteEvent{DurationMs: 900})
//	m.State() // complete, context text "Hello"
//
// The Context is owned by the machine alone. Text and reasoning are
// append-only within a turn, tool executions live in a map keyed by tool
// id and settle at most once, and exactly one of the error or completion
// fields is set in the matching terminal state. An error transition
// keeps partial output so callers can still render what was produced.
//
// # Controller
//
// The Controller exposes the session to the rest of the system:
//
//	ctrl := session.NewController(trans, demux, tracker)
//	requestID, err := ctrl.Send(ctx, "Explain this stack trace", sessionID)
//
// Send dispatches through the transport, starts the latency clock,
// moves the machine to sending, and subscribes the demultiplexer to the
// returned request id. Each delivered envelope drives one Apply; the
// first text or tool-start event stops the latency clock; complete and
// error tear the subscription down and clear the latency entry.
//
// A send while a turn is still in flight supersedes it: the newest
// request id wins correlation and the old id's events are dropped as
// foreign. A failed dispatch becomes an error transition, so observers
// see the failure in state, and the error is returned to the call site.
//
// Observers read point-in-time snapshots or register for changes:
//
//	obs := ctrl.Snapshot() // state, copied context, isLoading/isError/isComplete
//	remove := ctrl.OnChange(func(obs types.Observable) { ... })
//	defer remove()
//
// # Thread Safety
//
// Machine is not safe for concurrent use; the Controller serializes all
// access to it. Controllers are independent of each other, so one
// process can coordinate many conversations against a shared transport
// and demultiplexer.
package session
