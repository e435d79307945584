// Package server exposes the coordinator over HTTP.
//
// It provides session lifecycle endpoints (create, list, inspect, delete),
// turn operations (send, reset), and real-time feeds of the envelope stream
// over Server-Sent Events and WebSocket. Each session is an independent
// controller; all sessions share one transport and one demultiplexer, so a
// feed client sees every session's envelopes unless it asks for a
// session-scoped feed.
//
// The SSE feeds emit each envelope as one data line of flat JSON, the same
// shape the SSE transport consumes, so one coordinator can relay through
// another. WriteTimeout stays zero to keep feed connections open; heartbeat
// comments every 30 seconds keep intermediaries from cutting them.
package server
