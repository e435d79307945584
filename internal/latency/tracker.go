// Package latency measures time-to-first-token per request.
package latency

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/metrics"
	"github.com/turnwire/turnwire/pkg/types"
)

// Threshold is the boundary above which a first token counts as slow.
const Threshold = 500 * time.Millisecond

type entry struct {
	start    time.Time
	measured bool
}

// Tracker records dispatch times and produces one first-token measurement
// per request. Thinking output does not count as a first token; only text
// or tool activity does, which is the caller's responsibility to enforce.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
	log     zerolog.Logger
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*entry),
		now:     time.Now,
		log:     logging.Component("latency"),
	}
}

// MarkStart records the dispatch time for a request. Calling it again for
// the same id restarts the measurement window.
func (t *Tracker) MarkStart(requestID string) {
	if requestID == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[requestID] = &entry{start: t.now()}
}

// MarkFirstToken closes the measurement window for a request. The first
// call returns the metric; later calls, and calls for ids without a
// recorded start, return nil.
func (t *Tracker) MarkFirstToken(requestID string) *types.LatencyMetric {
	t.mu.Lock()
	e, ok := t.entries[requestID]
	if !ok || e.measured {
		t.mu.Unlock()
		return nil
	}
	e.measured = true
	at := t.now()
	t.mu.Unlock()

	elapsed := at.Sub(e.start)
	metric := &types.LatencyMetric{
		RequestID:        requestID,
		FirstTokenMs:     elapsed.Milliseconds(),
		Timestamp:        at.UTC(),
		ExceedsThreshold: elapsed >= Threshold,
	}

	metrics.FirstTokenSeconds.Observe(elapsed.Seconds())
	evt := t.log.Info()
	if metric.ExceedsThreshold {
		metrics.SlowFirstTokens.Inc()
		evt = t.log.Warn()
	}
	evt.
		Str("requestId", metric.RequestID).
		Int64("firstTokenMs", metric.FirstTokenMs).
		Bool("exceedsThreshold", metric.ExceedsThreshold).
		Msg("first token")

	return metric
}

// Clear drops the entry for a request. Called when a turn completes,
// fails, or is superseded by a newer send.
func (t *Tracker) Clear(requestID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, requestID)
}

// Pending reports whether a request has a start recorded but no
// measurement yet.
func (t *Tracker) Pending(requestID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[requestID]
	return ok && !e.measured
}
