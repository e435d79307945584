package sink

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/event"
	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/internal/metrics"
	"github.com/turnwire/turnwire/pkg/types"
)

// sinkBuffer is the per-sink channel depth. When a sink falls this far
// behind, new envelopes for it are dropped and counted rather than queued.
const sinkBuffer = 256

// Manager fans the bus's envelope stream out to the configured sinks. Each
// sink drains its own buffered channel in its own goroutine, so the
// publisher never blocks on storage.
type Manager struct {
	sinks  []Sink
	chans  []chan types.Envelope
	unsub  func()
	cancel context.CancelFunc
	wg     sync.WaitGroup
	log    zerolog.Logger
}

// NewManager attaches the sinks to the demultiplexer's global feed and
// starts one drain goroutine per sink.
func NewManager(demux *event.Demux, sinks []Sink) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		sinks:  sinks,
		chans:  make([]chan types.Envelope, len(sinks)),
		cancel: cancel,
		log:    logging.Component("sink"),
	}

	for i, s := range sinks {
		ch := make(chan types.Envelope, sinkBuffer)
		m.chans[i] = ch
		m.wg.Add(1)
		go m.drain(ctx, s, ch)
	}

	m.unsub = demux.SubscribeAll(func(env types.Envelope) {
		for i, ch := range m.chans {
			select {
			case ch <- env:
			default:
				metrics.DroppedEnvelopes.WithLabelValues(m.sinks[i].Name()).Inc()
				m.log.Warn().
					Str("sink", m.sinks[i].Name()).
					Str("requestId", env.RequestID).
					Msg("Envelope dropped: sink buffer full")
			}
		}
	})

	return m
}

// drain writes one sink's queue until Close.
func (m *Manager) drain(ctx context.Context, s Sink, ch <-chan types.Envelope) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			// Flush whatever is already queued before exiting.
			for {
				select {
				case env := <-ch:
					m.write(ctx, s, env)
				default:
					return
				}
			}
		case env := <-ch:
			m.write(ctx, s, env)
		}
	}
}

func (m *Manager) write(ctx context.Context, s Sink, env types.Envelope) {
	if err := s.Write(context.WithoutCancel(ctx), env); err != nil {
		m.log.Warn().Err(err).
			Str("sink", s.Name()).
			Str("requestId", env.RequestID).
			Msg("Sink write failed")
	}
}

// Close detaches from the bus, drains the queues, and closes every sink.
func (m *Manager) Close() error {
	if m.unsub != nil {
		m.unsub()
	}
	m.cancel()
	m.wg.Wait()

	var firstErr error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
