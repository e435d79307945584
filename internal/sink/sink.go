// Package sink mirrors the envelope stream into operational stores. Sinks
// sit behind buffered channels so a slow or dead store never stalls the
// streaming path.
package sink

import (
	"context"

	"github.com/turnwire/turnwire/pkg/types"
)

// Sink receives every envelope published on the bus.
type Sink interface {
	// Name identifies the sink in logs and metrics.
	Name() string

	// Write mirrors one envelope. Errors are logged by the manager, never
	// propagated to the stream path.
	Write(ctx context.Context, env types.Envelope) error

	Close() error
}

// Nop discards everything. Stands in when no sink is configured.
type Nop struct{}

func (Nop) Name() string                                { return "nop" }
func (Nop) Write(context.Context, types.Envelope) error { return nil }
func (Nop) Close() error                                { return nil }

// FromConfig builds the configured sinks. An empty config yields no sinks,
// which is valid: the manager then has nothing to fan out to.
func FromConfig(cfg types.SinkConfig) ([]Sink, error) {
	var sinks []Sink
	if cfg.Redis != nil {
		sinks = append(sinks, NewRedis(*cfg.Redis))
	}
	if cfg.Journal != nil {
		j, err := NewJournal(cfg.Journal.Dir)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, j)
	}
	return sinks, nil
}
