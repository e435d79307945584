package transport

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"github.com/turnwire/turnwire/internal/logging"
	"github.com/turnwire/turnwire/pkg/types"
)

// ScriptTransport plays YAML scenarios instead of calling a model. Each
// dispatch matches the prompt against the scenario's rules and streams the
// scripted events with the configured pacing. The scenario file is watched
// and hot-reloaded, so a running demo or test rig can be rescripted live.
type ScriptTransport struct {
	pub     Publisher
	path    string
	watcher *fsnotify.Watcher

	mu       sync.RWMutex
	scenario *Scenario

	stopCh chan struct{}
	doneCh chan struct{}
	wg     sync.WaitGroup

	log zerolog.Logger
}

// NewScriptTransport loads the scenario at path and starts watching it.
func NewScriptTransport(pub Publisher, path string) (*ScriptTransport, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	scen, err := LoadScenario(abs)
	if err != nil {
		return nil, fmt.Errorf("loading scenario: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: editors replace files on save, and a watch on
	// the file itself misses the new inode.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, err
	}

	t := &ScriptTransport{
		pub:      pub,
		path:     abs,
		watcher:  watcher,
		scenario: scen,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		log:      logging.Component("transport"),
	}
	go t.run()

	t.log.Info().Str("path", abs).Int("rules", len(scen.Rules)).Msg("Script transport ready")
	return t, nil
}

// Dispatch matches the prompt, assigns a request id, and plays the scripted
// events in the background.
func (t *ScriptTransport) Dispatch(ctx context.Context, req Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	select {
	case <-t.stopCh:
		return "", fmt.Errorf("script transport closed")
	default:
	}

	t.mu.RLock()
	scen := t.scenario
	t.mu.RUnlock()

	requestID := NewRequestID()
	rule := scen.FindRule(req.Prompt)
	if rule != nil {
		t.log.Debug().Str("requestId", requestID).Str("rule", rule.Name).Msg("Scenario rule matched")
	} else {
		t.log.Debug().Str("requestId", requestID).Msg("No scenario rule matched, playing fallback")
	}

	t.wg.Add(1)
	go t.play(requestID, req, scen, rule)

	return requestID, nil
}

// Close stops the watcher and waits for in-flight playbacks to wind down.
func (t *ScriptTransport) Close() error {
	select {
	case <-t.stopCh:
		return nil
	default:
		close(t.stopCh)
	}
	<-t.doneCh
	t.wg.Wait()
	return t.watcher.Close()
}

// play streams one turn. A scripted complete or error step ends the turn;
// otherwise a complete event with the measured duration is appended.
func (t *ScriptTransport) play(requestID string, req Request, scen *Scenario, rule *ScenarioRule) {
	defer t.wg.Done()

	t.emit(requestID, req.SessionID, &types.StartEvent{})
	started := time.Now()

	var steps []ScenarioStep
	switch {
	case rule != nil && len(rule.Steps) > 0:
		steps = rule.Steps
	case rule != nil:
		steps = textSteps(rule.Response)
	default:
		steps = textSteps(scen.Defaults.Fallback)
	}

	terminal := false
	for i := range steps {
		if !t.pause(stepDelay(scen, steps, i)) {
			return
		}
		ev := steps[i].event(req.SessionID, started)
		if ev == nil {
			continue
		}
		t.emit(requestID, req.SessionID, ev)
		switch ev.(type) {
		case *types.CompleteEvent, *types.ErrorEvent:
			terminal = true
		}
	}

	if !terminal {
		t.emit(requestID, req.SessionID, &types.CompleteEvent{
			SessionID:  req.SessionID,
			DurationMs: time.Since(started).Milliseconds(),
		})
	}
}

// stepDelay computes the pause before step i: the step's own delay if set,
// the scenario lag for the first step, the chunk delay after that.
func stepDelay(scen *Scenario, steps []ScenarioStep, i int) time.Duration {
	ms := steps[i].DelayMS
	if ms == 0 {
		if i == 0 {
			ms = scen.Settings.LagMS
		} else {
			ms = scen.Settings.ChunkDelayMS
		}
	}
	return time.Duration(ms) * time.Millisecond
}

// pause sleeps d unless the transport closes first.
func (t *ScriptTransport) pause(d time.Duration) bool {
	if d <= 0 {
		select {
		case <-t.stopCh:
			return false
		default:
			return true
		}
	}
	select {
	case <-time.After(d):
		return true
	case <-t.stopCh:
		return false
	}
}

func (t *ScriptTransport) emit(requestID, sessionID string, ev types.Event) {
	t.pub.Publish(types.NewEnvelope(requestID, sessionID, ev))
}

func (t *ScriptTransport) run() {
	defer close(t.doneCh)

	for {
		select {
		case <-t.stopCh:
			return
		case ev, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 && filepath.Clean(ev.Name) == t.path {
				t.reload()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			t.log.Error().Err(err).Msg("Scenario watcher error")
		}
	}
}

// reload swaps in the rewritten scenario file. A file that no longer parses
// keeps the previous scenario in place.
func (t *ScriptTransport) reload() {
	scen, err := LoadScenario(t.path)
	if err != nil {
		t.log.Warn().Err(err).Str("path", t.path).Msg("Scenario reload failed, keeping previous")
		return
	}

	t.mu.Lock()
	t.scenario = scen
	t.mu.Unlock()

	t.log.Info().Str("path", t.path).Int("rules", len(scen.Rules)).Msg("Scenario reloaded")
}
