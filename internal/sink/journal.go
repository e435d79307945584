package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/turnwire/turnwire/pkg/types"
)

// Journal appends envelopes to a JSONL file per UTC day under dir, e.g.
// dir/2026-08-26.jsonl. Each line is one marshalled envelope. Replay streams
// a day's entries back in write order.
type Journal struct {
	dir string

	mu   sync.Mutex
	day  string
	file *os.File
	w    *bufio.Writer
}

// NewJournal creates the journal directory if needed.
func NewJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, fmt.Errorf("journal sink requires a directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating journal directory: %w", err)
	}
	return &Journal{dir: dir}, nil
}

func (j *Journal) Name() string { return "journal" }

// Write appends one line. The day file rolls over when the envelope's
// timestamp crosses a UTC date boundary.
func (j *Journal) Write(_ context.Context, env types.Envelope) error {
	line, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshaling envelope: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ts := env.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	day := ts.UTC().Format("2006-01-02")
	if err := j.rollLocked(day); err != nil {
		return err
	}

	if _, err := j.w.Write(line); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("appending journal entry: %w", err)
	}
	// Flush per entry: the journal is an operational mirror, a crash should
	// lose at most the envelope being written.
	return j.w.Flush()
}

// rollLocked opens the file for day, closing the previous day's file first.
func (j *Journal) rollLocked(day string) error {
	if j.file != nil && j.day == day {
		return nil
	}
	if j.file != nil {
		j.w.Flush()
		j.file.Close()
		j.file = nil
	}

	path := filepath.Join(j.dir, day+".jsonl")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("opening journal file: %w", err)
	}
	j.file = f
	j.w = bufio.NewWriter(f)
	j.day = day
	return nil
}

// Replay streams the entries journaled for day (UTC, "2006-01-02") through
// fn in write order. A missing day file is not an error: fn is simply never
// called. Replay stops early if fn returns an error.
func (j *Journal) Replay(ctx context.Context, day string, fn func(types.Envelope) error) error {
	path := filepath.Join(j.dir, day+".jsonl")
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("opening journal file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var env types.Envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			// A torn tail line from a crash is expected; skip it.
			continue
		}
		if err := fn(env); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	j.w.Flush()
	err := j.file.Close()
	j.file = nil
	return err
}
