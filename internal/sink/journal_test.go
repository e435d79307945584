package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/turnwire/turnwire/pkg/types"
)

func envAt(ts time.Time, requestID, content string) types.Envelope {
	return types.Envelope{
		RequestID: requestID,
		SessionID: "sess-1",
		Timestamp: ts,
		Event:     &types.TextEvent{Content: content},
	}
}

func TestJournal_WriteAndReplay(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	day := time.Date(2026, 8, 26, 10, 0, 0, 0, time.UTC)

	for _, content := range []string{"one", "two", "three"} {
		if err := j.Write(ctx, envAt(day, "req-1", content)); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	var got []string
	err = j.Replay(ctx, "2026-08-26", func(env types.Envelope) error {
		te, ok := env.Event.(*types.TextEvent)
		if !ok {
			t.Fatalf("Expected text event, got %T", env.Event)
		}
		got = append(got, te.Content)
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}

	want := []string{"one", "two", "three"}
	if len(got) != len(want) {
		t.Fatalf("Expected %d entries, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Entry %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestJournal_RollsOverAtDateBoundary(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	dayOne := time.Date(2026, 8, 25, 23, 59, 0, 0, time.UTC)
	dayTwo := time.Date(2026, 8, 26, 0, 1, 0, 0, time.UTC)

	if err := j.Write(ctx, envAt(dayOne, "req-1", "yesterday")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := j.Write(ctx, envAt(dayTwo, "req-2", "today")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	for _, day := range []string{"2026-08-25", "2026-08-26"} {
		if _, err := os.Stat(filepath.Join(dir, day+".jsonl")); err != nil {
			t.Errorf("Expected journal file for %s: %v", day, err)
		}
	}

	var count int
	j.Replay(ctx, "2026-08-25", func(types.Envelope) error {
		count++
		return nil
	})
	if count != 1 {
		t.Errorf("Expected 1 entry on first day, got %d", count)
	}
}

func TestJournal_ReplayMissingDay(t *testing.T) {
	j, err := NewJournal(t.TempDir())
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	called := false
	err = j.Replay(context.Background(), "2001-01-01", func(types.Envelope) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("Replay of missing day should not error: %v", err)
	}
	if called {
		t.Error("Callback should not run for a missing day")
	}
}

func TestJournal_ReplaySkipsTornLine(t *testing.T) {
	dir := t.TempDir()
	j, err := NewJournal(dir)
	if err != nil {
		t.Fatalf("NewJournal failed: %v", err)
	}
	defer j.Close()

	ctx := context.Background()
	ts := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	if err := j.Write(ctx, envAt(ts, "req-1", "intact")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	// Simulate a crash mid-write: a truncated trailing line.
	path := filepath.Join(dir, "2026-08-26.jsonl")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	f.WriteString(`{"requestId":"req-2","ty`)
	f.Close()

	var count int
	err = j.Replay(ctx, "2026-08-26", func(types.Envelope) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatalf("Replay failed: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 intact entry, got %d", count)
	}
}

func TestJournal_RequiresDir(t *testing.T) {
	if _, err := NewJournal(""); err == nil {
		t.Error("Expected an error for empty journal directory")
	}
}
