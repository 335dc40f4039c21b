package log

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMatchLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewMatchLogger(dir, "m1")
	at := time.Date(2026, 3, 1, 10, 15, 0, 0, time.UTC)
	l.w.now = func() time.Time { return at }

	if err := l.WriteEvent(EventEntry{MatchID: "m1", Kind: "agent created", AgentID: "a", AgentName: "alice"}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := l.WriteEvent(EventEntry{MatchID: "m1", Kind: "agent rewarded", AgentID: "a", Reward: 12}); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	files, err := EventFiles(MatchDir(dir, "m1"))
	if err != nil {
		t.Fatalf("EventFiles: %v", err)
	}
	if len(files) != 1 || filepath.Base(files[0]) != "events-2026-03-01-10.jsonl.zst" {
		t.Fatalf("files = %v", files)
	}
	var got []EventEntry
	if err := ReadEvents(files[0], func(e EventEntry) error { got = append(got, e); return nil }); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if len(got) != 2 || got[1].Reward != 12 || got[0].AgentName != "alice" || !got[0].Time.Equal(at) {
		t.Fatalf("entries = %+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "events")
	at := time.Date(2026, 3, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return at }
	if err := w.Write(map[string]int{"n": 1}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	at = at.Add(2 * time.Minute)
	if err := w.Write(map[string]int{"n": 2}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, name := range []string{"events-2026-03-01-10.jsonl.zst", "events-2026-03-01-11.jsonl.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("missing %s: %v", name, err)
		}
	}
}

func TestReopenAppendsFrame(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		l := NewMatchLogger(dir, "m")
		l.w.now = func() time.Time { return at }
		if err := l.WriteEvent(EventEntry{MatchID: "m", Kind: "status changed", Status: "play"}); err != nil {
			t.Fatalf("WriteEvent: %v", err)
		}
		_ = l.Close()
	}
	files, _ := EventFiles(MatchDir(dir, "m"))
	n := 0
	if err := ReadEvents(files[0], func(EventEntry) error { n++; return nil }); err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	if n != 2 {
		t.Fatalf("entries = %d, want 2 across frames", n)
	}
}
