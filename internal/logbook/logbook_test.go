package logbook

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestTailReturnsRecentLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "council.log")
	book, err := New(path)
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	for i := 0; i < 5; i++ {
		book.Info("entry-%d", i)
	}
	lines := book.Tail(3)
	if len(lines) != 3 {
		t.Fatalf("len(lines) = %d, want 3", len(lines))
	}
	for idx, want := range []string{"entry-2", "entry-3", "entry-4"} {
		if !strings.Contains(lines[idx], want) {
			t.Fatalf("line %d = %q, missing %s", idx, lines[idx], want)
		}
	}
}

func TestAppendStampsLevelAndClock(t *testing.T) {
	dir := t.TempDir()
	book, err := New(filepath.Join(dir, "council.log"))
	if err != nil {
		t.Fatalf("new logbook: %v", err)
	}
	fixed := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	book.WithClock(func() time.Time { return fixed })
	book.Warn("breaker open for %s", "deepseek")
	lines := book.Tail(1)
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[0], "2026-03-01T09:30:00Z WARN") {
		t.Fatalf("unexpected line: %q", lines[0])
	}
	if !strings.Contains(lines[0], "breaker open for deepseek") {
		t.Fatalf("missing message: %q", lines[0])
	}
}

func TestNilLogbookIsSafe(t *testing.T) {
	var book *Logbook
	book.Info("ignored")
	if lines := book.Tail(5); lines != nil {
		t.Fatalf("expected nil tail, got %v", lines)
	}
}
