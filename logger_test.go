package main

import (
	"fmt"
	"testing"
)

func TestJournalKeepsArrivalOrder(t *testing.T) {
	j := NewJournal(10)
	j.Append("command", "adb devices -l")
	j.Append("stdout", "List of devices attached")
	j.Append("status", "Device list changed: 1 device(s)")

	entries := j.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Category != "command" || entries[2].Category != "status" {
		t.Errorf("unexpected order: %+v", entries)
	}
}

func TestJournalEvictsOldestBeyondCapacity(t *testing.T) {
	j := NewJournal(5)
	for i := 0; i < 8; i++ {
		j.Append("status", fmt.Sprintf("line %d", i))
	}

	entries := j.Entries()
	if len(entries) != 5 {
		t.Fatalf("expected 5 retained entries, got %d", len(entries))
	}
	if entries[0].Message != "line 3" {
		t.Errorf("oldest retained entry = %q, want %q", entries[0].Message, "line 3")
	}
	if entries[4].Message != "line 7" {
		t.Errorf("newest entry = %q, want %q", entries[4].Message, "line 7")
	}
}

func TestJournalDefaultCapacity(t *testing.T) {
	j := NewJournal(0)
	for i := 0; i < journalCapacity+20; i++ {
		j.Append("status", "line")
	}
	if got := j.Len(); got != journalCapacity {
		t.Errorf("expected %d retained entries, got %d", journalCapacity, got)
	}
}

func TestJournalSinkReceivesEntries(t *testing.T) {
	j := NewJournal(10)
	var seen []LogEntry
	j.SetSink(func(e LogEntry) { seen = append(seen, e) })

	j.Append("error", "scan failed")
	if len(seen) != 1 || seen[0].Category != "error" {
		t.Errorf("sink not invoked correctly: %+v", seen)
	}
}

func TestInitLoggerConsoleOnly(t *testing.T) {
	if err := InitLogger(DefaultLogConfig()); err != nil {
		t.Fatalf("InitLogger failed: %v", err)
	}
	Logger.Info().Msg("logger smoke test")
}
