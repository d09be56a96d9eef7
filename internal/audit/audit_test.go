package audit

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger failed: %v", err)
	}

	events := []Event{
		{EventType: EventEncode, Input: "a.bin", Output: "a.mkv", Bytes: 42, Success: true, Duration: 120},
		{EventType: EventDecode, Input: "a.mkv", Output: "a.out", Success: false, Error: "authentication failed"},
	}
	for _, e := range events {
		if err := l.Log(e); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to reopen audit log: %v", err)
	}
	defer f.Close()

	var got []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e Event
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		got = append(got, e)
	}
	if len(got) != 2 {
		t.Fatalf("read %d events, want 2", len(got))
	}
	if got[0].EventType != EventEncode || got[0].Bytes != 42 || !got[0].Success {
		t.Fatalf("first event mismatch: %+v", got[0])
	}
	if got[1].Error != "authentication failed" || got[1].Success {
		t.Fatalf("second event mismatch: %+v", got[1])
	}
	if got[0].Timestamp.IsZero() {
		t.Fatal("timestamp was not stamped")
	}
	if time.Since(got[0].Timestamp) > time.Minute {
		t.Fatal("timestamp implausibly old")
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	for i := 0; i < 2; i++ {
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger failed: %v", err)
		}
		if err := l.Log(Event{EventType: EventEncode, Success: true}); err != nil {
			t.Fatalf("Log failed: %v", err)
		}
		l.Close()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read audit log: %v", err)
	}
	lines := 0
	for _, b := range data {
		if b == '\n' {
			lines++
		}
	}
	if lines != 2 {
		t.Fatalf("audit log has %d lines after two sessions, want 2", lines)
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	if err := l.Log(Event{}); err != nil {
		t.Fatalf("nop Log returned %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("nop Close returned %v", err)
	}
}
