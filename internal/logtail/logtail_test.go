package logtail

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRead(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	var content strings.Builder
	var expectedAll []string
	for i := 1; i <= 10; i++ {
		line := fmt.Sprintf("Line %d", i)
		content.WriteString(line + "\n")
		expectedAll = append(expectedAll, line)
	}

	if err := os.WriteFile(logPath, []byte(content.String()), 0644); err != nil {
		t.Fatalf("failed to create test log file: %v", err)
	}

	tests := []struct {
		name     string
		maxLines int
		expected []string
	}{
		{name: "zero", maxLines: 0, expected: nil},
		{name: "negative", maxLines: -1, expected: nil},
		{name: "read partial (5)", maxLines: 5, expected: expectedAll[5:]},
		{name: "read exactly all (10)", maxLines: 10, expected: expectedAll},
		{name: "read more than exists (20)", maxLines: 20, expected: expectedAll},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Read(logPath, tt.maxLines)
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("Read() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	lines, err := Read(filepath.Join(t.TempDir(), "nope.log"), 10)
	if err != nil || lines != nil {
		t.Fatalf("Read(missing) = %v, %v; want nil, nil", lines, err)
	}
}

func TestParseEntry_ZapJSON(t *testing.T) {
	line := `{"level":"warn","ts":"2025-10-08T21:01:05.123Z","logger":"flowwatch.coordinator","caller":"coordinator/coordinator.go:42","msg":"status poll failed","error":"api /api/status: returned status 500","policy":"soft"}`
	e := ParseEntry(line)

	if e.Level != "WARN" || e.Logger != "flowwatch.coordinator" || e.Message != "status poll failed" {
		t.Fatalf("entry = %#v", e)
	}
	want := time.Date(2025, 10, 8, 21, 1, 5, 123000000, time.UTC)
	if !e.Time.Equal(want) {
		t.Fatalf("Time = %v, want %v", e.Time, want)
	}
	if len(e.Fields) != 2 || e.Fields["policy"] != "soft" {
		t.Fatalf("Fields = %#v, want error and policy only", e.Fields)
	}
	formatted := e.Format()
	if !strings.Contains(formatted, "WARN  [flowwatch.coordinator] status poll failed") {
		t.Fatalf("Format = %q", formatted)
	}
	if !strings.HasSuffix(formatted, "policy=soft") {
		t.Fatalf("Format = %q, want fields sorted by key", formatted)
	}
}

func TestParseEntry_EpochTimestamp(t *testing.T) {
	e := ParseEntry(`{"level":"info","ts":1700000000.5,"msg":"hello"}`)
	if e.Time.Unix() != 1700000000 || e.Time.Nanosecond() != 500000000 {
		t.Fatalf("Time = %v", e.Time)
	}
	if e.Fields != nil {
		t.Fatalf("Fields = %#v, want nil", e.Fields)
	}
}

func TestParseEntries_PassesThroughPlainText(t *testing.T) {
	entries := ParseEntries([]string{"panic: something", `{"broken":`, `{"level":"debug","msg":"ok"}`})
	if entries[0].Message != "panic: something" || entries[0].Format() != "panic: something" {
		t.Fatalf("plain entry = %#v", entries[0])
	}
	if entries[1].Level != "" || entries[1].Format() != `{"broken":` {
		t.Fatalf("broken entry = %#v", entries[1])
	}
	if entries[2].Level != "DEBUG" || entries[2].Message != "ok" {
		t.Fatalf("debug entry = %#v", entries[2])
	}
}

func TestRead_SpansChunks(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "big.log")
	var content strings.Builder
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&content, "line %04d %s\n", i, strings.Repeat("x", 40))
	}
	if err := os.WriteFile(logPath, []byte(content.String()), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Read(logPath, 1200)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(got) != 1200 {
		t.Fatalf("len = %d, want 1200", len(got))
	}
	if !strings.HasPrefix(got[0], "line 3800 ") || !strings.HasPrefix(got[1199], "line 4999 ") {
		t.Fatalf("range = %q .. %q", got[0][:9], got[1199][:9])
	}
}

func TestRead_UnterminatedLastLine(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")
	if err := os.WriteFile(logPath, []byte("a\r\nb\nc"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	got, err := Read(logPath, 2)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !reflect.DeepEqual(got, []string{"b", "c"}) {
		t.Fatalf("Read() = %q, want [b c]", got)
	}
}

func appendFile(t *testing.T, path, text string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestFollower(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "follow.log")
	appendFile(t, logPath, "old\n")

	f := NewFollower(logPath)
	if lines, err := f.Next(); err != nil || lines != nil {
		t.Fatalf("Next() = %v, %v; want nothing new", lines, err)
	}

	appendFile(t, logPath, "one\ntw")
	lines, err := f.Next()
	if err != nil || !reflect.DeepEqual(lines, []string{"one"}) {
		t.Fatalf("Next() = %q, %v; want [one]", lines, err)
	}

	appendFile(t, logPath, "o\nthree\n")
	lines, _ = f.Next()
	if !reflect.DeepEqual(lines, []string{"two", "three"}) {
		t.Fatalf("Next() = %q, want [two three]", lines)
	}

	if err := os.WriteFile(logPath, []byte("fresh\n"), 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	lines, _ = f.Next()
	if !reflect.DeepEqual(lines, []string{"fresh"}) {
		t.Fatalf("Next() after truncate = %q, want [fresh]", lines)
	}

	if err := os.Remove(logPath); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if lines, err := f.Next(); err != nil || lines != nil {
		t.Fatalf("Next() on missing file = %v, %v", lines, err)
	}
}
