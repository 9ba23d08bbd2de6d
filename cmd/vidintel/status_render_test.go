package main

import (
	"fmt"
	"io"
	"strings"
	"testing"

	"vidintel/internal/api"
)

func TestRenderStatusLineNoColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusError, "Not running", false)
	want := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, "Daemon:", "[ERROR] Not running")
	if got != want {
		t.Fatalf("renderStatusLine mismatch\n got: %q\nwant: %q", got, want)
	}
}

func TestRenderStatusLineWithColor(t *testing.T) {
	got := renderStatusLine("Daemon", statusOK, "Running", true)
	if !strings.HasPrefix(got, ansiGreen) || !strings.HasSuffix(got, ansiReset) {
		t.Fatalf("expected green line, got %q", got)
	}
}

func TestDependencyLines(t *testing.T) {
	deps := []api.DependencyStatus{
		{Name: "python3", Available: false},
		{Name: "yt-dlp", Available: true, Command: "/usr/bin/yt-dlp"},
		{Name: "uvx", Available: false, Optional: true, Detail: "not on PATH"},
	}
	lines := dependencyLines(deps, false)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines, got %d: %v", len(lines), lines)
	}
	checks := []string{
		"[ERROR] not available",
		"[OK] Ready (command: /usr/bin/yt-dlp)",
		"[WARN] not on PATH",
		"[ERROR] python3",
	}
	for i, want := range checks {
		if !strings.Contains(lines[i], want) {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want)
		}
	}
}

func TestJobStatRowsOrder(t *testing.T) {
	rows := jobStatRows(map[string]int{"failed": 1, "queued": 3, "completed": 0, "paused": 2})
	got := make([]string, len(rows))
	for i, r := range rows {
		got[i] = r[0] + "=" + r[1]
	}
	if strings.Join(got, ",") != "Queued=3,Failed=1,Paused=2" {
		t.Fatalf("rows = %v", got)
	}
}

func TestShouldColorizeNonFile(t *testing.T) {
	if shouldColorize(io.Discard) {
		t.Fatal("expected non-file writer to disable color")
	}
}
