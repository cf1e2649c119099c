package worker

import (
	"strings"
	"testing"
)

func TestMarkerPathDeterministic(t *testing.T) {
	a := MarkerPath("/run", "/home/u/project")
	b := MarkerPath("/run", "/home/u/project")
	if a != b {
		t.Fatalf("same base dir produced different markers: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "/run/") || !strings.HasSuffix(a, ".pid") {
		t.Fatalf("marker path = %q", a)
	}
}

func TestMarkerPathDistinctPerProject(t *testing.T) {
	a := MarkerPath("/run", "/home/u/project-a")
	b := MarkerPath("/run", "/home/u/project-b")
	if a == b {
		t.Fatalf("different base dirs share a marker: %q", a)
	}
}

func TestClassifyStderr(t *testing.T) {
	var surfaced []string
	s := NewSupervisor("/tmp/p", t.TempDir())
	s.OnUserError = func(msg string) { surfaced = append(surfaced, msg) }

	// Warnings and generic errors never reach the user.
	s.classifyStderr("Warning: model does not support images")
	s.classifyStderr("Traceback (most recent call last):")
	s.classifyStderr("   ")
	if len(surfaced) != 0 {
		t.Fatalf("non-usage lines surfaced: %v", surfaced)
	}

	// Usage errors surface the part after "error:".
	s.classifyStderr("usage: connector [-h] ... error: unrecognized arguments: --bogus")
	if len(surfaced) != 1 {
		t.Fatalf("surfaced %d messages, want 1", len(surfaced))
	}
	if surfaced[0] != "unrecognized arguments: --bogus" {
		t.Fatalf("surfaced = %q, want %q", surfaced[0], "unrecognized arguments: --bogus")
	}

	// Usage errors without an "error:" part surface whole.
	s.classifyStderr("usage: connector [-h] [--model MODEL]")
	if len(surfaced) != 2 {
		t.Fatalf("surfaced %d messages, want 2", len(surfaced))
	}
	if !strings.HasPrefix(surfaced[1], "usage:") {
		t.Fatalf("surfaced = %q", surfaced[1])
	}
}

func TestStopWithoutProcess(t *testing.T) {
	s := NewSupervisor("/tmp/p", t.TempDir())
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop with no process: %v", err)
	}
	if s.Running() {
		t.Fatal("Running should be false")
	}
	if s.Pid() != 0 {
		t.Fatalf("Pid = %d, want 0", s.Pid())
	}
}
