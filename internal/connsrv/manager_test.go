package connsrv

import (
	"path/filepath"
	"testing"

	"github.com/agusx1211/amux/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	m := NewManager(st, nil)
	t.Cleanup(func() { m.CloseAll() })
	return m
}

func TestOpenReturnsSameProjectForSameDir(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	p1, err := m.Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// A path normalizing to the same directory shares the project.
	p2, err := m.Open(dir + string(filepath.Separator) + ".")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p1 != p2 {
		t.Fatal("same directory opened as two projects")
	}
	if len(m.Projects()) != 1 {
		t.Fatalf("Projects = %d, want 1", len(m.Projects()))
	}
}

func TestOpenDistinctDirs(t *testing.T) {
	m := newTestManager(t)

	p1, err := m.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	p2, err := m.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p1 == p2 {
		t.Fatal("distinct directories share a project")
	}
}

func TestGetWithoutOpen(t *testing.T) {
	m := newTestManager(t)
	if p := m.Get(t.TempDir()); p != nil {
		t.Fatal("Get of unopened project should be nil")
	}
}

func TestCloseForgetsProject(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	if _, err := m.Open(dir); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := m.Close(dir); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if p := m.Get(dir); p != nil {
		t.Fatal("closed project still retrievable")
	}
	// Closing again is a no-op.
	if err := m.Close(dir); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
