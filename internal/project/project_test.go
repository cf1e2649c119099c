package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agusx1211/amux/internal/store"
	"github.com/agusx1211/amux/internal/wire"
)

func TestAddFileDedupesAndRoutes(t *testing.T) {
	p := newTestProject(t)
	conn := &recordConn{kinds: []wire.Kind{wire.KindAddFile, wire.KindDropFile}}
	p.RegisterConnector(conn)

	p.AddFile(wire.ContextFile{Path: "main.go"})
	p.AddFile(wire.ContextFile{Path: "main.go"})
	p.AddFile(wire.ContextFile{Path: "util.go", ReadOnly: true})

	files := p.ContextFiles()
	if len(files) != 2 {
		t.Fatalf("context files = %+v, want 2", files)
	}
	if n := len(conn.messages()); n != 2 {
		t.Fatalf("routed %d add-file commands, want 2", n)
	}

	p.DropFile("main.go")
	files = p.ContextFiles()
	if len(files) != 1 || files[0].Path != "util.go" {
		t.Fatalf("context files after drop = %+v", files)
	}
}

func TestRegisterConnectorReplaysState(t *testing.T) {
	p := newTestProject(t)

	// State accumulates before any connector attaches.
	p.AddFile(wire.ContextFile{Path: "a.go"})
	p.AddFile(wire.ContextFile{Path: "b.go"})
	p.AddMessage("user", "earlier prompt")

	late := &recordConn{kinds: []wire.Kind{wire.KindAddFile, wire.KindAddMessage}}
	p.RegisterConnector(late)

	var addFiles, addMsgs int
	for _, msg := range late.messages() {
		switch msg.Kind {
		case wire.KindAddFile:
			addFiles++
		case wire.KindAddMessage:
			addMsgs++
		}
	}
	if addFiles != 2 {
		t.Fatalf("replayed %d files, want 2", addFiles)
	}
	if addMsgs != 1 {
		t.Fatalf("replayed %d messages, want 1", addMsgs)
	}
}

func TestRegisterConnectorSkipsUninterestedReplay(t *testing.T) {
	p := newTestProject(t)
	p.AddFile(wire.ContextFile{Path: "a.go"})
	p.AddMessage("user", "hi")

	late := &recordConn{kinds: []wire.Kind{wire.KindPrompt}}
	p.RegisterConnector(late)

	if n := len(late.messages()); n != 0 {
		t.Fatalf("uninterested connector received %d replays, want 0", n)
	}
}

func TestConnectorHistoryFileOverride(t *testing.T) {
	p := newTestProject(t)
	override := filepath.Join(t.TempDir(), "custom.history")

	conn := &recordConn{kinds: []wire.Kind{wire.KindPrompt}, historyFile: override}
	p.RegisterConnector(conn)

	if got := p.historyPath(); got != override {
		t.Fatalf("historyPath = %q, want %q", got, override)
	}

	p.AddToInputHistory("hello there")
	entries := p.LoadInputHistory()
	if len(entries) != 1 || entries[0] != "hello there" {
		t.Fatalf("entries = %v", entries)
	}
	// The default in-project file was never touched.
	if _, err := os.Stat(filepath.Join(p.BaseDir(), HistoryFileName)); !os.IsNotExist(err) {
		t.Fatal("default history file should not exist")
	}
}

func TestInputHistoryMostRecentFirst(t *testing.T) {
	p := newTestProject(t)

	p.AddToInputHistory("first")
	p.AddToInputHistory("second")

	entries := p.LoadInputHistory()
	if len(entries) != 2 || entries[0] != "second" || entries[1] != "first" {
		t.Fatalf("entries = %v, want [second first]", entries)
	}
}

func TestSessionPersistsAcrossProjectInstances(t *testing.T) {
	home := t.TempDir()
	baseDir := t.TempDir()
	st, err := store.New(home)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	p1, err := New(baseDir, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p1.AddMessage("user", "remember me")
	p1.AddFile(wire.ContextFile{Path: "kept.go"})
	p1.SaveSession()
	if err := p1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	p2, err := New(baseDir, st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p2.Close()

	msgs := p2.Messages()
	if len(msgs) != 1 || msgs[0].Content != "remember me" {
		t.Fatalf("restored messages = %+v", msgs)
	}
	files := p2.ContextFiles()
	if len(files) != 1 || files[0].Path != "kept.go" {
		t.Fatalf("restored files = %+v", files)
	}
}

func TestModelsUpdated(t *testing.T) {
	p := newTestProject(t)

	p.ModelsUpdated(wire.SetModels{MainModel: "gpt-4o", WeakModel: "gpt-4o-mini"})
	m := p.Models()
	if m.MainModel != "gpt-4o" || m.WeakModel != "gpt-4o-mini" {
		t.Fatalf("models = %+v", m)
	}
}

func TestSetModelsRoutes(t *testing.T) {
	p := newTestProject(t)
	conn := &recordConn{kinds: []wire.Kind{wire.KindSetModels}}
	p.RegisterConnector(conn)

	p.SetModels(wire.SetModels{MainModel: "claude-sonnet"})

	msgs := conn.messages()
	if len(msgs) != 1 {
		t.Fatalf("routed %d set-models, want 1", len(msgs))
	}
	m, err := wire.DecodeData[wire.SetModels](&msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.MainModel != "claude-sonnet" {
		t.Fatalf("routed models = %+v", m)
	}
}

func TestApplyEditsRoutes(t *testing.T) {
	p := newTestProject(t)
	conn := &recordConn{kinds: []wire.Kind{wire.KindApplyEdits}}
	p.RegisterConnector(conn)

	p.ApplyEdits([]wire.Edit{{Path: "main.go", Original: "a", Updated: "b"}})

	msgs := conn.messages()
	if len(msgs) != 1 {
		t.Fatalf("routed %d apply-edits, want 1", len(msgs))
	}
	batch, err := wire.DecodeData[wire.ApplyEdits](&msgs[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(batch.Edits) != 1 || batch.Edits[0].Path != "main.go" {
		t.Fatalf("edits = %+v", batch.Edits)
	}
}

func TestBaseDirNormalized(t *testing.T) {
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	dir := t.TempDir()
	p, err := New(dir+string(filepath.Separator)+".", st, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()
	if p.BaseDir() != dir {
		t.Fatalf("BaseDir = %q, want %q", p.BaseDir(), dir)
	}
}
