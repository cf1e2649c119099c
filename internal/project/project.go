// Package project implements the per-project orchestration core: worker
// lifecycle glue, the prompt execution state machine, the interactive
// question protocol, command-output capture, and cost accounting.
//
// All state transitions for one project are serialized by a single mutex;
// suspension happens only on channels (prompt completion, queue release,
// question answers), and every suspended caller also selects on the
// cancellation path so that worker death never leaks a waiter.
// Distinct projects share nothing.
package project

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/agusx1211/amux/internal/connector"
	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/eventq"
	"github.com/agusx1211/amux/internal/history"
	"github.com/agusx1211/amux/internal/repofiles"
	"github.com/agusx1211/amux/internal/store"
	"github.com/agusx1211/amux/internal/wire"
	"github.com/agusx1211/amux/internal/worker"
)

// HistoryFileName is the default input-history file inside the base dir.
const HistoryFileName = ".amux.input.history"

// Agent is the tool-calling agent collaborator. Interrupt signals it to
// cancel any in-flight tool work for the project.
type Agent interface {
	CancelAll(baseDir string)
}

// Project owns one supervised worker and its accumulated state.
type Project struct {
	baseDir  string
	st       *store.Store
	sup      *worker.Supervisor
	registry *connector.Registry
	repo     *repofiles.Cache
	agent    Agent

	events chan Event

	mu sync.Mutex

	// conversation state
	contextFiles []wire.ContextFile
	messages     []wire.Message
	historyFile  string // connector override, "" = default
	models       wire.SetModels

	// prompt execution state machine
	run               *promptRun
	starters          []chan bool // FIFO queue of suspended submitters
	responseMessageID string
	clearNext         bool

	// question protocol
	question   *wire.Question
	questionCh chan questionResult
	remembered map[string]string

	// command capture + cost totals
	currentCommand string
	commandOutput  map[string]string
	workerTotal    float64
	agentTotal     float64
}

// promptRun is one logical prompt turn from submission to completion.
type promptRun struct {
	id        string
	fragments []ResponseCompletedEvent
	result    []ResponseCompletedEvent // set before done is closed
	done      chan struct{}
}

// New creates a Project for baseDir. The directory path is normalized and
// becomes the project's identity key.
func New(baseDir string, st *store.Store, agent Agent) (*Project, error) {
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("project: resolve %s: %w", baseDir, err)
	}
	abs = filepath.Clean(abs)

	p := &Project{
		baseDir:       abs,
		st:            st,
		registry:      connector.NewRegistry(),
		repo:          repofiles.NewCache(abs),
		agent:         agent,
		events:        make(chan Event, 256),
		remembered:    make(map[string]string),
		commandOutput: make(map[string]string),
	}
	p.sup = worker.NewSupervisor(abs, st.RunDir())
	p.sup.OnStdout = p.handleStdout
	p.sup.OnUserError = func(msg string) {
		p.emit(LogEvent{BaseDir: abs, Level: "error", Message: msg})
	}
	p.sup.OnExit = func(code int, err error) {
		p.workerExited()
	}

	if err := p.repo.Watch(); err != nil {
		debug.LogKV("project", "repo watch unavailable", "base_dir", abs, "err", err)
	}
	p.loadSession()
	return p, nil
}

// BaseDir returns the normalized project directory (the identity key).
func (p *Project) BaseDir() string { return p.baseDir }

// Events returns the UI event channel.
func (p *Project) Events() <-chan Event { return p.events }

// Registry exposes the connector registry for routing tests and the
// connector server.
func (p *Project) Registry() *connector.Registry { return p.registry }

func (p *Project) emit(ev Event) {
	if !eventq.Offer(p.events, ev) {
		debug.LogKV("project", "dropping UI event due to backpressure", "base_dir", p.baseDir, "event", fmt.Sprintf("%T", ev))
	}
}

// --- Worker lifecycle ---

// StartWorker (re)spawns the worker. A live worker is unconditionally
// stopped first — there is no graceful handoff — and all pending prompt
// waiters resolve with an empty result before the new process starts.
func (p *Project) StartWorker(serverURL string) error {
	p.resolveAllEmpty()
	p.clearTransient()

	ps, err := p.st.GetProjectSettings(p.baseDir)
	if err != nil {
		return fmt.Errorf("project: settings for %s: %w", p.baseDir, err)
	}
	spec := worker.BuildLaunchSpec(ps, serverURL)
	return p.sup.Start(spec)
}

// StopWorker kills the worker process tree, removes the liveness marker,
// resolves all pending prompt waiters with an empty result, and clears all
// transient per-run state. Kill failures (other than "already gone")
// propagate.
func (p *Project) StopWorker() error {
	p.resolveAllEmpty()
	p.clearTransient()
	return p.sup.Stop()
}

// Close shuts the project down. The UI is told to clear project state
// before the worker is killed, so it never flashes stale content.
func (p *Project) Close() error {
	p.emit(ClearProjectEvent{BaseDir: p.baseDir})
	err := p.StopWorker()
	p.repo.Close()
	return err
}

// WorkerRunning reports whether the worker process is attached.
func (p *Project) WorkerRunning() bool { return p.sup.Running() }

// workerExited runs when the worker dies on its own: every queued and the
// active caller resolve with an empty list and the project returns to Idle.
func (p *Project) workerExited() {
	p.resolveAllEmpty()
	p.clearTransient()
	p.emit(LoadingEvent{BaseDir: p.baseDir, On: false})
}

// resolveAllEmpty unblocks the active prompt caller, every queued submitter,
// and any pending question waiter, all with empty results. This is the crash
// recovery path: no waiter may be left suspended after the worker is gone.
func (p *Project) resolveAllEmpty() {
	p.mu.Lock()
	run := p.run
	p.run = nil
	starters := p.starters
	p.starters = nil
	qCh := p.questionCh
	p.questionCh = nil
	p.question = nil
	p.mu.Unlock()

	if run != nil {
		run.result = nil
		close(run.done)
	}
	for _, st := range starters {
		st <- false
	}
	if qCh != nil {
		close(qCh)
	}
}

// clearTransient drops per-run state: current question, current command,
// response buffers, prompt id.
func (p *Project) clearTransient() {
	p.mu.Lock()
	p.question = nil
	p.currentCommand = ""
	p.commandOutput = make(map[string]string)
	p.responseMessageID = ""
	p.mu.Unlock()
}

// --- Connector registry ---

// RegisterConnector adds c and replays current state for the categories it
// listens to, so late joiners (e.g. a worker reconnecting after a crash)
// see a consistent view without a snapshot API.
func (p *Project) RegisterConnector(c connector.Connector) {
	p.registry.Register(c)

	interested := func(kind wire.Kind) bool {
		for _, k := range c.Kinds() {
			if k == kind {
				return true
			}
		}
		return false
	}

	p.mu.Lock()
	files := append([]wire.ContextFile(nil), p.contextFiles...)
	messages := append([]wire.Message(nil), p.messages...)
	p.mu.Unlock()

	if interested(wire.KindAddFile) {
		for _, f := range files {
			p.registry.SendTo(c, wire.KindAddFile, f)
		}
	}
	if interested(wire.KindAddMessage) {
		for _, m := range messages {
			p.registry.SendTo(c, wire.KindAddMessage, m)
		}
	}

	if hf := strings.TrimSpace(c.HistoryFile()); hf != "" {
		p.mu.Lock()
		p.historyFile = hf
		p.mu.Unlock()
		p.emitInputHistory()
	}
}

// UnregisterConnector removes c by identity; no replay or compensation.
func (p *Project) UnregisterConnector(c connector.Connector) {
	p.registry.Unregister(c)
}

// historyPath returns the effective input-history file.
func (p *Project) historyPath() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.historyFile != "" {
		return p.historyFile
	}
	return filepath.Join(p.baseDir, HistoryFileName)
}

func (p *Project) emitInputHistory() {
	p.emit(InputHistoryEvent{BaseDir: p.baseDir, Entries: history.Load(p.historyPath())})
}

// AddToInputHistory durably appends text to the input history and notifies
// the UI. Write failures are logged, never fatal.
func (p *Project) AddToInputHistory(text string) {
	if err := history.Append(p.historyPath(), text, time.Now()); err != nil {
		debug.LogKV("project", "input history append failed", "base_dir", p.baseDir, "err", err)
	}
	p.emitInputHistory()
}

// LoadInputHistory returns the input history, most recent first.
func (p *Project) LoadInputHistory() []string {
	return history.Load(p.historyPath())
}

// --- Context files & conversation ---

// AddFile adds path to the worker's context set and routes the command.
func (p *Project) AddFile(file wire.ContextFile) {
	p.mu.Lock()
	for _, f := range p.contextFiles {
		if f.Path == file.Path {
			p.mu.Unlock()
			return
		}
	}
	p.contextFiles = append(p.contextFiles, file)
	p.mu.Unlock()

	p.registry.Route(wire.KindAddFile, file)
	p.emit(ContextFileAddedEvent{BaseDir: p.baseDir, File: file})
}

// DropFile removes path from the context set and routes the command.
func (p *Project) DropFile(path string) {
	p.mu.Lock()
	kept := p.contextFiles[:0]
	for _, f := range p.contextFiles {
		if f.Path != path {
			kept = append(kept, f)
		}
	}
	p.contextFiles = kept
	p.mu.Unlock()

	p.registry.Route(wire.KindDropFile, wire.ContextFile{Path: path})
	p.emit(ContextFileDroppedEvent{BaseDir: p.baseDir, Path: path})
}

// ContextFiles returns the current context-file set.
func (p *Project) ContextFiles() []wire.ContextFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.ContextFile(nil), p.contextFiles...)
}

// AddMessage appends a conversation record and routes it so the worker
// keeps it as context.
func (p *Project) AddMessage(role, content string) {
	msg := wire.Message{Role: role, Content: content}
	p.mu.Lock()
	p.messages = append(p.messages, msg)
	p.mu.Unlock()
	p.registry.Route(wire.KindAddMessage, msg)
}

// Messages returns the accumulated conversation.
func (p *Project) Messages() []wire.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]wire.Message(nil), p.messages...)
}

// ApplyEdits routes a batch of prepared edits for the worker to apply.
func (p *Project) ApplyEdits(edits []wire.Edit) {
	p.registry.Route(wire.KindApplyEdits, wire.ApplyEdits{Edits: edits})
}

// TrackedFiles returns the cached version-control-tracked file list,
// optionally filtered by a regex pattern (a bad pattern degrades to all).
func (p *Project) TrackedFiles(pattern string) []string {
	return p.repo.Filter(pattern)
}

// --- Models ---

// SetModels routes a model selection change to interested connectors.
func (p *Project) SetModels(m wire.SetModels) {
	p.registry.Route(wire.KindSetModels, m)
}

// ModelsUpdated records the worker's announced model selection.
func (p *Project) ModelsUpdated(m wire.SetModels) {
	p.mu.Lock()
	p.models = m
	p.mu.Unlock()
	p.emit(ModelsEvent{BaseDir: p.baseDir, Models: m})
}

// Models returns the last announced model selection.
func (p *Project) Models() wire.SetModels {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.models
}

// --- Inbound worker events outside the prompt machine ---

// HandleToolEvent forwards an agent tool invocation to the UI.
func (p *Project) HandleToolEvent(ev wire.ToolEvent) {
	p.emit(ToolInvocationEvent{BaseDir: p.baseDir, Tool: ev})
}

// HandleLog surfaces a worker log line.
func (p *Project) HandleLog(l wire.Log) {
	p.emit(LogEvent{BaseDir: p.baseDir, Level: l.Level, Message: l.Message})
}

// HandleRepoMapUpdated invalidates the tracked-file cache.
func (p *Project) HandleRepoMapUpdated() {
	p.repo.Invalidate()
}

// HandleInputHistoryUpdated reloads history after the worker appended to it.
func (p *Project) HandleInputHistoryUpdated() {
	p.emitInputHistory()
}

// --- Session bridge (thin glue over the store) ---

// SaveSession persists the accumulated conversation and context files.
// Failures are logged and degrade: history is not auto-repaired.
func (p *Project) SaveSession() {
	p.mu.Lock()
	sess := &store.Session{}
	for _, m := range p.messages {
		sess.Messages = append(sess.Messages, store.SessionMessage{Role: m.Role, Content: m.Content})
	}
	for _, f := range p.contextFiles {
		sess.Files = append(sess.Files, store.SessionFile{Path: f.Path, ReadOnly: f.ReadOnly})
	}
	p.mu.Unlock()

	if err := p.st.SaveSession(p.baseDir, sess); err != nil {
		debug.LogKV("project", "session save failed", "base_dir", p.baseDir, "err", err)
	}
}

// loadSession restores conversation state from the store; read failures
// yield an empty session.
func (p *Project) loadSession() {
	sess, err := p.st.LoadSession(p.baseDir)
	if err != nil {
		debug.LogKV("project", "session load failed", "base_dir", p.baseDir, "err", err)
		return
	}
	p.mu.Lock()
	for _, m := range sess.Messages {
		p.messages = append(p.messages, wire.Message{Role: m.Role, Content: m.Content})
	}
	for _, f := range sess.Files {
		p.contextFiles = append(p.contextFiles, wire.ContextFile{Path: f.Path, ReadOnly: f.ReadOnly})
	}
	p.mu.Unlock()
}
