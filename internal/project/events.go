package project

import "github.com/agusx1211/amux/internal/wire"

// Event is a typed notification delivered to the host UI through the
// project's event channel. Delivery is non-blocking; a stalled UI drops
// events rather than stalling orchestration.
type Event any

// UserMessageEvent surfaces a submitted prompt as a user message.
type UserMessageEvent struct {
	BaseDir string
	Content string
	Mode    string
}

// LoadingEvent toggles the UI busy indicator for a prompt turn.
type LoadingEvent struct {
	BaseDir string
	On      bool
}

// ResponseChunkEvent is an unfinished streaming fragment, forwarded verbatim.
type ResponseChunkEvent struct {
	BaseDir   string
	MessageID string
	Content   string
	Reflected string
}

// ResponseCompletedEvent is a finished response message.
type ResponseCompletedEvent struct {
	BaseDir     string
	MessageID   string
	Content     string
	Reflected   string
	EditedFiles []string
	CommitHash  string
	CommitMsg   string
	Diff        string
	Usage       *wire.UsageReport
}

// QuestionEvent asks the user to resolve a worker question.
type QuestionEvent struct {
	BaseDir  string
	Question wire.Question
}

// CommandOutputEvent carries the (possibly still accumulating) output of a
// worker slash-command.
type CommandOutputEvent struct {
	BaseDir string
	Command string
	Output  string
}

// CostInfoEvent reports the current running totals for both accounting
// subsystems.
type CostInfoEvent struct {
	BaseDir     string
	WorkerTotal float64
	AgentTotal  float64
}

// ContextFileAddedEvent reports a file joining the worker's context set.
type ContextFileAddedEvent struct {
	BaseDir string
	File    wire.ContextFile
}

// ContextFileDroppedEvent reports a file leaving the worker's context set.
type ContextFileDroppedEvent struct {
	BaseDir string
	Path    string
}

// InputHistoryEvent carries the reloaded input history, most recent first.
type InputHistoryEvent struct {
	BaseDir string
	Entries []string
}

// ModelsEvent announces the worker's current model selection.
type ModelsEvent struct {
	BaseDir string
	Models  wire.SetModels
}

// ToolInvocationEvent reports a tool call from the agent layer.
type ToolInvocationEvent struct {
	BaseDir string
	Tool    wire.ToolEvent
}

// LogEvent surfaces a log line to the UI (error level means user-visible).
type LogEvent struct {
	BaseDir string
	Level   string
	Message string
}

// ClearProjectEvent tells the UI to drop all project state. It is emitted
// before the worker is killed so the UI never flashes stale content.
type ClearProjectEvent struct {
	BaseDir string
}
