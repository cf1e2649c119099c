// Package wire defines the typed message protocol between the orchestrator
// and worker connectors.
//
// Every message is a single JSON object on its own line: an envelope with a
// Kind tag and a raw payload. Connectors declare interest in a set of kinds
// at registration time and only ever receive messages of those kinds.
package wire

import (
	"encoding/json"
	"fmt"
)

// Kind is the closed enumeration of message categories. Outbound kinds are
// commands routed from the orchestrator to connectors; inbound kinds are
// events emitted by the worker or the agent layer.
type Kind string

// Outbound command kinds (orchestrator -> connector).
const (
	KindAddFile           Kind = "add-file"
	KindDropFile          Kind = "drop-file"
	KindAddMessage        Kind = "add-message"
	KindPrompt            Kind = "prompt"
	KindRunCommand        Kind = "run-command"
	KindAnswerQuestion    Kind = "answer-question"
	KindInterruptResponse Kind = "interrupt-response"
	KindApplyEdits        Kind = "apply-edits"
	KindSetModels         Kind = "set-models"
)

// Inbound event kinds (worker/agent -> orchestrator).
const (
	KindInit                Kind = "init"
	KindResponse            Kind = "response"
	KindToolEvent           Kind = "tool"
	KindQuestion            Kind = "ask-question"
	KindModelsUpdated       Kind = "models-updated"
	KindRepoMapUpdated      Kind = "repo-map-updated"
	KindInputHistoryUpdated Kind = "input-history-updated"
	KindLog                 Kind = "log"
)

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindAddFile, KindDropFile, KindAddMessage, KindPrompt, KindRunCommand,
		KindAnswerQuestion, KindInterruptResponse, KindApplyEdits, KindSetModels,
		KindInit, KindResponse, KindToolEvent, KindQuestion, KindModelsUpdated,
		KindRepoMapUpdated, KindInputHistoryUpdated, KindLog:
		return true
	}
	return false
}

func (k Kind) String() string { return string(k) }

// Msg is the envelope for all messages sent over a connector channel.
// Each message is a single JSON line terminated by newline.
type Msg struct {
	Kind Kind            `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Init is the first message a connecting worker connector sends: the event
// kinds it wants routed to it, plus an optional input-history file override.
type Init struct {
	BaseDir     string `json:"base_dir"`
	Kinds       []Kind `json:"kinds,omitempty"`
	HistoryFile string `json:"history_file,omitempty"`
}

// Prompt carries one prompt turn to the worker.
type Prompt struct {
	Prompt         string `json:"prompt"`
	Mode           string `json:"mode,omitempty"`
	ArchitectModel string `json:"architect_model,omitempty"`
	PromptID       string `json:"prompt_id"`
	ClearContext   bool   `json:"clear_context,omitempty"`
}

// Response is a streaming prompt response chunk. Finished marks the last
// chunk of one message; the overall turn ends with a separate
// PromptFinished signal from the worker side.
type Response struct {
	BaseDir     string       `json:"base_dir,omitempty"`
	MessageID   string       `json:"message_id,omitempty"`
	Content     string       `json:"content,omitempty"`
	Reflected   string       `json:"reflected_message,omitempty"`
	Finished    bool         `json:"finished,omitempty"`
	EditedFiles []string     `json:"edited_files,omitempty"`
	CommitHash  string       `json:"commit_hash,omitempty"`
	CommitMsg   string       `json:"commit_message,omitempty"`
	Diff        string       `json:"diff,omitempty"`
	Usage       *UsageReport `json:"usage_report,omitempty"`
	Interrupted bool         `json:"interrupted,omitempty"`
	PromptDone  bool         `json:"prompt_done,omitempty"` // overall turn completion
}

// UsageReport is an authoritative snapshot from one of the two token
// accounting subsystems. Totals are replaced, never summed; a zero value
// means "not reported" and leaves the prior total untouched.
type UsageReport struct {
	Model           string  `json:"model,omitempty"`
	SentTokens      int     `json:"sent_tokens,omitempty"`
	ReceivedTokens  int     `json:"received_tokens,omitempty"`
	MessageCost     float64 `json:"message_cost,omitempty"`
	WorkerTotalCost float64 `json:"worker_total_cost,omitempty"`
	AgentTotalCost  float64 `json:"agent_total_cost,omitempty"`
}

// Question is an interactive yes/no question raised by the worker.
type Question struct {
	BaseDir       string `json:"base_dir,omitempty"`
	Text          string `json:"text"`
	Subject       string `json:"subject,omitempty"`
	DefaultAnswer string `json:"default_answer,omitempty"`
	Key           string `json:"key,omitempty"`
	Internal      bool   `json:"internal,omitempty"` // never forwarded back to the worker
}

// Answer resolves a pending question.
type Answer struct {
	Answer    string `json:"answer"`
	UserInput string `json:"user_input,omitempty"`
}

// ContextFile identifies one file in the worker's context set.
type ContextFile struct {
	BaseDir  string `json:"base_dir,omitempty"`
	Path     string `json:"path"`
	ReadOnly bool   `json:"read_only,omitempty"`
}

// Message is one conversation entry replayed to late-joining connectors.
type Message struct {
	BaseDir string `json:"base_dir,omitempty"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SetModels updates (or announces) the active model selection.
type SetModels struct {
	BaseDir        string `json:"base_dir,omitempty"`
	MainModel      string `json:"main_model,omitempty"`
	WeakModel      string `json:"weak_model,omitempty"`
	ArchitectModel string `json:"architect_model,omitempty"`
	EditFormat     string `json:"edit_format,omitempty"`
}

// Edit is one search/replace block applied to a file.
type Edit struct {
	Path     string `json:"path"`
	Original string `json:"original,omitempty"`
	Updated  string `json:"updated"`
}

// ApplyEdits carries a batch of prepared edits for the worker to apply.
type ApplyEdits struct {
	Edits []Edit `json:"edits"`
}

// Command runs a worker slash-command.
type Command struct {
	Name string `json:"name"`
	Args string `json:"args,omitempty"`
}

// ToolEvent reports a tool invocation by the agent layer.
type ToolEvent struct {
	BaseDir  string          `json:"base_dir,omitempty"`
	ServerID string          `json:"server_id,omitempty"`
	Name     string          `json:"name"`
	Args     json.RawMessage `json:"args,omitempty"`
	Response string          `json:"response,omitempty"`
}

// InputHistory announces an entry appended to input history by the worker.
type InputHistory struct {
	BaseDir string `json:"base_dir,omitempty"`
	Text    string `json:"text"`
}

// Log is an out-of-band log line from the worker connector.
type Log struct {
	BaseDir string `json:"base_dir,omitempty"`
	Level   string `json:"level,omitempty"`
	Message string `json:"message"`
}

// Encode creates a JSON line from a kind and payload.
func Encode(kind Kind, payload any) ([]byte, error) {
	var dataBytes json.RawMessage
	if payload != nil {
		var err error
		dataBytes, err = json.Marshal(payload)
		if err != nil {
			return nil, err
		}
	}
	line, err := json.Marshal(Msg{Kind: kind, Data: dataBytes})
	if err != nil {
		return nil, err
	}
	return append(line, '\n'), nil
}

// Decode parses a JSON line into a Msg, rejecting unknown kinds.
func Decode(line []byte) (*Msg, error) {
	var msg Msg
	if err := json.Unmarshal(line, &msg); err != nil {
		return nil, err
	}
	if !msg.Kind.Valid() {
		return nil, fmt.Errorf("wire: unknown kind %q", msg.Kind)
	}
	return &msg, nil
}

// DecodeData unmarshals the Data field of a Msg into the target struct.
func DecodeData[T any](msg *Msg) (*T, error) {
	var v T
	if len(msg.Data) == 0 {
		return &v, nil
	}
	if err := json.Unmarshal(msg.Data, &v); err != nil {
		return nil, err
	}
	return &v, nil
}
