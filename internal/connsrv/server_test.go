package connsrv

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/agusx1211/amux/internal/wire"
)

// recorder implements dispatchTarget and records every inbound call.
type recorder struct {
	mu        sync.Mutex
	responses []wire.Response
	questions []wire.Question
	tools     []wire.ToolEvent
	models    []wire.SetModels
	logs      []wire.Log
	repoMaps  int
	histories int
	asked     chan wire.Question
}

func newRecorder() *recorder {
	return &recorder{asked: make(chan wire.Question, 8)}
}

func (r *recorder) HandleResponse(resp wire.Response) {
	r.mu.Lock()
	r.responses = append(r.responses, resp)
	r.mu.Unlock()
}

func (r *recorder) Ask(ctx context.Context, q wire.Question) (string, string, error) {
	r.mu.Lock()
	r.questions = append(r.questions, q)
	r.mu.Unlock()
	r.asked <- q
	return "n", "", nil
}

func (r *recorder) HandleToolEvent(ev wire.ToolEvent) {
	r.mu.Lock()
	r.tools = append(r.tools, ev)
	r.mu.Unlock()
}

func (r *recorder) ModelsUpdated(m wire.SetModels) {
	r.mu.Lock()
	r.models = append(r.models, m)
	r.mu.Unlock()
}

func (r *recorder) HandleRepoMapUpdated() {
	r.mu.Lock()
	r.repoMaps++
	r.mu.Unlock()
}

func (r *recorder) HandleInputHistoryUpdated() {
	r.mu.Lock()
	r.histories++
	r.mu.Unlock()
}

func (r *recorder) HandleLog(l wire.Log) {
	r.mu.Lock()
	r.logs = append(r.logs, l)
	r.mu.Unlock()
}

func encodeMsg(t *testing.T, kind wire.Kind, payload any) *wire.Msg {
	t.Helper()
	line, err := wire.Encode(kind, payload)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	msg, err := wire.Decode(line)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return msg
}

func TestDispatchResponse(t *testing.T) {
	srv := New(nil, "")
	rec := newRecorder()

	srv.dispatch(rec, encodeMsg(t, wire.KindResponse, wire.Response{Content: "chunk"}))
	srv.dispatch(rec, encodeMsg(t, wire.KindResponse, wire.Response{Finished: true, Content: "final"}))

	if len(rec.responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(rec.responses))
	}
	if !rec.responses[1].Finished || rec.responses[1].Content != "final" {
		t.Fatalf("responses[1] = %+v", rec.responses[1])
	}
}

func TestDispatchQuestionAsync(t *testing.T) {
	srv := New(nil, "")
	rec := newRecorder()

	srv.dispatch(rec, encodeMsg(t, wire.KindQuestion, wire.Question{Text: "proceed?"}))

	select {
	case q := <-rec.asked:
		if q.Text != "proceed?" {
			t.Fatalf("question = %+v", q)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("question never dispatched")
	}
}

func TestDispatchEventKinds(t *testing.T) {
	srv := New(nil, "")
	rec := newRecorder()

	srv.dispatch(rec, encodeMsg(t, wire.KindToolEvent, wire.ToolEvent{Name: "grep"}))
	srv.dispatch(rec, encodeMsg(t, wire.KindModelsUpdated, wire.SetModels{MainModel: "gpt-4o"}))
	srv.dispatch(rec, encodeMsg(t, wire.KindRepoMapUpdated, nil))
	srv.dispatch(rec, encodeMsg(t, wire.KindInputHistoryUpdated, nil))
	srv.dispatch(rec, encodeMsg(t, wire.KindLog, wire.Log{Level: "info", Message: "hi"}))

	if len(rec.tools) != 1 || rec.tools[0].Name != "grep" {
		t.Fatalf("tools = %+v", rec.tools)
	}
	if len(rec.models) != 1 || rec.models[0].MainModel != "gpt-4o" {
		t.Fatalf("models = %+v", rec.models)
	}
	if rec.repoMaps != 1 {
		t.Fatalf("repoMaps = %d, want 1", rec.repoMaps)
	}
	if rec.histories != 1 {
		t.Fatalf("histories = %d, want 1", rec.histories)
	}
	if len(rec.logs) != 1 || rec.logs[0].Message != "hi" {
		t.Fatalf("logs = %+v", rec.logs)
	}
}

func TestDispatchIgnoresOutboundKinds(t *testing.T) {
	srv := New(nil, "")
	rec := newRecorder()

	// Outbound command kinds arriving inbound are dropped, not dispatched.
	srv.dispatch(rec, encodeMsg(t, wire.KindPrompt, wire.Prompt{Prompt: "x", PromptID: "p"}))
	srv.dispatch(rec, encodeMsg(t, wire.KindAddFile, wire.ContextFile{Path: "a.go"}))

	if len(rec.responses) != 0 || len(rec.questions) != 0 {
		t.Fatal("outbound kinds must not dispatch")
	}
}

func TestWSConnSendDropsWhenClosed(t *testing.T) {
	c := newWSConn(nil, []wire.Kind{wire.KindPrompt}, "")
	c.close()
	// Send after close must not panic; the message is simply dropped.
	c.Send(wire.Msg{Kind: wire.KindPrompt})
}

func TestServerURL(t *testing.T) {
	srv := New(nil, "127.0.0.1:0")
	if got := srv.URL(); got != "ws://127.0.0.1:0/ws" {
		t.Fatalf("URL = %q", got)
	}
}
