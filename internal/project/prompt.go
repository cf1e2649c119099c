package project

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/usage"
	"github.com/agusx1211/amux/internal/wire"
)

// RunPrompt executes one prompt turn and blocks until it completes,
// returning the completed response fragments accumulated for this turn.
//
// Execution is single-flight per project: while a turn is active, further
// callers queue FIFO and each runs its own turn after the previous one
// finishes. An open question is first auto-answered "no", carrying the new
// prompt as supplementary user input; if that resolved a waiter the
// submission is consumed and returns immediately with no result.
//
// A canceled turn (worker death, explicit stop) returns an empty result,
// never an error: crash recovery resolves every waiter.
func (p *Project) RunPrompt(ctx context.Context, prompt, mode string) ([]ResponseCompletedEvent, error) {
	p.mu.Lock()
	pendingQuestion := p.question != nil
	p.mu.Unlock()
	if pendingQuestion {
		if p.Answer("n", prompt) {
			return nil, nil
		}
	}

	p.mu.Lock()
	for p.run != nil {
		starter := make(chan bool, 1)
		p.starters = append(p.starters, starter)
		p.mu.Unlock()

		select {
		case proceed := <-starter:
			if !proceed {
				// Canceled while queued: resolve with an empty result.
				return nil, nil
			}
		case <-ctx.Done():
			p.removeStarter(starter)
			return nil, ctx.Err()
		}
		p.mu.Lock()
	}

	run := &promptRun{
		id:   uuid.NewString(),
		done: make(chan struct{}),
	}
	p.run = run
	p.messages = append(p.messages, wire.Message{Role: "user", Content: prompt})
	clearContext := p.clearNext
	p.clearNext = false
	architect := p.models.ArchitectModel
	p.mu.Unlock()

	p.AddToInputHistory(prompt)
	p.emit(UserMessageEvent{BaseDir: p.baseDir, Content: prompt, Mode: mode})
	p.emit(LoadingEvent{BaseDir: p.baseDir, On: true})

	debug.LogKV("project", "prompt started", "base_dir", p.baseDir, "prompt_id", run.id, "mode", mode)
	p.registry.Route(wire.KindPrompt, wire.Prompt{
		Prompt:         prompt,
		Mode:           mode,
		ArchitectModel: architect,
		PromptID:       run.id,
		ClearContext:   clearContext,
	})

	select {
	case <-run.done:
		return run.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ActivePromptID returns the active turn's identifier, or "".
func (p *Project) ActivePromptID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return ""
	}
	return p.run.id
}

// QueuedPrompts returns the number of submitters waiting to start.
func (p *Project) QueuedPrompts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.starters)
}

// ClearContextNext marks the next prompt to be sent with the clear-context
// flag and drops the accumulated conversation.
func (p *Project) ClearContextNext() {
	p.mu.Lock()
	p.clearNext = true
	p.messages = nil
	p.mu.Unlock()
}

func (p *Project) removeStarter(starter chan bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, st := range p.starters {
		if st == starter {
			p.starters = append(p.starters[:i], p.starters[i+1:]...)
			return
		}
	}
}

// HandleResponse processes one streaming response event from the worker.
// Unfinished chunks are forwarded to the UI verbatim; the finished event
// folds usage accounting, the commit-message cost suffix, and command
// capture closure, and appends the completed fragment to the active turn.
func (p *Project) HandleResponse(resp wire.Response) {
	if resp.PromptDone {
		p.PromptFinished()
		return
	}

	p.mu.Lock()
	if resp.MessageID == "" {
		// Lazily allocate a response-message id on the first chunk.
		if p.responseMessageID == "" {
			p.responseMessageID = uuid.NewString()
		}
		resp.MessageID = p.responseMessageID
	}

	if !resp.Finished {
		p.mu.Unlock()
		p.emit(ResponseChunkEvent{
			BaseDir:   p.baseDir,
			MessageID: resp.MessageID,
			Content:   resp.Content,
			Reflected: resp.Reflected,
		})
		return
	}

	// Finished message: fold in usage accounting.
	rep := resp.Usage
	if rep == nil {
		rep = usage.ExtractReport(resp.Content)
	}
	if rep != nil {
		p.updateCostLocked(rep)
		if strings.TrimSpace(resp.CommitMsg) != "" {
			resp.CommitMsg = resp.CommitMsg + " " + usage.CostSuffix(rep)
		}
	}

	completed := ResponseCompletedEvent{
		BaseDir:     p.baseDir,
		MessageID:   resp.MessageID,
		Content:     resp.Content,
		Reflected:   resp.Reflected,
		EditedFiles: resp.EditedFiles,
		CommitHash:  resp.CommitHash,
		CommitMsg:   resp.CommitMsg,
		Diff:        resp.Diff,
		Usage:       rep,
	}

	if run := p.run; run != nil {
		run.fragments = append(run.fragments, completed)
	}
	if strings.TrimSpace(resp.Content) != "" {
		p.messages = append(p.messages, wire.Message{Role: "assistant", Content: resp.Content})
	}
	p.responseMessageID = ""
	closed := p.closeCommandLocked()
	p.mu.Unlock()

	p.emit(completed)
	if closed != nil {
		p.finishClosedCommand(closed)
	}
}

// PromptFinished handles the worker's overall turn-completion signal. It
// notifies the UI of a pending message completion, captures the accumulated
// fragments, clears the active turn, closes any open command capture, and
// resolves the active caller plus releases the next queued submitter (FIFO).
// This is the only normal unblock path for queued callers; the supervisor's
// stop path independently guarantees resolution when the process dies.
func (p *Project) PromptFinished() {
	p.mu.Lock()
	pendingID := p.responseMessageID
	p.responseMessageID = ""

	run := p.run
	p.run = nil

	var starter chan bool
	if len(p.starters) > 0 {
		starter = p.starters[0]
		p.starters = p.starters[1:]
	}
	closed := p.closeCommandLocked()
	p.mu.Unlock()

	if pendingID != "" {
		p.emit(ResponseCompletedEvent{BaseDir: p.baseDir, MessageID: pendingID})
	}
	if closed != nil {
		p.finishClosedCommand(closed)
	}
	if run != nil {
		run.result = run.fragments
		close(run.done)
		debug.LogKV("project", "prompt finished", "base_dir", p.baseDir, "prompt_id", run.id, "fragments", len(run.result))
	}
	if starter != nil {
		starter <- true
	}
	p.emit(LoadingEvent{BaseDir: p.baseDir, On: false})
	p.SaveSession()
}

// Interrupt routes an interrupt command to interested connectors and signals
// the tool-calling agent collaborator to cancel. It does not itself resolve
// waiters; the worker-driven PromptFinished or process death does that.
func (p *Project) Interrupt() {
	debug.LogKV("project", "interrupt", "base_dir", p.baseDir)
	p.registry.Route(wire.KindInterruptResponse, nil)
	if p.agent != nil {
		p.agent.CancelAll(p.baseDir)
	}
}
