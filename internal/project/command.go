package project

import (
	"strings"

	"github.com/agusx1211/amux/internal/debug"
	"github.com/agusx1211/amux/internal/wire"
)

// closedCommand is a finished command capture handed from the locked close
// to the unlocked conversation fold.
type closedCommand struct {
	command string
	output  string
}

// OpenCommand begins capturing output for a worker slash-command. Opening a
// command that is already open resets its buffer. The UI is notified right
// away with an empty output so it can show the command header.
func (p *Project) OpenCommand(command string) {
	p.mu.Lock()
	p.currentCommand = command
	p.commandOutput[command] = ""
	p.mu.Unlock()

	p.emit(CommandOutputEvent{BaseDir: p.baseDir, Command: command, Output: ""})
}

// AppendCommandOutput adds one output chunk to the open command's buffer,
// chunks joined with single spaces, and re-emits the accumulated output.
// Output arriving with no command open is dropped.
func (p *Project) AppendCommandOutput(chunk string) {
	p.mu.Lock()
	cmd := p.currentCommand
	if cmd == "" {
		p.mu.Unlock()
		return
	}
	buf := p.commandOutput[cmd]
	if buf == "" {
		buf = chunk
	} else {
		buf = buf + " " + chunk
	}
	p.commandOutput[cmd] = buf
	p.mu.Unlock()

	p.emit(CommandOutputEvent{BaseDir: p.baseDir, Command: cmd, Output: buf})
}

// CloseCommand ends the open command capture. Non-blank accumulated output
// is folded into the conversation as an assistant record so the worker keeps
// the command result as context across the next prompts.
func (p *Project) CloseCommand() {
	p.mu.Lock()
	closed := p.closeCommandLocked()
	p.mu.Unlock()

	if closed != nil {
		p.finishClosedCommand(closed)
	}
}

// closeCommandLocked clears the open command and returns its capture, or nil
// when no command was open. Callers hold p.mu.
func (p *Project) closeCommandLocked() *closedCommand {
	cmd := p.currentCommand
	if cmd == "" {
		return nil
	}
	out := p.commandOutput[cmd]
	p.currentCommand = ""
	delete(p.commandOutput, cmd)
	return &closedCommand{command: cmd, output: out}
}

// finishClosedCommand folds a non-blank capture into the conversation.
// Callers must not hold p.mu.
func (p *Project) finishClosedCommand(c *closedCommand) {
	out := strings.TrimSpace(c.output)
	if out == "" {
		return
	}
	debug.LogKV("project", "command output folded", "base_dir", p.baseDir, "command", c.command, "bytes", len(out))
	p.AddMessage("assistant", c.command+"\n\n"+out)
}

// RunCommand opens capture for the command and routes it to the worker.
func (p *Project) RunCommand(name, args string) {
	label := name
	if args != "" {
		label = name + " " + args
	}
	p.OpenCommand(label)
	p.registry.Route(wire.KindRunCommand, wire.Command{Name: name, Args: args})
}

// CurrentCommand returns the open command label, or "".
func (p *Project) CurrentCommand() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentCommand
}

// handleStdout receives raw worker stdout lines from the supervisor. While a
// command capture is open they accumulate into its buffer; otherwise they
// are only logged.
func (p *Project) handleStdout(line string) {
	p.mu.Lock()
	open := p.currentCommand != ""
	p.mu.Unlock()
	if open {
		p.AppendCommandOutput(line)
		return
	}
	debug.LogKV("project", "worker stdout", "base_dir", p.baseDir, "line", line)
}

// --- Cost accounting ---

// updateCostLocked folds one usage report into the running totals. Each of
// the two subsystem totals is replaced only when the report carries a
// positive value for it; zero means "not reported" and leaves the prior
// total alone. Callers hold p.mu.
func (p *Project) updateCostLocked(rep *wire.UsageReport) {
	if rep.WorkerTotalCost > 0 {
		p.workerTotal = rep.WorkerTotalCost
	}
	if rep.AgentTotalCost > 0 {
		p.agentTotal = rep.AgentTotalCost
	}
	p.emit(CostInfoEvent{BaseDir: p.baseDir, WorkerTotal: p.workerTotal, AgentTotal: p.agentTotal})
}

// UpdateCost folds one usage report into the running totals.
func (p *Project) UpdateCost(rep *wire.UsageReport) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updateCostLocked(rep)
}

// CostTotals returns the current worker and agent running totals.
func (p *Project) CostTotals() (workerTotal, agentTotal float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workerTotal, p.agentTotal
}
