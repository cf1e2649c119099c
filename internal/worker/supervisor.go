// Package worker supervises the per-project worker process: launch argument
// assembly, liveness markers for crash recovery, process-group termination,
// and stdout/stderr forwarding.
package worker

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"

	"github.com/agusx1211/amux/internal/debug"
)

const maxLineSize = 1024 * 1024 // 1 MB

// Supervisor owns the worker process handle for one project.
//
// The callbacks run on the supervisor's pump goroutines; they must not block.
type Supervisor struct {
	baseDir string
	runDir  string // liveness marker directory

	// OnStdout receives each worker stdout line (command output capture).
	OnStdout func(line string)
	// OnUserError surfaces a user-visible worker error (argument/usage errors).
	OnUserError func(msg string)
	// OnExit fires once when the worker process exits, with its exit code.
	OnExit func(code int, err error)

	mu  sync.Mutex
	cmd *exec.Cmd
}

// NewSupervisor returns a supervisor for the project at baseDir, persisting
// liveness markers under runDir.
func NewSupervisor(baseDir, runDir string) *Supervisor {
	return &Supervisor{baseDir: baseDir, runDir: runDir}
}

// MarkerPath returns the liveness marker file for baseDir under runDir:
// the hex SHA-256 of the base directory path, with a .pid suffix.
func MarkerPath(runDir, baseDir string) string {
	sum := sha256.Sum256([]byte(baseDir))
	return filepath.Join(runDir, hex.EncodeToString(sum[:])+".pid")
}

// Running reports whether a worker process is currently attached.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cmd != nil
}

// Pid returns the running worker's pid, or 0.
func (s *Supervisor) Pid() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Start launches a new worker. Any previous worker recorded in the liveness
// marker is killed first (best effort) and the stale marker removed; an
// already-attached process is stopped unconditionally — there is no graceful
// handoff on restart.
func (s *Supervisor) Start(spec LaunchSpec) error {
	if s.Running() {
		if err := s.Stop(); err != nil {
			return err
		}
	}
	s.killStale()

	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = s.baseDir
	cmd.Env = spec.Env
	// Own process group so the whole tree can be killed; the worker's
	// connector spawns helpers that would otherwise be orphaned.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("worker: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("worker: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("worker: start %s: %w", spec.Command, err)
	}

	s.mu.Lock()
	s.cmd = cmd
	s.mu.Unlock()

	s.writeMarker(cmd.Process.Pid)
	debug.LogKV("worker", "started", "base_dir", s.baseDir, "pid", cmd.Process.Pid, "command", spec.Command)

	go s.pumpStdout(stdout)
	go s.pumpStderr(stderr)
	go func() {
		err := cmd.Wait()
		code := 0
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		s.mu.Lock()
		if s.cmd == cmd {
			s.cmd = nil
		}
		s.mu.Unlock()
		debug.LogKV("worker", "exited", "base_dir", s.baseDir, "code", code, "err", err)
		if s.OnExit != nil {
			s.OnExit(code, err)
		}
	}()

	return nil
}

// Stop terminates the worker's entire process tree with SIGKILL and removes
// the liveness marker. A process that is already gone counts as success;
// any other kill failure propagates, since callers may depend on the worker
// being gone before proceeding.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cmd := s.cmd
	s.cmd = nil
	s.mu.Unlock()

	if cmd != nil && cmd.Process != nil {
		if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
			return fmt.Errorf("worker: kill pid %d: %w", cmd.Process.Pid, err)
		}
	}
	s.removeMarker()
	return nil
}

// killStale kills whatever process the liveness marker references, tolerating
// "no such process". Any other failure is logged and startup proceeds.
func (s *Supervisor) killStale() {
	path := MarkerPath(s.runDir, s.baseDir)
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			debug.LogKV("worker", "reading liveness marker failed", "path", path, "err", err)
		}
		return
	}
	defer s.removeMarker()

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		debug.LogKV("worker", "unparseable liveness marker", "path", path, "content", string(data))
		return
	}
	if err := syscall.Kill(-pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		debug.LogKV("worker", "killing stale worker failed", "pid", pid, "err", err)
	} else {
		debug.LogKV("worker", "cleaned up stale worker", "pid", pid)
	}
}

// writeMarker records the worker's pid, best-effort: failures are logged,
// never fatal.
func (s *Supervisor) writeMarker(pid int) {
	if err := os.MkdirAll(s.runDir, 0755); err != nil {
		debug.LogKV("worker", "creating run dir failed", "dir", s.runDir, "err", err)
		return
	}
	path := MarkerPath(s.runDir, s.baseDir)
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0644); err != nil {
		debug.LogKV("worker", "writing liveness marker failed", "path", path, "err", err)
	}
}

func (s *Supervisor) removeMarker() {
	path := MarkerPath(s.runDir, s.baseDir)
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		debug.LogKV("worker", "removing liveness marker failed", "path", path, "err", err)
	}
}

func (s *Supervisor) pumpStdout(r interface{ Read([]byte) (int, error) }) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if s.OnStdout != nil {
			s.OnStdout(scanner.Text())
		}
	}
}

// pumpStderr classifies worker stderr: known warnings are downgraded to
// debug logging, usage/argument errors are surfaced to the user, and
// everything else is logged without surfacing.
func (s *Supervisor) pumpStderr(r interface{ Read([]byte) (int, error) }) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := scanner.Text()
		s.classifyStderr(line)
	}
}

func (s *Supervisor) classifyStderr(line string) {
	trimmed := strings.TrimSpace(line)
	switch {
	case trimmed == "":
		return
	case strings.HasPrefix(trimmed, "Warning:"):
		debug.LogKV("worker.stderr", "warning", "base_dir", s.baseDir, "line", trimmed)
	case strings.HasPrefix(trimmed, "usage:"):
		msg := trimmed
		if idx := strings.Index(trimmed, "error:"); idx >= 0 {
			msg = strings.TrimSpace(trimmed[idx+len("error:"):])
		}
		debug.LogKV("worker.stderr", "usage error", "base_dir", s.baseDir, "msg", msg)
		if s.OnUserError != nil {
			s.OnUserError(msg)
		}
	default:
		debug.LogKV("worker.stderr", "error", "base_dir", s.baseDir, "line", trimmed)
	}
}
