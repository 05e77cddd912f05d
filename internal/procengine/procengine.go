// Package procengine implements ProcessEngine: a non-blocking shell
// execution engine that fans stdout/stderr into a callback in real time,
// tracks PIDs, and supports graceful-then-forced kill.
//
// Grounded on teacher internal/pct/pct.go's ExecStream (bufio.Scanner over
// a pipe, function-variable injection points for testing) and
// original_source/App/Core/P02_ProcessManager.py's _stream_output
// (concurrent stdout/stderr readers feeding one callback). Unlike both of
// those — which run inside an already-isolated container/venv and merge
// or single-tag their stream — this engine runs local host shell commands
// and tags stdout and stderr separately, per spec §4.3.
package procengine

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/apphost/apphost/internal/apherr"
)

// SpawnFailureExitCode is returned by Run when the command could not be
// started at all (executable missing, permission denied).
const SpawnFailureExitCode = -1

// killGrace is how long kill() waits after a graceful signal before
// force-killing, per spec §4.3/§5.
const killGrace = 5 * time.Second

// LineTag identifies which stream (or synthetic source) produced a line
// delivered to an OnLine callback.
type LineTag string

const (
	TagStdout LineTag = "stdout"
	TagStderr LineTag = "stderr"
	TagError  LineTag = "error"
)

// OnLine is invoked once per completed line (or trailing partial line at
// EOF). It may be called concurrently from different streams of the same
// process, but never re-entered for the same process on the same stream.
type OnLine func(tag LineTag, line string)

// OnStart is invoked synchronously the moment a spawned command's pid is
// known, before any output line is delivered. Callers that need the pid of
// this specific invocation (rather than polling ListAll for a command-text
// match, which is ambiguous when two calls share the same command string)
// should use this instead.
type OnStart func(pid int)

// record is ActiveProcess: engine-owned bookkeeping for one spawned
// process, keyed by its OS pid (the "engine-local handle").
type record struct {
	pid       int
	command   string
	startedAt time.Time
	terminal  bool
	state     string // "running", "completed", "failed", "killed"
	exitCode  int
	done      chan struct{}
	proc      *os.Process
}

// Engine is the process-wide singleton described in spec §9 "Global
// state": it owns its executor and a mutex-guarded table of active
// processes. The zero value is ready to use.
type Engine struct {
	mu      sync.Mutex
	procs   map[int]*record
	shut    bool
}

// New returns a ready Engine.
func New() *Engine {
	return &Engine{procs: make(map[int]*record)}
}

// Run spawns command through the host shell, streams stdout/stderr
// concurrently into onLine, blocks until the process exits, and returns
// its exit code. On spawn failure it emits a synthetic error-tagged line
// and returns SpawnFailureExitCode. onStart, if non-nil, is invoked with
// the pid the instant the process starts — this is the only way to learn
// which pid a given Run call produced, since the active-process table is
// shared across every concurrent call and may contain other records with
// the same command text.
func (e *Engine) Run(ctx context.Context, command string, onLine OnLine, cwd string, env map[string]string, onStart OnStart) (int, error) {
	if command == "" {
		return SpawnFailureExitCode, apherr.New(apherr.InvalidInput, "procengine.Run", "command", fmt.Errorf("empty command"))
	}

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if len(env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		e.emitSpawnError(onLine, command, err)
		return SpawnFailureExitCode, nil
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.emitSpawnError(onLine, command, err)
		return SpawnFailureExitCode, nil
	}

	if err := cmd.Start(); err != nil {
		e.emitSpawnError(onLine, command, err)
		return SpawnFailureExitCode, nil
	}

	rec := &record{
		pid:       cmd.Process.Pid,
		command:   command,
		startedAt: time.Now(),
		state:     "running",
		done:      make(chan struct{}),
		proc:      cmd.Process,
	}
	e.mu.Lock()
	if e.procs == nil {
		e.procs = make(map[int]*record)
	}
	e.procs[rec.pid] = rec
	e.mu.Unlock()

	if onStart != nil {
		onStart(rec.pid)
	}

	var cbMu sync.Mutex
	safeOnLine := func(tag LineTag, line string) {
		if onLine == nil {
			return
		}
		cbMu.Lock()
		defer cbMu.Unlock()
		onLine(tag, line)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go streamLines(&wg, stdout, TagStdout, safeOnLine)
	go streamLines(&wg, stderr, TagStderr, safeOnLine)
	wg.Wait()

	waitErr := cmd.Wait()
	close(rec.done)

	exitCode := 0
	if waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = SpawnFailureExitCode
			safeOnLine(TagError, waitErr.Error())
		}
	}

	e.mu.Lock()
	rec.terminal = true
	rec.exitCode = exitCode
	if rec.state != "killed" {
		if exitCode == 0 {
			rec.state = "completed"
		} else {
			rec.state = "failed"
		}
	}
	e.mu.Unlock()

	return exitCode, nil
}

func (e *Engine) emitSpawnError(onLine OnLine, command string, err error) {
	if onLine != nil {
		onLine(TagError, fmt.Sprintf("failed to spawn %q: %v", command, err))
	}
}

// streamLines reads complete lines (plus any trailing partial line at
// EOF) from r and invokes cb for each, replacing invalid UTF-8 bytes.
func streamLines(wg *sync.WaitGroup, r io.Reader, tag LineTag, cb func(LineTag, string)) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.ToValidUTF8(scanner.Bytes(), []byte("�"))
		cb(tag, string(line))
	}
}

// ActiveProcessInfo is the externally-visible snapshot of a record.
type ActiveProcessInfo struct {
	PID      int
	Command  string
	State    string
	ExitCode int
}

// ListActive returns a snapshot of non-terminal processes.
func (e *Engine) ListActive() map[int]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[int]int)
	for pid, r := range e.procs {
		if !r.terminal {
			out[pid] = pid
		}
	}
	return out
}

// ListAll returns full records, including terminal ones until compacted.
func (e *Engine) ListAll() []ActiveProcessInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ActiveProcessInfo, 0, len(e.procs))
	for _, r := range e.procs {
		out = append(out, ActiveProcessInfo{PID: r.pid, Command: r.command, State: r.state, ExitCode: r.exitCode})
	}
	return out
}

// Compact drops terminal records.
func (e *Engine) Compact() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for pid, r := range e.procs {
		if r.terminal {
			delete(e.procs, pid)
		}
	}
}

// Kill sends a graceful signal, waits up to killGrace, then force-kills if
// still alive. Idempotent per spec P7: killing a terminal or unknown pid
// returns true.
func (e *Engine) Kill(pid int) bool {
	e.mu.Lock()
	rec, ok := e.procs[pid]
	e.mu.Unlock()
	if !ok {
		return true
	}
	if rec.terminal {
		return true
	}

	_ = unix.Kill(pid, syscall.SIGTERM)

	select {
	case <-rec.done:
		e.markKilled(rec)
		return true
	case <-time.After(killGrace):
	}

	// Still alive (or the race of exiting between lookup and signal is
	// tolerated here too): force-kill and don't treat ESRCH as failure.
	_ = unix.Kill(pid, syscall.SIGKILL)
	e.markKilled(rec)
	return true
}

func (e *Engine) markKilled(rec *record) {
	e.mu.Lock()
	defer e.mu.Unlock()
	rec.terminal = true
	rec.state = "killed"
}

// Shutdown kills every non-terminal process and releases engine
// resources. Safe to call more than once.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	if e.shut {
		e.mu.Unlock()
		return
	}
	e.shut = true
	pids := make([]int, 0, len(e.procs))
	for pid, r := range e.procs {
		if !r.terminal {
			pids = append(pids, pid)
		}
	}
	e.mu.Unlock()

	for _, pid := range pids {
		e.Kill(pid)
	}
}
