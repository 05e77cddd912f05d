package procengine

import (
	"context"
	"sync"
	"testing"
	"time"
)

// collector is a thread-safe OnLine sink for assertions, grounded on the
// teacher's mockRunner pattern (internal/pct/pct_test.go).
type collector struct {
	mu     sync.Mutex
	lines  []string
	tags   []LineTag
}

func (c *collector) onLine(tag LineTag, line string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tag)
	c.lines = append(c.lines, line)
}

func (c *collector) byTag(tag LineTag) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for i, t := range c.tags {
		if t == tag {
			out = append(out, c.lines[i])
		}
	}
	return out
}

func TestRunCapturesStdoutAndExitCode(t *testing.T) {
	e := New()
	c := &collector{}
	code, err := e.Run(context.Background(), "echo hello; echo world", c.onLine, "", nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	out := c.byTag(TagStdout)
	if len(out) != 2 || out[0] != "hello" || out[1] != "world" {
		t.Fatalf("stdout lines = %v, want [hello world]", out)
	}
}

func TestRunSeparatesStdoutAndStderr(t *testing.T) {
	e := New()
	c := &collector{}
	_, err := e.Run(context.Background(), "echo out-line; echo err-line 1>&2", c.onLine, "", nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out := c.byTag(TagStdout); len(out) != 1 || out[0] != "out-line" {
		t.Fatalf("stdout = %v, want [out-line]", out)
	}
	if errs := c.byTag(TagStderr); len(errs) != 1 || errs[0] != "err-line" {
		t.Fatalf("stderr = %v, want [err-line]", errs)
	}
}

func TestRunNonZeroExitCode(t *testing.T) {
	e := New()
	c := &collector{}
	code, err := e.Run(context.Background(), "exit 7", c.onLine, "", nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 7 {
		t.Fatalf("exit code = %d, want 7", code)
	}
}

func TestRunTrailingPartialLine(t *testing.T) {
	e := New()
	c := &collector{}
	_, err := e.Run(context.Background(), "printf 'no-newline'", c.onLine, "", nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	out := c.byTag(TagStdout)
	if len(out) != 1 || out[0] != "no-newline" {
		t.Fatalf("stdout = %v, want [no-newline]", out)
	}
}

func TestKillUnknownPidReturnsTrue(t *testing.T) {
	e := New()
	if ok := e.Kill(999999); !ok {
		t.Fatal("Kill() on unknown pid = false, want true (idempotent per P7)")
	}
}

func TestKillTerminalProcessReturnsTrue(t *testing.T) {
	e := New()
	c := &collector{}
	_, err := e.Run(context.Background(), "true", c.onLine, "", nil, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	all := e.ListAll()
	if len(all) != 1 {
		t.Fatalf("ListAll() = %v, want 1 record", all)
	}
	if ok := e.Kill(all[0].PID); !ok {
		t.Fatal("Kill() on terminal pid = false, want true")
	}
}

func TestKillRunningProcess(t *testing.T) {
	e := New()
	c := &collector{}
	done := make(chan struct{})
	var pid int
	go func() {
		defer close(done)
		code, _ := e.Run(context.Background(), "sleep 30", c.onLine, "", nil, nil)
		_ = code
	}()

	// Poll until the process is registered.
	deadline := time.After(2 * time.Second)
	for pid == 0 {
		for p := range e.ListActive() {
			pid = p
		}
		select {
		case <-deadline:
			t.Fatal("process never registered as active")
		default:
		}
	}

	if ok := e.Kill(pid); !ok {
		t.Fatal("Kill() on running pid = false, want true")
	}

	select {
	case <-done:
	case <-time.After(killGrace + 2*time.Second):
		t.Fatal("Run() did not return after Kill()")
	}
}

func TestCompactDropsTerminalRecords(t *testing.T) {
	e := New()
	c := &collector{}
	if _, err := e.Run(context.Background(), "true", c.onLine, "", nil, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(e.ListAll()) != 1 {
		t.Fatal("expected one terminal record before compaction")
	}
	e.Compact()
	if len(e.ListAll()) != 0 {
		t.Fatal("expected no records after Compact()")
	}
}

func TestRunOnStartReceivesPIDBeforeExit(t *testing.T) {
	e := New()
	c := &collector{}
	var startedPID int
	code, err := e.Run(context.Background(), "true", c.onLine, "", nil, func(pid int) {
		startedPID = pid
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if startedPID <= 0 {
		t.Fatalf("onStart pid = %d, want a positive pid", startedPID)
	}
}

func TestRunSpawnFailure(t *testing.T) {
	e := New()
	c := &collector{}
	code, err := e.Run(context.Background(), "", c.onLine, "", nil, nil)
	if err == nil {
		t.Fatal("expected error for empty command")
	}
	if code != SpawnFailureExitCode {
		t.Fatalf("code = %d, want %d", code, SpawnFailureExitCode)
	}
}
