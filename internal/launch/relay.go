// relay.go bridges a running app's output lines to a WebSocket client
// for live-log viewing, grounded on the teacher's
// internal/server/terminal.go PTY<->WebSocket bridge — generalized here
// from a bidirectional interactive shell to a one-way log tee, since
// LaunchOrchestrator's tracked processes are unattended background jobs,
// not interactive shells.
package launch

import (
	"context"
	"sync"

	"nhooyr.io/websocket"

	"github.com/apphost/apphost/internal/procengine"
)

// LogRelay fans a process's output lines out to any number of connected
// WebSocket viewers, keeping a small backlog so a viewer connecting
// mid-run still sees recent context.
type LogRelay struct {
	mu      sync.Mutex
	viewers map[*websocket.Conn]struct{}
	backlog []string
}

const backlogSize = 200

// NewLogRelay constructs an empty relay.
func NewLogRelay() *LogRelay {
	return &LogRelay{viewers: make(map[*websocket.Conn]struct{})}
}

// OnLine is a procengine.OnLine adapter: attach via
// relay.OnLine as Launch's onSecondary callback to mirror every output
// line to connected viewers.
func (lr *LogRelay) OnLine(tag procengine.LineTag, line string) {
	formatted := string(tag) + ": " + line

	lr.mu.Lock()
	lr.backlog = append(lr.backlog, formatted)
	if len(lr.backlog) > backlogSize {
		lr.backlog = lr.backlog[len(lr.backlog)-backlogSize:]
	}
	conns := make([]*websocket.Conn, 0, len(lr.viewers))
	for c := range lr.viewers {
		conns = append(conns, c)
	}
	lr.mu.Unlock()

	for _, c := range conns {
		if err := c.Write(context.Background(), websocket.MessageText, []byte(formatted)); err != nil {
			lr.removeViewer(c)
		}
	}
}

// Attach registers conn as a viewer, replays the backlog, and blocks
// until conn's read loop errors (client disconnect) or ctx is canceled.
// Per the teacher's pattern, a read goroutine runs alongside so a closed
// client is detected promptly even though log viewers never send data.
func (lr *LogRelay) Attach(ctx context.Context, conn *websocket.Conn) {
	lr.mu.Lock()
	lr.viewers[conn] = struct{}{}
	backlog := append([]string(nil), lr.backlog...)
	lr.mu.Unlock()

	for _, line := range backlog {
		if conn.Write(ctx, websocket.MessageText, []byte(line)) != nil {
			lr.removeViewer(conn)
			return
		}
	}

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			break
		}
	}
	lr.removeViewer(conn)
}

func (lr *LogRelay) removeViewer(conn *websocket.Conn) {
	lr.mu.Lock()
	delete(lr.viewers, conn)
	lr.mu.Unlock()
}
