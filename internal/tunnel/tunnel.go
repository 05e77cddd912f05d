// Package tunnel implements TunnelBroker: expose a locally bound app port
// to the public internet and report back the URL that LaunchOrchestrator
// mirrors into StateStore (spec §4.12).
//
// No repo in the example pack exercises a tunneling concern, so this is
// wired against the ecosystem's own client for the job, golang.ngrok.com/
// ngrok, rather than invented from scratch — see DESIGN.md.
package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"golang.ngrok.com/ngrok"
	"golang.ngrok.com/ngrok/config"

	"github.com/apphost/apphost/internal/apherr"
)

// AuthEnvVar is the fallback environment variable consulted when no auth
// token is passed to New, per spec §4.12.
const AuthEnvVar = "TUNNEL_AUTH_TOKEN"

// OnLine receives broker diagnostic lines (connect/disconnect/errors).
type OnLine func(line string)

// Broker opens and tracks tunnels for locally bound app ports.
type Broker struct {
	authToken string
	onLine    OnLine

	mu      sync.Mutex
	tunnels map[string]ngrok.Tunnel // keyed by public URL
}

// New constructs a Broker. If token is empty, the TUNNEL_AUTH_TOKEN
// environment variable is used instead.
func New(token string, onLine OnLine) *Broker {
	if token == "" {
		token = os.Getenv(AuthEnvVar)
	}
	if onLine == nil {
		onLine = func(string) {}
	}
	return &Broker{authToken: token, onLine: onLine, tunnels: make(map[string]ngrok.Tunnel)}
}

// Open starts forwarding localPort to a new public URL.
func (b *Broker) Open(ctx context.Context, localPort int) (string, error) {
	if b.authToken == "" {
		return "", apherr.New(apherr.TunnelError, "tunnel.Open", "", fmt.Errorf("no auth token configured (set %s or pass one explicitly)", AuthEnvVar))
	}

	tun, err := ngrok.Listen(ctx,
		config.HTTPEndpoint(),
		ngrok.WithAuthtoken(b.authToken),
	)
	if err != nil {
		return "", apherr.New(apherr.TunnelError, "tunnel.Open", fmt.Sprintf("port %d", localPort), err)
	}

	url := tun.URL()
	b.mu.Lock()
	b.tunnels[url] = tun
	b.mu.Unlock()

	b.onLine(fmt.Sprintf("tunnel open: %s -> localhost:%d", url, localPort))

	go b.forward(tun, localPort)

	return url, nil
}

// forward accepts connections on the tunnel (which implements
// net.Listener) and pipes each to localPort, closing when the tunnel's
// Accept loop ends (tunnel closed or network error).
func (b *Broker) forward(tun ngrok.Tunnel, localPort int) {
	for {
		conn, err := tun.Accept()
		if err != nil {
			b.onLine(fmt.Sprintf("tunnel %s accept ended: %v", tun.URL(), err))
			// The tunnel died on its own (network drop, provider-side
			// teardown) rather than via an explicit Close() call, which
			// already deletes the entry itself. Untrack it here too so
			// Check() can report the dead-tunnel-but-state-says-alive race
			// from spec §5 instead of finding a stale map entry forever.
			b.mu.Lock()
			delete(b.tunnels, tun.URL())
			b.mu.Unlock()
			return
		}
		go b.pipe(conn, localPort)
	}
}

func (b *Broker) pipe(remote net.Conn, localPort int) {
	defer remote.Close()

	local, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", localPort))
	if err != nil {
		b.onLine(fmt.Sprintf("failed to dial local port %d: %v", localPort, err))
		return
	}
	defer local.Close()

	done := make(chan struct{}, 2)
	go func() { io.Copy(local, remote); done <- struct{}{} }()
	go func() { io.Copy(remote, local); done <- struct{}{} }()
	<-done
}

// Close closes the tunnel at publicURL, if tracked.
func (b *Broker) Close(publicURL string) error {
	b.mu.Lock()
	tun, ok := b.tunnels[publicURL]
	delete(b.tunnels, publicURL)
	b.mu.Unlock()

	if !ok {
		return apherr.New(apherr.NotFound, "tunnel.Close", publicURL, fmt.Errorf("tunnel not tracked"))
	}
	if err := tun.Close(); err != nil {
		return apherr.New(apherr.TunnelError, "tunnel.Close", publicURL, err)
	}
	b.onLine(fmt.Sprintf("tunnel closed: %s", publicURL))
	return nil
}

// CloseAll closes every tracked tunnel, continuing past individual
// failures and returning the first error encountered, if any.
func (b *Broker) CloseAll() error {
	b.mu.Lock()
	urls := make([]string, 0, len(b.tunnels))
	for u := range b.tunnels {
		urls = append(urls, u)
	}
	b.mu.Unlock()

	var firstErr error
	for _, u := range urls {
		if err := b.Close(u); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Check reports whether publicURL is currently tracked as open.
func (b *Broker) Check(publicURL string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tunnels[publicURL]
	return ok
}
