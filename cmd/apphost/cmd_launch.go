package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"
	"nhooyr.io/websocket"

	"github.com/apphost/apphost/internal/launch"
	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/ui"
	"github.com/apphost/apphost/internal/uiscan"
)

func init() {
	launchCmd.Flags().StringVar(&launchRelayAddr, "relay-addr", "", "if set, serve a live-log websocket relay at ws://<addr>/logs")
	rootCmd.AddCommand(launchCmd)
}

var launchRelayAddr string

var launchCmd = &cobra.Command{
	Use:   "launch <app-name>",
	Short: "Launch an installed app's run script",
	Long:  "Starts the app's run script, tees its output to the terminal, and once its local web UI is detected, opens a public tunnel and records the URL (spec scenario S4).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appName := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		scanner := uiscan.New()
		tunneled := false

		onPrimary := func(tag procengine.LineTag, line string) {
			fmt.Println(ui.Dim.Render(string(tag)+": ") + line)
		}

		var relay *launch.LogRelay
		if launchRelayAddr != "" {
			relay = launch.NewLogRelay()
			serveLogRelay(launchRelayAddr, relay)
		}

		onSecondary := func(tag procengine.LineTag, line string) {
			if relay != nil {
				relay.OnLine(tag, line)
			}

			if tunneled || tag == procengine.TagError {
				return
			}
			result, ok := scanner.Scan(line)
			if !ok {
				return
			}
			tunneled = true

			port, perr := portFromURL(result.URL)
			if perr != nil {
				fmt.Println(ui.Red.Render("ui-ready url not understood: ") + perr.Error())
				return
			}

			publicURL, err := a.tunnel.Open(context.Background(), port)
			if err != nil {
				fmt.Println(ui.Red.Render("tunnel open failed: ") + err.Error())
				return
			}
			if err := a.store.SetTunnel(appName, publicURL); err != nil {
				fmt.Println(ui.Red.Render("recording tunnel url failed: ") + err.Error())
				return
			}
			fmt.Println(ui.Green.Render(result.Framework+" ready: ") + publicURL)
		}

		pid, err := a.launch.Launch(context.Background(), appName, onPrimary, onSecondary)
		if err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("launched ") + ui.White.Render(fmt.Sprintf("%s (pid %d)", appName, pid)))
		if launchRelayAddr != "" {
			fmt.Println(ui.Dim.Render("live log relay: ") + "ws://" + launchRelayAddr + "/logs")
		}
		return nil
	},
}

// serveLogRelay starts an HTTP server in the background exposing relay
// at ws://addr/logs, grounded on the teacher's internal/server/terminal.go
// websocket.Accept usage (same library, generalized from a bidirectional
// terminal to LogRelay's one-way viewer Attach).
func serveLogRelay(addr string, relay *launch.LogRelay) {
	mux := http.NewServeMux()
	mux.HandleFunc("/logs", func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")
		relay.Attach(r.Context(), conn)
	})
	go http.ListenAndServe(addr, mux)
}

// portFromURL extracts the numeric port from a UIReadyScanner match,
// defaulting to 80 for a URL with no explicit port (no pattern in
// uiscan's catalog requires one, though framework log lines carry one).
func portFromURL(raw string) (int, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return 0, err
	}
	if p := u.Port(); p != "" {
		return strconv.Atoi(p)
	}
	return 80, nil
}
