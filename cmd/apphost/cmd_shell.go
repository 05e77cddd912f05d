package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/creack/pty"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(shellCmd)
}

var shellCmd = &cobra.Command{
	Use:   "shell <app-name>",
	Short: "Open an interactive shell inside an app's environment",
	Long:  "Attaches a pty-backed shell with EnvProvisioner's command prefix applied, for interactively debugging a failed install. Adapted from the teacher's cmd/pve-appstore/cmd_shell.go (pct enter) and internal/server/terminal.go's pty.Start usage.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appName := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		rec, err := a.store.Get(appName)
		if err != nil {
			return err
		}
		if rec == nil {
			return fmt.Errorf("app %q not found", appName)
		}

		prefix := a.env.Prefix(rec.EnvironmentName)
		shellBin := "/bin/bash"
		if _, err := exec.LookPath("bash"); err != nil {
			shellBin = "/bin/sh"
		}

		var c *exec.Cmd
		if prefix != "" {
			c = exec.Command("/bin/sh", "-c", prefix+" exec "+shellBin+" -l")
		} else {
			c = exec.Command(shellBin, "-l")
		}
		if rec.InstallPath != "" {
			c.Dir = rec.InstallPath
		}
		c.Env = append(os.Environ(), "TERM=xterm-256color")

		ptmx, err := pty.Start(c)
		if err != nil {
			return fmt.Errorf("starting shell: %w", err)
		}
		defer ptmx.Close()

		if w, h, err := pty.Getsize(os.Stdin); err == nil {
			pty.Setsize(ptmx, &pty.Winsize{Rows: uint16(h), Cols: uint16(w)})
		}

		go io.Copy(ptmx, os.Stdin)
		go io.Copy(os.Stdout, ptmx)

		return c.Wait()
	},
}
