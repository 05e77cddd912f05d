package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/ui"
)

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

var uninstallForce bool

func init() {
	uninstallCmd.Flags().BoolVarP(&uninstallForce, "force", "f", false, "skip the confirmation prompt")
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall <app-name>",
	Short: "Remove an app's environment, install directory, and state record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appName := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if !uninstallForce && !confirm(bufio.NewReader(os.Stdin), fmt.Sprintf("Remove %q and all its data?", appName)) {
			fmt.Println("Uninstall cancelled.")
			return nil
		}

		res, err := a.lib.Uninstall(context.Background(), appName, func(line string) {
			fmt.Println(ui.Dim.Render("  -> ") + line)
		})
		if err != nil {
			return err
		}
		if !res.Success {
			fmt.Println(ui.Red.Render("uninstall completed with failures:"))
			if res.EnvDestroyFailed != "" {
				fmt.Println("  env: " + res.EnvDestroyFailed)
			}
			if res.DirRemoveFailed != "" {
				fmt.Println("  dir: " + res.DirRemoveFailed)
			}
			return nil
		}
		fmt.Println(ui.Green.Render("removed ") + ui.White.Render(appName))
		return nil
	},
}

// confirm mirrors the teacher's cmd_uninstall.go y/n prompt helper.
func confirm(reader *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	return line == "y" || line == "yes"
}
