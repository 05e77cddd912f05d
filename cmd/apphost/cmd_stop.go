package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/procengine"
	"github.com/apphost/apphost/internal/ui"
)

func init() {
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop <app-name>",
	Short: "Stop a running app",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appName := args[0]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.tunnel.CloseAll(); err != nil {
			fmt.Println(ui.Dim.Render("tunnel teardown: ") + err.Error())
		}

		onLine := func(tag procengine.LineTag, line string) {
			fmt.Println(ui.Dim.Render(string(tag)+": ") + line)
		}
		if err := a.launch.Stop(appName, onLine); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("stopped ") + ui.White.Render(appName))
		return nil
	},
}
