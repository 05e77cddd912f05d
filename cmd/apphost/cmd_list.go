package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/store"
	"github.com/apphost/apphost/internal/ui"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List every managed app and its status",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		// On-demand reconciliation of spec §5's tunnel-dead-but-state-says-
		// alive race: a RUNNING app whose tunnel died on its own (rather
		// than via an explicit stop) would otherwise show RUNNING with a
		// dead URL forever.
		if reconciled, err := a.launch.ReconcileTunnels(a.tunnel); err == nil {
			for _, name := range reconciled {
				fmt.Println(ui.Dim.Render("tunnel for " + name + " is no longer reachable; marked INSTALLED"))
			}
		}

		records, err := a.store.All()
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println(ui.Dim.Render("no apps installed"))
			return nil
		}

		for _, rec := range records {
			fmt.Printf("%s  %s", ui.White.Render(rec.AppName), statusStyle(rec.Status).Render(string(rec.Status)))
			if rec.TunnelURL != nil {
				fmt.Printf("  %s", ui.Cyan.Render(*rec.TunnelURL))
			}
			fmt.Println()
		}
		return nil
	},
}

func statusStyle(s store.Status) lipgloss.Style {
	switch s {
	case store.StatusRunning, store.StatusInstalled:
		return ui.Green
	case store.StatusError:
		return ui.Red
	default:
		return ui.Dim
	}
}
