package main

import (
	"fmt"
	"os"

	"github.com/apphost/apphost/internal/ui"
	"github.com/apphost/apphost/internal/version"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "apphost",
	Short:   "apphost — lifecycle manager for cloud-hosted AI/ML apps",
	Version: version.Version,
}

func init() {
	rootCmd.Long = ui.Green.Render("apphost") + " " + ui.Cyan.Render(version.Version) + "\n" +
		ui.Dim.Render("Installs, launches, and tears down third-party AI/ML apps packaged as declarative recipe manifests, inside a single notebook or cloud-environment process.")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, ui.Red.Render("error:")+" "+err.Error())
		os.Exit(1)
	}
}
