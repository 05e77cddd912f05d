package main

import (
	"context"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/ui"
)

func init() {
	rootCmd.AddCommand(installCmd)
}

var installCmd = &cobra.Command{
	Use:   "install <app-name> <recipe-path> <install-path>",
	Short: "Install an app from a recipe manifest or script",
	Long:  "Parses the recipe at <recipe-path> (requirements.txt, install.json/.yaml, or install.js), provisions an isolated environment, and runs each step, prompting interactively for any Input steps.",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		appName, recipePath, installPath := args[0], args[1], args[2]

		a, err := newApp()
		if err != nil {
			return err
		}
		defer a.close()

		onProgress := func(percent int, line string) {
			if percent >= 0 {
				fmt.Println(ui.Dim.Render(fmt.Sprintf("[%3d%%] ", percent)) + line)
			} else {
				fmt.Println(ui.Dim.Render("       ") + line)
			}
		}

		res, err := a.orch.Install(context.Background(), appName, recipePath, installPath, onProgress, huhOnInput)
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("install failed after %d/%d steps: %s", res.StepsCompleted, res.TotalSteps, res.ErrorMessage)
		}

		fmt.Println(ui.Green.Render("installed ") + ui.White.Render(appName))
		return nil
	},
}

// huhOnInput satisfies orchestrator.OnInput: it renders a single
// huh.Input field per Input step, grounded on the teacher's
// internal/installer/forms.go huh.NewForm/huh.NewGroup usage, reduced to
// a single ad hoc field since there is no multi-field wizard here.
func huhOnInput(prompt, def, variableName string) (string, error) {
	value := def
	field := huh.NewInput().
		Title(prompt).
		Description("variable: " + variableName).
		Value(&value)

	form := huh.NewForm(huh.NewGroup(field)).WithTheme(huh.ThemeCatppuccin())
	if err := form.Run(); err != nil {
		return "", err
	}
	return value, nil
}
