package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/ui"
	"github.com/apphost/apphost/sdk"
)

func init() {
	rootCmd.AddCommand(scaffoldCmd)
}

var scaffoldCmd = &cobra.Command{
	Use:   "scaffold <dir>",
	Short: "Write a starter recipe manifest and config for a new app",
	Long:  "Writes install.json, start.json, and config.json into <dir>, a minimal starting point for authoring a third-party recipe against apphost's recipe IR. Adapted from the teacher's devmode app-scaffolding templates.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := args[0]
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}

		files := map[string]string{
			"install.json": scaffoldInstallManifest,
			"start.json":   scaffoldStartManifest,
			"config.json":  scaffoldConfig,
		}
		for name, content := range files {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				fmt.Println(ui.Dim.Render("skip (exists): ") + path)
				continue
			}
			if err := os.WriteFile(path, []byte(content), 0o640); err != nil {
				return fmt.Errorf("writing %s: %w", path, err)
			}
			fmt.Println(ui.Green.Render("wrote ") + path)
		}

		if err := writeSDK(dir); err != nil {
			return err
		}
		return nil
	},
}

// writeSDK copies the embedded Python readiness-signal helper into
// <dir>/apphost/ so a scaffolded recipe's run script can `from
// apphost.signal import ready` without a separate install step.
func writeSDK(dir string) error {
	return fs.WalkDir(sdk.PythonFS, "python", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		data, err := sdk.PythonFS.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("python", path)
		if err != nil {
			return err
		}
		dest := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
			return err
		}
		if _, statErr := os.Stat(dest); statErr == nil {
			fmt.Println(ui.Dim.Render("skip (exists): ") + dest)
			return nil
		}
		if err := os.WriteFile(dest, data, 0o640); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("wrote ") + dest)
		return nil
	})
}

const scaffoldInstallManifest = `[
  {"type": "shell", "command": "pip install --upgrade pip"},
  {"type": "input", "prompt": "API token (optional)", "variable_name": "API_TOKEN", "default": ""}
]
`

const scaffoldStartManifest = `[
  {"type": "shell", "command": "python app.py"}
]
`

const scaffoldConfig = `{
  "port": 7860
}
`
