package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apphost/apphost/internal/config"
	"github.com/apphost/apphost/internal/ui"
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View and initialize apphost configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Display the current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(config.DefaultConfigPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		fmt.Println(ui.Cyan.Render("Base path:       ") + ui.White.Render(orDefault(cfg.BasePath, "(platform-detected)")))
		fmt.Println(ui.Cyan.Render("Catalog URL:     ") + ui.White.Render(cfg.Catalog.URL))
		fmt.Println(ui.Cyan.Render("Catalog refresh: ") + ui.White.Render(cfg.Catalog.Refresh))
		fmt.Println(ui.Cyan.Render("Env backend:     ") + ui.White.Render(orDefault(cfg.EnvProv.PreferredBackend, "(platform default)")))
		fmt.Println(ui.Cyan.Render("Tunnel token:    ") + ui.Dim.Render(maskToken(cfg.Tunnel.AuthToken)))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := &config.Config{
			Catalog: config.CatalogConfig{URL: config.DefaultCatalogURL, Refresh: config.RefreshDaily},
		}
		if err := cfg.Save(config.DefaultConfigPath); err != nil {
			return err
		}
		fmt.Println(ui.Green.Render("wrote ") + ui.White.Render(config.DefaultConfigPath))
		return nil
	},
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func maskToken(tok string) string {
	if tok == "" {
		return "(unset, falls back to " + config.TunnelAuthEnvVar + ")"
	}
	if len(tok) <= 4 {
		return "****"
	}
	return tok[:2] + "****" + tok[len(tok)-2:]
}
