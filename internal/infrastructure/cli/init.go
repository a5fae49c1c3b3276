package cli

import (
	"fmt"

	"github.com/felixgeelhaar/sitepulse/internal/infrastructure/config"
	"github.com/felixgeelhaar/sitepulse/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	initSource string
	initAPIURL string
	initDir    string
	initPlugin string
	initForce  bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a SitePulse workspace",
	Long: `Create .sitepulse/ with a config.yaml for the chosen feed source.

  api     read feeds from the project management REST API (--api-url)
  file    read <jobID>.json bundles from a directory (--dir)
  plugin  run a feed plugin binary (--plugin)`,
	Example: `  sitepulse init --api-url https://pm.example.com/api
  sitepulse init --source file --dir bundles`,
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		repo := storage.NewFilesystemRepository(root)
		if repo.Exists(storage.ConfigFile) && !initForce {
			return NewCLIError("workspace already initialized", "Pass --force to overwrite .sitepulse/config.yaml", nil)
		}

		cfg := config.Default()
		cfg.Source = initSource
		switch initSource {
		case config.SourceAPI:
			cfg.API.BaseURL = initAPIURL
		case config.SourceFile:
			cfg.File.Dir = initDir
		case config.SourcePlugin:
			cfg.Plugin.Binary = initPlugin
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid workspace settings: %w", err)
		}

		if err := repo.Initialize(); err != nil {
			return err
		}
		if err := config.Save(repo, cfg); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized SitePulse workspace in %s (source: %s)\n", repo.Dir(), cfg.Source)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initSource, "source", config.SourceAPI, "Feed source: api, file or plugin")
	initCmd.Flags().StringVar(&initAPIURL, "api-url", "", "Project management API base URL")
	initCmd.Flags().StringVar(&initDir, "dir", "bundles", "Bundle directory for the file source")
	initCmd.Flags().StringVar(&initPlugin, "plugin", "", "Feed plugin binary for the plugin source")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config")
	RootCmd.AddCommand(initCmd)
}
