// Package cli implements the enso command-line interface.
package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/lwt-sadais/EnsoAI/internal/config"
)

// newConfigCmd creates the config command with subcommands.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage enso configuration.

Configuration is loaded from multiple sources with this priority:
  1. Environment variables (ENSO_*)
  2. Project: .enso/config.yaml
  3. User: ~/.enso/config.yaml
  4. Defaults: Built-in values

Subcommands:
  show     Show merged configuration
  get      Get a specific config value
  set      Set a config value
  import   Seed config from the desktop app's settings.json

Examples:
  enso config show                        # Show merged config as YAML
  enso config show --source               # Show with source annotations
  enso config get merge.default_strategy
  enso config set merge.default_strategy squash
  enso config set --project worktree.root .trees
  enso config import ~/.config/EnsoAI/settings.json`,
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())
	cmd.AddCommand(newConfigImportCmd())

	return cmd
}

// newConfigShowCmd creates the 'config show' subcommand.
func newConfigShowCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show merged configuration",
		Long: `Show the merged configuration from all sources.

By default, outputs valid YAML. Use --source to see where each value comes from.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc, err := config.LoadWithSources(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			out := cmd.OutOrStdout()
			if showSource {
				return printConfigWithSources(out, tc)
			}

			return printConfigAsYAML(out, tc.Config)
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "Show source for each value")

	return cmd
}

// newConfigGetCmd creates the 'config get' subcommand.
func newConfigGetCmd() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Get a specific config value",
		Long: `Get a specific configuration value by key.

Keys use dot notation for nested values (e.g., "merge.default_strategy").

Examples:
  enso config get merge.default_strategy
  enso config get server.port
  enso config get merge.auto_stash --source`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]

			tc, err := config.LoadWithSources(".")
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			value, err := tc.Config.GetValue(key)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if showSource {
				source := tc.GetTrackedSource(key)
				fmt.Fprintf(out, "%s (from %s)\n", value, source)
			} else {
				fmt.Fprintln(out, value)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&showSource, "source", false, "Show source of the value")

	return cmd
}

// newConfigSetCmd creates the 'config set' subcommand.
func newConfigSetCmd() *cobra.Command {
	var (
		setProject bool
		setUser    bool
	)

	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a config value",
		Long: `Set a configuration value.

By default, values are saved to the user config (~/.enso/config.yaml).
Use flags to specify a different target:

  --user     Save to ~/.enso/config.yaml (default)
  --project  Save to .enso/config.yaml

Examples:
  enso config set merge.default_strategy squash
  enso config set --project worktree.root .trees`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			targetPath, targetName, err := configTarget(setProject)
			if err != nil {
				return err
			}

			// Load existing config from target file or create new
			cfg, err := config.LoadFrom(targetPath)
			if err != nil {
				return fmt.Errorf("load config from %s: %w", targetPath, err)
			}

			if err := cfg.SetValue(key, value); err != nil {
				return fmt.Errorf("set %s: %w", key, err)
			}

			if err := cfg.SaveTo(targetPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", key, value, targetName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&setProject, "project", false, "Save to project config (.enso/config.yaml)")
	cmd.Flags().BoolVar(&setUser, "user", false, "Save to user config (~/.enso/config.yaml)")
	cmd.MarkFlagsMutuallyExclusive("project", "user")

	return cmd
}

// newConfigImportCmd creates the 'config import' subcommand.
func newConfigImportCmd() *cobra.Command {
	var importProject bool

	cmd := &cobra.Command{
		Use:   "import <settings.json>",
		Short: "Seed config from the desktop app's settings.json",
		Long: `Import settings from the desktop app's legacy settings.json.

Only the keys this backend owns are read (git binary, proxies, merge
defaults, worktree root, server port); everything else in the file is
left to the app. Imported values are written to the user config, or to
the project config with --project.

Example:
  enso config import ~/.config/EnsoAI/settings.json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settingsPath := args[0]

			targetPath, targetName, err := configTarget(importProject)
			if err != nil {
				return err
			}

			cfg, err := config.LoadFrom(targetPath)
			if err != nil {
				return fmt.Errorf("load config from %s: %w", targetPath, err)
			}

			applied, err := config.ImportLegacySettings(settingsPath, cfg)
			if err != nil {
				return err
			}
			if len(applied) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No recognized settings found; nothing imported.")
				return nil
			}

			if err := cfg.SaveTo(targetPath); err != nil {
				return fmt.Errorf("save config: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, key := range applied {
				value, err := cfg.GetValue(key)
				if err != nil {
					continue
				}
				fmt.Fprintf(out, "  %s = %s\n", key, value)
			}
			fmt.Fprintf(out, "Imported %d setting(s) into %s\n", len(applied), targetName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&importProject, "project", false, "Write to project config (.enso/config.yaml)")

	return cmd
}

// configTarget picks the config file a write lands in.
func configTarget(project bool) (path, name string, err error) {
	if project {
		return config.ProjectConfigPath("."), ".enso/config.yaml", nil
	}
	path, err = config.UserConfigPath()
	if err != nil {
		return "", "", err
	}
	return path, "~/.enso/config.yaml", nil
}

// printConfigAsYAML outputs the config as valid YAML.
func printConfigAsYAML(out io.Writer, cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	fmt.Fprint(out, string(data))
	return nil
}

// printConfigWithSources outputs config values with source annotations.
func printConfigWithSources(out io.Writer, tc *config.TrackedConfig) error {
	paths := config.AllConfigPaths()
	sort.Strings(paths)

	for _, path := range paths {
		value, err := tc.Config.GetValue(path)
		if err != nil {
			continue
		}

		source := tc.GetTrackedSource(path)
		fmt.Fprintf(out, "%s = %s (%s)\n", path, value, source)
	}

	return nil
}
