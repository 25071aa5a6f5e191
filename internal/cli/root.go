// Package cli implements the enso command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	verbose bool
	quiet   bool
	jsonOut bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "enso",
	Short: "Git worktree and merge backend for the EnsoAI desktop app",
	Long: `enso manages git worktrees and branch merges for the EnsoAI desktop app.

The desktop shell talks to a local API server (enso serve); the same
operations are available directly from this CLI:
  • Worktree lifecycle (list, add, remove, prune)
  • Merges with merge, squash, and rebase strategies
  • Conflict inspection and per-file resolution
  • Auto-stash of uncommitted changes around merges

Quick start:
  enso worktree add feature/login     Check out a branch in its own worktree
  enso merge .worktrees/feature-login --into main
  enso merge state                    Inspect an in-progress merge
  enso serve                          Start the API server for the app`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// Errors are printed here, in their user-facing form, rather than by cobra.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		PrintError(err)
	}
	return err
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .enso/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-essential output")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "output as JSON")

	// Add subcommands
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newWorktreeCmd())
	rootCmd.AddCommand(newMergeCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in .enso directory
		viper.AddConfigPath(".enso")
		viper.AddConfigPath("$HOME/.enso")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	viper.SetEnvPrefix("ENSO")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}
