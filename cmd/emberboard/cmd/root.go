// Package cmd provides the CLI commands for Emberboard.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/emberboard/emberboard/internal/config"
	"github.com/emberboard/emberboard/internal/logging"
	"github.com/emberboard/emberboard/pkg/version"
)

var loggingCleanup func()

// NewRootCmd creates the root command for the emberboard CLI.
func NewRootCmd() *cobra.Command {
	var dataDir string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "emberboard",
		Short: "Support forum with synonym-aware search",
		Long: `Emberboard is a community support forum whose search understands
admin-curated synonyms: per-locale rules like "frob => frob, glork"
make a search for one term find threads that only say the other.

Rules are edited with the synonyms commands (or dropped into a watched
directory); the sync command compiles them into the search engine's
filter and rebuilds the locale's index.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return startLogging(cmd, verbose)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if loggingCleanup != nil {
				loggingCleanup()
				loggingCleanup = nil
			}
		},
	}

	cmd.SetVersionTemplate("emberboard version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory (overrides config)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging to stderr")

	cmd.AddCommand(newSynonymsCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newForumCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging routes slog to the configured log file (or stderr with
// --verbose) for the lifetime of one command.
func startLogging(cmd *cobra.Command, verbose bool) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		// Config problems surface from the command itself with better
		// context; logging falls back to defaults here.
		cfg = config.NewConfig()
	}

	logCfg := logging.Config{
		Level:     cfg.Logging.Level,
		FilePath:  cfg.Logging.File,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
		MaxFiles:  cfg.Logging.MaxFiles,
	}
	if logCfg.FilePath == "" {
		logCfg.FilePath = logging.DefaultLogPath()
	}
	if verbose {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// A read-only filesystem should not block the CLI.
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		return nil
	}
	slog.SetDefault(logger)
	loggingCleanup = cleanup
	return nil
}

// loadConfig resolves the effective configuration for a command,
// honoring the --data-dir override.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	cfg, err := config.Load(cwd)
	if err != nil {
		return nil, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
