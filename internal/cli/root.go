// Package cli implements the taleforge command-line tool: a local,
// operator-facing surface over the Version Engine, Run Engine and Fork
// Handler for debugging and scripted use, distinct from the service's own
// HTTP API.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"

	"github.com/jvs-project/taleforge/pkg/color"
	"github.com/jvs-project/taleforge/pkg/logging"
	"github.com/jvs-project/taleforge/pkg/progress"
)

var (
	jsonOutput  bool
	debugOutput bool
	noProgress  bool
	noColor     bool
	configPath  string

	rootCmd = &cobra.Command{
		Use:   "taleforge",
		Short: "taleforge - reproducible-computation versioning engine",
		Long: `taleforge captures immutable snapshots ("versions") of a project's
workspace and manages the lifecycle of execution artifacts ("runs")
derived from those versions, with project forking that preserves
version identity across runs.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			color.Init(noColor)

			if debugOutput {
				os.Setenv("LOG_LEVEL", "debug")
			}
			logger, sync, err := logging.New()
			if err != nil {
				fmt.Fprintln(os.Stderr, err.Error())
				os.Exit(1)
			}
			log = logger
			logSync = sync
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logSync != nil {
				logSync()
			}
		},
	}

	log     logr.Logger
	logSync func()
)

func init() {
	defaultConfigPath := filepath.Join(os.TempDir(), "taleforge", "taleforge.yaml")

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&debugOutput, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&noProgress, "no-progress", false, "disable progress bars")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output (also respects NO_COLOR env var)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "path to the taleforge service config file")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// progressEnabled returns whether progress bars should be shown.
func progressEnabled() bool {
	return !noProgress && !jsonOutput
}

// outputJSON prints v as JSON if --json flag is set, otherwise does nothing.
func outputJSON(v any) error {
	if !jsonOutput {
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJSONOrError prints v as JSON if --json flag is set, or returns err.
func outputJSONOrError(v any, err error) error {
	if err != nil {
		return err
	}
	return outputJSON(v)
}

// newProgressCallback creates a progress callback for an operation with a
// known total, rendering a terminal progress bar unless disabled.
func newProgressCallback(op string, total int) progress.Callback {
	if !progressEnabled() {
		return progress.Noop
	}
	term := progress.NewTerminal(op, total, true)
	cb := term.Callback()
	return func(op string, current, total int, message string) {
		cb(op, current, total, message)
		if current == total {
			term.Done(message)
		}
	}
}

// newCountingProgress creates a counting progress bar for operations whose
// total item count isn't known up front.
func newCountingProgress(op string) *progress.CountingTerminal {
	return progress.NewCountingTerminal(op, progressEnabled())
}
