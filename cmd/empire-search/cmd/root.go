// Package cmd provides the CLI commands for empire-search.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jayusctrojan/empire-search/internal/logging"
	"github.com/jayusctrojan/empire-search/internal/profiling"
	"github.com/jayusctrojan/empire-search/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
	profile        profiling.Session
)

// NewRootCmd creates the root command for the empire-search CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "empire-search",
		Short: "Multi-signal hybrid retrieval over indexed content",
		Long: `empire-search runs hybrid retrieval over locally indexed content:
dense embeddings, lexical matching, exact patterns, and fuzzy trigram
similarity, fused with weighted Reciprocal Rank Fusion.

Queries are classified to pick retrieval weights, repeat queries are
served from a similarity-tiered semantic cache, and results can be
expanded into token-budgeted context windows.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("empire-search version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false,
		"Enable debug logging to ~/.empire-search/logs/")
	cmd.PersistentFlags().StringVar(&profile.CPUPath, "profile-cpu", "",
		"Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profile.HeapPath, "profile-mem", "",
		"Write heap profile to file on exit")
	cmd.PersistentFlags().StringVar(&profile.TracePath, "profile-trace", "",
		"Write execution trace to file")

	cmd.PersistentPreRunE = setupRun
	cmd.PersistentPostRunE = teardownRun

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newExpandCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func setupRun(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	cfg.WriteToStderr = false
	if debugMode {
		cfg = logging.DebugConfig()
	}

	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		// Logging is best-effort for the CLI; run without it.
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
	} else {
		loggingCleanup = cleanup
	}

	if err := profile.Start(); err != nil {
		return err
	}
	return nil
}

func teardownRun(_ *cobra.Command, _ []string) error {
	err := profile.Stop()
	if loggingCleanup != nil {
		loggingCleanup()
	}
	return err
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
