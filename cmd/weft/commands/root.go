package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/weftlang/weft/pkg/engine"
	"github.com/weftlang/weft/pkg/fetch"
	"github.com/weftlang/weft/pkg/format"
)

var (
	// Global flags
	username string
	password string
	verbose  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "weft",
		Short: "Weft - Document Execution Driver",
		Long: `Weft loads declarative documents that carry both data and logic,
discovers their marked entry functions, and executes them with ordered,
all-or-nothing output.

Features:
  - Typed documents via CUE with unit-aware fields
  - Light procedural scripting via Starlark
  - Pluggable format codecs (weft, bweft, json, yaml, toml, text, md)
  - Cooperative async tasks with strict output ordering
  - Package publishing and vendoring against a registry
  - Capability allow-lists enforced through policy`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}
		},
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "username for remote registries and runners")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "password for remote registries and runners")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")

	// Add subcommands
	rootCmd.AddCommand(newRunCommand())
	rootCmd.AddCommand(newTestCommand())
	rootCmd.AddCommand(newPkgCommand())
	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newUnpublishCommand())
	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newRemoveCommand())
	rootCmd.AddCommand(newUserCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// credentials returns the flag-supplied credentials, or nil when absent.
func credentials() *fetch.Credentials {
	if username == "" && password == "" {
		return nil
	}
	return &fetch.Credentials{Username: username, Password: password}
}

// newPipeline builds a driver pipeline over the built-in codec registry.
func newPipeline(fetchTimeout time.Duration) *engine.Pipeline {
	logger := log.Logger
	return engine.NewPipeline(logger, format.NewRegistry(), fetch.NewClient(fetchTimeout, logger))
}
