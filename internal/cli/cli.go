// Package cli implements the trustmesh command-line interface.
//
// Commands:
//   - report: run one trust report for a package coordinate and print it
//   - serve: run the HTTP API server
//   - cache: manage the response cache
//
// All commands support --verbose (-v) for debug-level logging and
// --config for a TOML configuration file. Loggers are passed through
// context.Context to allow structured progress tracking.
package cli

import (
	"context"
	"fmt"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	version string // semantic version (e.g., "v1.2.3")
	commit  string // git commit SHA
	date    string // build timestamp
)

// SetVersion sets the version information displayed by --version.
// Typically called by the main package with values injected via ldflags.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the trustmesh CLI and returns an error if any command
// fails. Logging defaults to info level; --verbose switches to debug.
// The logger is attached to the context and accessible to all commands
// via loggerFromContext.
func Execute(ctx context.Context) error {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:          "trustmesh",
		Short:        "Trustmesh aggregates supply-chain trust reports",
		Long:         `Trustmesh answers what is known about a software artifact: its position in the dependency graph, its build provenance, and its security posture, aggregated from a supply-chain graph store and vulnerability feeds.`,
		Version:      version,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			ctx := withLogger(cmd.Context(), newLogger(os.Stderr, level))
			cmd.SetContext(ctx)
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("trustmesh %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML configuration file")

	root.AddCommand(newReportCmd(&configPath))
	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newCacheCmd())

	return root.ExecuteContext(ctx)
}
