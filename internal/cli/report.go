package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/trustmesh/trustmesh/pkg/config"
	"github.com/trustmesh/trustmesh/pkg/trust"
)

// newReportCmd creates the "report" command: run one trust request and
// print the terminal report as JSON.
func newReportCmd(configPath *string) *cobra.Command {
	var (
		depth  int
		stream bool
	)

	cmd := &cobra.Command{
		Use:   "report <purl>",
		Short: "Produce a trust report for a package coordinate",
		Long: `Resolves the coordinate against the supply-chain graph store, walks its
dependency closure, queries the configured vulnerability feeds for every
node, and prints the aggregated trust report as JSON.

With --stream, progress events are logged as the walk proceeds.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}

			collab, err := buildCollaborators(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer collab.close(ctx)

			opts := cfg.EngineOptions()
			if cmd.Flags().Changed("depth") {
				opts.MaxDepth = depth
			}
			opts.Logger = logger

			engine, err := collab.engine(opts)
			if err != nil {
				return err
			}

			track := newProgress(logger)
			report, err := runReport(ctx, engine, args[0], stream, logger)
			if err != nil {
				return err
			}
			track.done(fmt.Sprintf("Report %s: %d nodes, %d advisories, highest %s",
				report.Status, len(report.Closure.Nodes), report.TotalAdvisories, report.HighestSeverity))

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().IntVar(&depth, "depth", trust.DefaultMaxDepth, "maximum traversal depth")
	cmd.Flags().BoolVar(&stream, "stream", false, "log progress events during the walk")
	return cmd
}

// runReport drives the engine in streaming or synchronous mode.
func runReport(ctx context.Context, engine *trust.Engine, coordinate string, stream bool, logger *log.Logger) (*trust.Report, error) {
	if !stream {
		return engine.Run(ctx, coordinate)
	}

	var report *trust.Report
	for ev := range engine.Stream(ctx, coordinate) {
		switch ev.Kind {
		case trust.EventNodeDiscovered:
			logger.Info("discovered", "node", ev.Node.ID, "coordinate", ev.Node.Coordinate)
		case trust.EventNodeResolved:
			logger.Info("resolved", "node", ev.Result.NodeID, "status", ev.Result.Status, "advisories", len(ev.Result.Advisories))
		case trust.EventWalkComplete:
			report = ev.Report
		case trust.EventFailed:
			return nil, fmt.Errorf("request failed: %s", ev.Error)
		}
	}
	if report == nil {
		return nil, ctx.Err()
	}
	return report, nil
}
