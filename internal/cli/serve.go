package cli

import (
	"github.com/spf13/cobra"

	"github.com/trustmesh/trustmesh/internal/server"
	"github.com/trustmesh/trustmesh/pkg/config"
	"github.com/trustmesh/trustmesh/pkg/trust"
)

// newServeCmd creates the "serve" command: run the HTTP API.
func newServeCmd(configPath *string) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trust API server",
		Long: `Starts the HTTP server exposing the trust API:

  GET /api/trust?purl=...            synchronous trust report
  GET /api/trust/stream?purl=...     progress events as SSE
  GET /api/trust/versions?purl=...   known versions of a package
  GET /api/trust/dependents?purl=... packages that depend on a coordinate
  GET /api/trust/sbom?purl=...       stored SBOM for a coordinate
  GET /healthz                       liveness probe

The server shuts down gracefully on SIGINT/SIGTERM.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}

			collab, err := buildCollaborators(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer collab.close(ctx)

			opts := cfg.EngineOptions()
			opts.Logger = logger

			srv, err := server.New(server.Config{
				Addr:            cfg.Server.Addr,
				ShutdownTimeout: cfg.Server.ShutdownTimeout.Duration,
				BaseOptions:     opts,
				Engines: func(opts trust.Options) (server.Runner, error) {
					return collab.engine(opts)
				},
				Store:  collab.store,
				SBOMs:  collab.sboms,
				Logger: logger,
			})
			if err != nil {
				return err
			}
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
