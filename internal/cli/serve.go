package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/netcut/internal/server"
	"github.com/matzehuels/netcut/pkg/observability"
	"github.com/matzehuels/netcut/pkg/pipeline"
)

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string
	var noCache bool
	var flags rewriteFlags

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Serve exposes planning and rewriting over HTTP:

  GET  /healthz      build information
  POST /v1/plan      cut a graph and return its partitions
  POST /v1/rewrite   rewrite a graph and return it with its pruned weights

Rewrite flags and the [rewrite] config section set the server defaults.
Requests may carry their own options, which replace the defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if !cmd.Flags().Changed("addr") {
				addr = c.config.Server.Addr
			}
			rw := c.config.Rewrite
			flags.apply(cmd.Flags(), &rw)
			rw.Logger = c.Logger

			cc, err := c.openCache(ctx, noCache)
			if err != nil {
				return err
			}
			defer cc.Close()

			srv, err := server.New(rw, cc, c.keyer(), c.Logger)
			if err != nil {
				return err
			}
			observability.SetHTTPHooks(&logHooks{logger: c.Logger})

			printKeyValue("listen", addr)
			printKeyValue("cache", cacheLabel(c.config.Cache.Backend, noCache))
			engineOp := rw.OpType
			if engineOp == "" {
				engineOp = pipeline.DefaultOpType
			}
			printKeyValue("engine", engineOp)
			return srv.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address (default: [server] addr)")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "build every engine instead of using the cache")
	flags.register(cmd.Flags())

	return cmd
}

func cacheLabel(backend string, noCache bool) string {
	if noCache {
		return pipeline.CacheNone
	}
	return backend
}
