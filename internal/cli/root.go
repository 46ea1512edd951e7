package cli

import (
	"github.com/spf13/cobra"

	"github.com/matzehuels/netcut/pkg/buildinfo"
	"github.com/matzehuels/netcut/pkg/observability"
)

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "netcut offloads supported subgraphs of a model to an inference engine",
		Long:         `netcut cuts a dataflow graph into maximal partitions of engine-supported operators, replaces each partition with a single engine node and prunes the weights the engines absorbed.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := c.loadConfig(); err != nil {
				return err
			}
			hooks := &logHooks{logger: c.Logger}
			observability.SetRewriteHooks(hooks)
			observability.SetCacheHooks(hooks)
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.ConfigPath, "config", "", "config file (default: ./netcut.toml if present)")

	root.AddCommand(c.rewriteCommand())
	root.AddCommand(c.planCommand())
	root.AddCommand(c.renderCommand())
	root.AddCommand(c.inspectCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}
