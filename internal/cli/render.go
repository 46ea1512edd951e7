package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/render/nodelink"
)

// Output formats of the render command.
const (
	formatSVG = "svg"
	formatPNG = "png"
	formatDOT = "dot"
)

// renderOpts holds the command-line flags for the render command.
type renderOpts struct {
	paths    inputPaths
	output   string // output file, default <graph>.<format>
	format   string // svg, png or dot
	noPlan   bool   // draw the graph without cutting it
	detailed bool   // node names and arguments in labels
	weights  bool   // draw weight reads
}

// renderCommand creates the render command.
func (c *CLI) renderCommand() *cobra.Command {
	var opts renderOpts
	var flags rewriteFlags

	cmd := &cobra.Command{
		Use:   "render [graph.json]",
		Short: "Draw a graph with its partitions",
		Long: `Render draws a graph as a node-link diagram. Unless --no-plan is given the
graph is cut first: every partition becomes a cluster and the nodes left to
the runtime are drawn grey. To draw a rewritten graph, render its file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.paths.graph = args[0]
			switch opts.format {
			case formatSVG, formatPNG, formatDOT:
			default:
				return fmt.Errorf("unknown format %q (must be one of: svg, png, dot)", opts.format)
			}
			if opts.output == "" {
				opts.output = siblingPath(opts.paths.graph, "."+opts.format)
			}

			rw := c.config.Rewrite
			flags.apply(cmd.Flags(), &rw)
			t, err := c.newTransformer(rw, cache.NewNullCache())
			if err != nil {
				return err
			}

			in, err := c.loadInputs(cmd.Context(), opts.paths, false)
			if err != nil {
				return err
			}
			defer in.close()

			g, plan := in.graph, (*cut.Plan)(nil)
			if !opts.noPlan {
				a, err := t.Analyze(cmd.Context(), in.graph, in.weights, in.hints)
				if err != nil {
					return err
				}
				g, plan = a.Graph, a.Plan
			}
			return c.runRender(cmd.Context(), g, plan, opts)
		},
	}

	cmd.Flags().StringVar(&opts.paths.weights, "weights", "", "weights file (default: <graph>.weights.json)")
	cmd.Flags().StringVar(&opts.paths.hints, "hints", "", "shape hints file (default: <graph>.hints.json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: <graph>.<format>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", formatSVG, "output format: svg, png, dot")
	cmd.Flags().BoolVar(&opts.noPlan, "no-plan", false, "draw the graph without partitions")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show node names and arguments")
	cmd.Flags().BoolVar(&opts.weights, "show-weights", false, "draw weight reads")
	flags.register(cmd.Flags())

	return cmd
}

func (c *CLI) runRender(ctx context.Context, g *dag.Graph, plan *cut.Plan, opts renderOpts) error {
	prog := newProgress(c.Logger)

	data, err := renderGraph(ctx, g, plan, opts)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(opts.output), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(opts.output, data, 0644); err != nil {
		return err
	}

	printFile(opts.output)
	prog.done("rendered " + opts.paths.graph)
	return nil
}

// renderGraph produces the diagram bytes in the requested format.
func renderGraph(ctx context.Context, g *dag.Graph, plan *cut.Plan, opts renderOpts) ([]byte, error) {
	dot := nodelink.ToDOT(g, plan, nodelink.Options{Detailed: opts.detailed, Weights: opts.weights})
	switch opts.format {
	case formatDOT:
		return []byte(dot), nil
	case formatPNG:
		return nodelink.RenderPNG(ctx, dot)
	default:
		return nodelink.RenderSVG(ctx, dot)
	}
}
