package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	nio "github.com/matzehuels/netcut/pkg/io"
	"github.com/matzehuels/netcut/pkg/observability"
	"github.com/matzehuels/netcut/pkg/pipeline"
)

// rewriteFlags holds the command-line overrides of the [rewrite] config
// section. Only flags the user set replace config values.
type rewriteFlags struct {
	opType        string
	maxBatchSize  int
	workspaceSize int64
	verbosity     int
	supported     []string
	blocked       []string
	noBake        bool
	opset         int64
	debugDir      string
	debugBuilder  bool
}

func (f *rewriteFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.opType, "op-type", pipeline.DefaultOpType, "operator type of emitted engine nodes")
	fs.IntVar(&f.maxBatchSize, "max-batch-size", pipeline.DefaultMaxBatchSize, "engine maximum batch size")
	fs.Int64Var(&f.workspaceSize, "workspace", pipeline.DefaultMaxWorkspaceSize, "builder workspace size in bytes")
	fs.IntVar(&f.verbosity, "verbosity", pipeline.DefaultVerbosity, "engine runtime log verbosity")
	fs.StringSliceVar(&f.supported, "supported", nil, "only offload these operator types")
	fs.StringSliceVar(&f.blocked, "blocked", nil, "never offload these operator types")
	fs.BoolVar(&f.noBake, "no-bake", false, "keep weights as engine inputs instead of baking them in")
	fs.Int64Var(&f.opset, "opset", pipeline.DefaultOpset, "ONNX opset of exported partitions")
	fs.StringVar(&f.debugDir, "debug-dir", "", "write exported partition models to this directory")
	fs.BoolVar(&f.debugBuilder, "debug-builder", false, "enable engine builder debugging")
}

// apply overlays the flags the user set onto opts.
func (f *rewriteFlags) apply(fs *pflag.FlagSet, opts *pipeline.Options) {
	if fs.Changed("op-type") {
		opts.OpType = f.opType
	}
	if fs.Changed("max-batch-size") {
		opts.MaxBatchSize = f.maxBatchSize
	}
	if fs.Changed("workspace") {
		opts.MaxWorkspaceSize = f.workspaceSize
	}
	if fs.Changed("verbosity") {
		opts.Verbosity = f.verbosity
	}
	if fs.Changed("supported") {
		opts.SupportedOps = f.supported
	}
	if fs.Changed("blocked") {
		opts.BlockedOps = f.blocked
	}
	if fs.Changed("no-bake") {
		opts.NoBake = f.noBake
	}
	if fs.Changed("opset") {
		opts.OpsetVersion = f.opset
	}
	if fs.Changed("debug-dir") {
		opts.DebugDir = f.debugDir
	}
	if fs.Changed("debug-builder") {
		opts.DebugBuilder = f.debugBuilder
	}
}

type rewriteOpts struct {
	paths      inputPaths
	output     string
	weightsOut string
	dryRun     bool
	noCache    bool
}

// rewriteCommand creates the rewrite command.
func (c *CLI) rewriteCommand() *cobra.Command {
	var opts rewriteOpts
	var flags rewriteFlags

	cmd := &cobra.Command{
		Use:   "rewrite [graph.json]",
		Short: "Replace supported partitions with engine nodes",
		Long: `Rewrite cuts the graph into partitions of supported operators, converts each
partition into a single engine node and prunes the weights baked into engines.

Weights and shape hints are read from --weights and --hints, or from
graph.weights.json and graph.hints.json next to the graph. The input files
are never modified: the result goes to graph.rewritten.json and its weights
to graph.rewritten.weights.json unless -o and --weights-out say otherwise.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.paths.graph = args[0]
			rw := c.config.Rewrite
			flags.apply(cmd.Flags(), &rw)
			return c.runRewrite(cmd.Context(), opts, rw)
		},
	}

	cmd.Flags().StringVar(&opts.paths.weights, "weights", "", "weights file (default: <graph>.weights.json)")
	cmd.Flags().StringVar(&opts.paths.hints, "hints", "", "shape hints file (default: <graph>.hints.json)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output graph file (default: <graph>.rewritten.json)")
	cmd.Flags().StringVar(&opts.weightsOut, "weights-out", "", "output weights file (default: next to the output graph)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "report what would change without writing anything")
	cmd.Flags().BoolVar(&opts.noCache, "no-cache", false, "build every engine instead of using the cache")
	flags.register(cmd.Flags())

	return cmd
}

func (c *CLI) runRewrite(ctx context.Context, opts rewriteOpts, rw pipeline.Options) error {
	prog := newProgress(c.Logger)

	in, err := c.loadInputs(ctx, opts.paths, true)
	if err != nil {
		return err
	}
	defer in.close()
	if in.file == nil && c.config.Store.Backend != pipeline.StoreMongo {
		printWarning("No weights found for %s, every free input is treated as missing", opts.paths.graph)
	}

	cc, err := c.openCache(ctx, opts.noCache)
	if err != nil {
		return err
	}
	defer cc.Close()

	t, err := c.newTransformer(rw, cc)
	if err != nil {
		return err
	}

	spinner := newSpinnerWithContext(ctx, fmt.Sprintf("Rewriting %s...", in.graph.Name))
	observability.SetRewriteHooks(&logHooks{
		logger: c.Logger,
		onConvert: func(i int) {
			spinner.SetMessage(fmt.Sprintf("Converted partition %d...", i+1))
		},
	})
	spinner.Start()
	res, err := t.Rewrite(ctx, in.graph, in.weights, in.hints)
	spinner.Stop()
	if err != nil {
		return err
	}

	printStats(res.Stats)
	if opts.dryRun {
		for _, name := range res.Prune.Delete {
			printDetail("would prune %s", name)
		}
		printInfo("Dry run: nothing written")
		return nil
	}

	if err := res.Commit(ctx, in.graph, in.weights); err != nil {
		return err
	}

	output := opts.output
	if output == "" {
		output = siblingPath(opts.paths.graph, ".rewritten.json")
	}
	if err := nio.ExportGraph(in.graph, output); err != nil {
		return err
	}
	printFile(output)

	if in.file != nil {
		weightsOut := opts.weightsOut
		if weightsOut == "" {
			weightsOut = siblingPath(output, weightsSuffix)
		}
		if err := in.file.SaveAs(weightsOut); err != nil {
			return fmt.Errorf("save weights: %w", err)
		}
		printFile(weightsOut)
	}

	prog.done("rewrote " + opts.paths.graph)
	printNextStep("Draw the result", appName+" render "+output)
	return nil
}
