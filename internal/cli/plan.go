package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/pipeline"
)

// planReport is the plan of one graph file.
type planReport struct {
	File       string            `json:"file"`
	Graph      string            `json:"graph"`
	Nodes      int               `json:"nodes"`
	Converted  int               `json:"converted"`
	Kept       int               `json:"kept"`
	Partitions []partitionReport `json:"partitions"`

	plan *cut.Plan
}

type partitionReport struct {
	Index   int      `json:"index"`
	Ops     []string `json:"ops"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

func newPlanReport(file string, plan *cut.Plan) planReport {
	sum := plan.Summary()
	r := planReport{
		File:       file,
		Graph:      plan.Graph.Name,
		Nodes:      sum.Nodes,
		Converted:  sum.Converted,
		Kept:       sum.Kept,
		Partitions: make([]partitionReport, len(plan.Partitions)),
		plan:       plan,
	}
	for i, p := range plan.Partitions {
		ops := make([]string, len(p.Nodes))
		for j, idx := range p.Nodes {
			ops[j] = plan.Graph.Nodes[idx].Type
		}
		r.Partitions[i] = partitionReport{Index: p.Index, Ops: ops, Inputs: p.Inputs, Outputs: p.Outputs}
	}
	return r
}

type planOpts struct {
	weights string
	hints   string
	json    bool
}

// planCommand creates the plan command.
func (c *CLI) planCommand() *cobra.Command {
	var opts planOpts
	var flags rewriteFlags

	cmd := &cobra.Command{
		Use:   "plan [graph.json...]",
		Short: "Show the partitions a rewrite would create",
		Long: `Plan cuts one or more graphs without converting anything and prints the
partitions found in each. Graphs are planned concurrently.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 1 && (opts.weights != "" || opts.hints != "") {
				return fmt.Errorf("--weights and --hints need exactly one graph")
			}
			rw := c.config.Rewrite
			flags.apply(cmd.Flags(), &rw)
			reports, err := c.runPlan(cmd.Context(), args, opts, rw)
			if err != nil {
				return err
			}
			if opts.json {
				return writePlanJSON(os.Stdout, reports)
			}
			for _, r := range reports {
				printPlan(r)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.weights, "weights", "", "weights file (default: <graph>.weights.json)")
	cmd.Flags().StringVar(&opts.hints, "hints", "", "shape hints file (default: <graph>.hints.json)")
	cmd.Flags().BoolVar(&opts.json, "json", false, "print the plans as JSON")
	flags.register(cmd.Flags())

	return cmd
}

// runPlan analyzes every file concurrently. Reports keep argument order.
func (c *CLI) runPlan(ctx context.Context, files []string, opts planOpts, rw pipeline.Options) ([]planReport, error) {
	t, err := c.newTransformer(rw, cache.NewNullCache())
	if err != nil {
		return nil, err
	}

	reports := make([]planReport, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, file := range files {
		g.Go(func() error {
			plan, err := c.planFile(ctx, t, inputPaths{graph: file, weights: opts.weights, hints: opts.hints})
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			reports[i] = newPlanReport(file, plan)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func (c *CLI) planFile(ctx context.Context, t *pipeline.Transformer, paths inputPaths) (*cut.Plan, error) {
	in, err := c.loadInputs(ctx, paths, false)
	if err != nil {
		return nil, err
	}
	defer in.close()

	a, err := t.Analyze(ctx, in.graph, in.weights, in.hints)
	if err != nil {
		return nil, err
	}
	c.Logger.Debug("planned", "file", paths.graph, "partitions", len(a.Plan.Partitions), "cut", a.CutTime)
	return a.Plan, nil
}

func writePlanJSON(w io.Writer, reports []planReport) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

// printPlan prints one graph's partitions as a table.
func printPlan(r planReport) {
	fmt.Println(StyleTitle.Render(r.Graph) + " " + StyleDim.Render(r.File))
	if len(r.Partitions) == 0 {
		printInfo("No supported partitions")
	} else {
		fmt.Println(partitionTable(r.Partitions, -1).Render())
	}
	printDots(
		fmt.Sprintf("%d nodes", r.Nodes),
		fmt.Sprintf("%d partitions", len(r.Partitions)),
		fmt.Sprintf("%d converted", r.Converted),
		fmt.Sprintf("%d kept", r.Kept),
	)
	fmt.Println()
}

// partitionTable lays out partitions one per row. The row at selected is
// highlighted; pass -1 for none.
func partitionTable(parts []partitionReport, selected int) *table.Table {
	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)

	rows := make([][]string, len(parts))
	for i, p := range parts {
		rows[i] = []string{
			strconv.Itoa(p.Index),
			strconv.Itoa(len(p.Ops)),
			truncate(strings.Join(p.Ops, " "), 40),
			truncate(strings.Join(p.Inputs, ", "), 30),
			truncate(strings.Join(p.Outputs, ", "), 30),
		}
	}

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("#", "Nodes", "Ops", "Inputs", "Outputs").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == -1:
				return headerStyle
			case row == selected:
				return lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
			case col == 0 || col == 1:
				return lipgloss.NewStyle().Foreground(colorGray)
			}
			return lipgloss.NewStyle()
		})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
