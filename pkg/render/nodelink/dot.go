package nodelink

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
)

// Options configures node-link diagram rendering.
type Options struct {
	// Detailed adds node names and arguments to labels.
	// When false, only the operator type is shown.
	Detailed bool

	// Weights draws weight reads as note-shaped source nodes.
	Weights bool
}

// Palette for partition clusters, cycled by partition index.
var clusterColors = []string{"#dbeafe", "#dcfce7", "#fef3c7", "#fce7f3", "#e0e7ff", "#ccfbf1"}

// ToDOT converts g to Graphviz DOT format. Every edge is labelled with the
// tensor it carries.
//
// If plan is non-nil it must have been cut from g: each partition becomes
// a cluster and the nodes the plan keeps are drawn grey. External inputs
// and outputs appear as ellipses.
func ToDOT(g *dag.Graph, plan *cut.Plan, opts Options) string {
	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=14, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  edge [fontsize=10, fontcolor=\"#555555\"];\n")
	buf.WriteString("  ranksep=0.4;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, in := range g.Inputs {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, style=filled, fillcolor=\"#f1f5f9\"];\n", inputID(in), in)
	}
	for _, out := range g.Outputs {
		fmt.Fprintf(&buf, "  %q [label=%q, shape=ellipse, style=filled, fillcolor=\"#f1f5f9\"];\n", outputID(out), out)
	}
	buf.WriteString("\n")

	inPartition := make(map[int]bool)
	if plan != nil {
		for _, p := range plan.Partitions {
			fmt.Fprintf(&buf, "  subgraph cluster_%d {\n", p.Index)
			fmt.Fprintf(&buf, "    label=%q;\n", fmt.Sprintf("partition %d", p.Index))
			fmt.Fprintf(&buf, "    style=\"rounded,filled\";\n    fillcolor=%q;\n    color=\"#94a3b8\";\n",
				clusterColors[p.Index%len(clusterColors)])
			for _, i := range p.Nodes {
				inPartition[i] = true
				fmt.Fprintf(&buf, "    %q [%s];\n", nodeID(i), strings.Join(fmtAttrs(g.Nodes[i], opts, false), ", "))
			}
			buf.WriteString("  }\n")
		}
	}
	for i, n := range g.Nodes {
		if inPartition[i] {
			continue
		}
		fmt.Fprintf(&buf, "  %q [%s];\n", nodeID(i), strings.Join(fmtAttrs(n, opts, plan != nil), ", "))
	}

	buf.WriteString("\n")
	writeEdges(&buf, g, opts)
	buf.WriteString("}\n")
	return buf.String()
}

// writeEdges draws one edge per tensor read, from the latest writer before
// the reader. Graphs need not be in single assignment form.
func writeEdges(buf *bytes.Buffer, g *dag.Graph, opts Options) {
	current := make(map[string]string)
	for _, in := range g.Inputs {
		current[in] = inputID(in)
	}
	weights := make(map[string]bool)
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			src, ok := current[in]
			if !ok {
				if !opts.Weights {
					continue
				}
				src = weightID(in)
				if !weights[in] {
					weights[in] = true
					fmt.Fprintf(buf, "  %q [label=%q, shape=note, style=filled, fillcolor=\"#fafaf9\", fontsize=10];\n", src, in)
				}
			}
			fmt.Fprintf(buf, "  %q -> %q [label=%q];\n", src, nodeID(i), in)
		}
		for _, out := range n.Outputs {
			current[out] = nodeID(i)
		}
	}
	for _, out := range g.Outputs {
		if src, ok := current[out]; ok {
			fmt.Fprintf(buf, "  %q -> %q [label=%q];\n", src, outputID(out), out)
		}
	}
}

func nodeID(i int) string         { return "n" + strconv.Itoa(i) }
func inputID(name string) string  { return "in:" + name }
func outputID(name string) string { return "out:" + name }
func weightID(name string) string { return "w:" + name }

func fmtLabel(n dag.Node, detailed bool) string {
	if !detailed {
		return n.Type
	}
	lines := []string{n.Type}
	if n.Name != "" {
		lines = append(lines, n.Name)
	}
	args := slices.Clone(n.Args)
	slices.SortFunc(args, func(a, b dag.Arg) int { return strings.Compare(a.Name, b.Name) })
	for _, a := range args {
		lines = append(lines, fmt.Sprintf("%s: %s", a.Name, fmtArg(a)))
	}
	return strings.Join(lines, "\n")
}

func fmtArg(a dag.Arg) string {
	switch {
	case a.I != nil:
		return strconv.FormatInt(*a.I, 10)
	case a.F != nil:
		return strconv.FormatFloat(*a.F, 'g', -1, 64)
	case a.S != nil:
		return *a.S
	case a.B != nil:
		return fmt.Sprintf("<%d bytes>", len(a.B))
	case a.Ints != nil:
		return fmt.Sprint(a.Ints)
	case a.Floats != nil:
		return fmt.Sprint(a.Floats)
	case a.Strings != nil:
		return fmt.Sprint(a.Strings)
	}
	return ""
}

func fmtAttrs(n dag.Node, opts Options, kept bool) []string {
	attrs := []string{fmt.Sprintf("label=%q", fmtLabel(n, opts.Detailed))}
	if kept {
		attrs = append(attrs, "fillcolor=lightgrey", "fontcolor=\"#333333\"")
	}
	return attrs
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	svg, err := render(ctx, dot, graphviz.SVG)
	if err != nil {
		return nil, err
	}
	return normalizeViewBox(svg), nil
}

// RenderPNG renders a DOT graph to PNG using Graphviz.
func RenderPNG(ctx context.Context, dot string) ([]byte, error) {
	return render(ctx, dot, graphviz.PNG)
}

func render(ctx context.Context, dot string, format graphviz.Format) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, format, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return buf.Bytes(), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox rewrites the root tag so the SVG scales to its container.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
