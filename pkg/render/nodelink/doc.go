// Package nodelink draws dataflow graphs and their cut plans as node-link
// diagrams.
//
// # Usage
//
// Convert a graph and, optionally, its plan to DOT, then render:
//
//	plan := cut.NewPlan(g, cut.Cut(g, support, logger))
//	dot := nodelink.ToDOT(g, plan, nodelink.Options{Detailed: true})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// Passing a nil plan draws the plain graph. Drawing a rewritten graph shows
// the engine nodes that replaced each partition.
//
// # Diagram
//
// Operators are rounded boxes labelled with their type. External inputs and
// outputs are ellipses. Edges carry the tensor name they transport. With a
// plan, each partition is a coloured cluster and kept nodes are grey.
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz] for in-process SVG and
// PNG rendering; no Graphviz installation is required.
package nodelink
