// Package render groups the diagram renderers.
//
// The [nodelink] subpackage draws graphs and cut plans with Graphviz:
//
//	dot := nodelink.ToDOT(g, plan, nodelink.Options{})
//	svg, err := nodelink.RenderSVG(ctx, dot)
//
// [nodelink]: github.com/matzehuels/netcut/pkg/render/nodelink
package render
