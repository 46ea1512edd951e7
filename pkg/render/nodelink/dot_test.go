package nodelink

import (
	"context"
	"strings"
	"testing"

	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
)

func mixed() (*dag.Graph, *cut.Plan) {
	g := &dag.Graph{
		Inputs:  []string{"data"},
		Outputs: []string{"y"},
		Nodes: []dag.Node{
			{Type: "Conv", Inputs: []string{"data", "w"}, Outputs: []string{"c"}, Args: []dag.Arg{dag.IntArg("kernel", 3)}},
			{Type: "Custom", Inputs: []string{"c"}, Outputs: []string{"u"}},
			{Type: "Relu", Inputs: []string{"u"}, Outputs: []string{"y"}},
		},
	}
	support := cut.SupportFunc(func(n dag.Node) (bool, error) { return n.Type != "Custom", nil })
	return g, cut.NewPlan(g, cut.Cut(g, support, nil))
}

func TestToDOT(t *testing.T) {
	g, plan := mixed()
	dot := ToDOT(g, plan, Options{})

	for _, want := range []string{
		"digraph G {",
		"subgraph cluster_0 {",
		"subgraph cluster_1 {",
		`"n1" [label="Custom", fillcolor=lightgrey`,
		`"in:data" -> "n0" [label="data"]`,
		`"n0" -> "n1" [label="c"]`,
		`"n2" -> "out:y" [label="y"]`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %q:\n%s", want, dot)
		}
	}
	if strings.Contains(dot, `"w:w"`) {
		t.Error("weights drawn without Options.Weights")
	}
}

func TestToDOTWithoutPlan(t *testing.T) {
	g, _ := mixed()
	dot := ToDOT(g, nil, Options{Detailed: true, Weights: true})
	if strings.Contains(dot, "cluster_") {
		t.Error("clusters drawn without a plan")
	}
	if strings.Contains(dot, "lightgrey") {
		t.Error("kept styling drawn without a plan")
	}
	if !strings.Contains(dot, `"w:w" -> "n0" [label="w"]`) {
		t.Errorf("weight edge missing:\n%s", dot)
	}
	if !strings.Contains(dot, `label="Conv\nkernel: 3"`) {
		t.Errorf("detailed label missing:\n%s", dot)
	}
}

// Edges follow the latest writer when a tensor is updated in place.
func TestToDOTInPlace(t *testing.T) {
	g := &dag.Graph{
		Inputs:  []string{"x"},
		Outputs: []string{"x2"},
		Nodes: []dag.Node{
			{Type: "Relu", Inputs: []string{"x"}, Outputs: []string{"t"}},
			{Type: "Relu", Inputs: []string{"t"}, Outputs: []string{"t"}},
			{Type: "Copy", Inputs: []string{"t"}, Outputs: []string{"x2"}},
		},
	}
	dot := ToDOT(g, nil, Options{})
	if !strings.Contains(dot, `"n1" -> "n2" [label="t"]`) {
		t.Errorf("in-place edge missing:\n%s", dot)
	}
	if strings.Contains(dot, `"n0" -> "n2"`) {
		t.Errorf("stale writer edge drawn:\n%s", dot)
	}
}

func TestNormalizeViewBox(t *testing.T) {
	in := []byte(`<svg width="10pt" height="20pt" viewBox="0.00 0.00 10.00 20.00"><g/></svg>`)
	out := string(normalizeViewBox(in))
	if !strings.Contains(out, `viewBox="0 0 10.00 20.00" width="10" height="20"`) {
		t.Errorf("normalizeViewBox() = %s", out)
	}
	if got := normalizeViewBox([]byte("<svg>")); string(got) != "<svg>" {
		t.Errorf("no viewBox changed: %s", got)
	}
}

func TestRenderSVG(t *testing.T) {
	g, plan := mixed()
	svg, err := RenderSVG(context.Background(), ToDOT(g, plan, Options{}))
	if err != nil {
		t.Fatalf("RenderSVG() error = %v", err)
	}
	if !strings.Contains(string(svg), "<svg") {
		t.Error("output is not SVG")
	}
}
