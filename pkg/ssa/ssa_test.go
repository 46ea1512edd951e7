package ssa

import (
	"context"
	"maps"
	"reflect"
	"slices"
	"testing"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

func node(op string, in []string, out ...string) dag.Node {
	return dag.Node{Type: op, Inputs: in, Outputs: out}
}

// wiring flattens a graph into "op(in...)->out..." strings for comparison.
func wiring(g *dag.Graph) [][]string {
	var out [][]string
	for _, n := range g.Nodes {
		row := append([]string{n.Type}, n.Inputs...)
		row = append(row, "->")
		out = append(out, append(row, n.Outputs...))
	}
	return out
}

func TestNamePool(t *testing.T) {
	p := NewNamePool([]string{"x", "x_1", "x_3"})
	got := []string{p.Fresh("x"), p.Fresh("x"), p.Fresh("y")}
	want := []string{"x_2", "x_4", "y_1"}
	if !slices.Equal(got, want) {
		t.Errorf("Fresh() = %v, want %v", got, want)
	}

	p.Reserve("y_2")
	if got := p.Fresh("y"); got != "y_3" {
		t.Errorf("Fresh(y) after Reserve = %s, want y_3", got)
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name    string
		graph   *dag.Graph
		want    [][]string
		mapping Mapping
	}{
		{
			name: "in-place output chain",
			graph: &dag.Graph{
				Inputs:  []string{"in"},
				Outputs: []string{"a"},
				Nodes: []dag.Node{
					node("Conv", []string{"in", "w"}, "a"),
					node("Relu", []string{"a"}, "a"),
					node("Relu", []string{"a"}, "a"),
				},
			},
			want: [][]string{
				{"Conv", "in", "w", "->", "a_1"},
				{"Relu", "a_1", "->", "a_2"},
				{"Relu", "a_2", "->", "a"},
			},
			mapping: Mapping{"w": "w"},
		},
		{
			name: "intermediate overwrite keeps first name",
			graph: &dag.Graph{
				Inputs:  []string{"in"},
				Outputs: []string{"out"},
				Nodes: []dag.Node{
					node("Conv", []string{"in", "w"}, "x"),
					node("Relu", []string{"x"}, "x"),
					node("FC", []string{"x", "w2", "b"}, "out"),
				},
			},
			want: [][]string{
				{"Conv", "in", "w", "->", "x"},
				{"Relu", "x", "->", "x_1"},
				{"FC", "x_1", "w2", "b", "->", "out"},
			},
			mapping: Mapping{"w": "w", "w2": "w2", "b": "b"},
		},
		{
			name: "fresh names skip existing tensors",
			graph: &dag.Graph{
				Inputs:  []string{"in"},
				Outputs: []string{"out"},
				Nodes: []dag.Node{
					node("Relu", []string{"in"}, "x_1"),
					node("Relu", []string{"in"}, "x"),
					node("Relu", []string{"x"}, "x"),
					node("Add", []string{"x", "x_1"}, "out"),
				},
			},
			want: [][]string{
				{"Relu", "in", "->", "x_1"},
				{"Relu", "in", "->", "x"},
				{"Relu", "x", "->", "x_2"},
				{"Add", "x_2", "x_1", "->", "out"},
			},
			mapping: Mapping{},
		},
		{
			name: "weight shadowed by output",
			graph: &dag.Graph{
				Inputs:  []string{"in"},
				Outputs: []string{"W"},
				Nodes: []dag.Node{
					node("Add", []string{"in", "W"}, "W"),
				},
			},
			want: [][]string{
				{"Add", "in", "W_1", "->", "W"},
			},
			mapping: Mapping{"W_1": "W"},
		},
		{
			name: "external input overwritten",
			graph: &dag.Graph{
				Inputs:  []string{"in"},
				Outputs: []string{"out"},
				Nodes: []dag.Node{
					node("Relu", []string{"in"}, "in"),
					node("Sigmoid", []string{"in"}, "out"),
				},
			},
			want: [][]string{
				{"Relu", "in", "->", "in_1"},
				{"Sigmoid", "in_1", "->", "out"},
			},
			mapping: Mapping{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.graph.Validate(nil); err != nil {
				t.Fatalf("fixture invalid: %v", err)
			}
			before := tt.graph.Clone()

			got, mapping := Rewrite(tt.graph)
			if w := wiring(got); !reflect.DeepEqual(w, tt.want) {
				t.Errorf("wiring = %v\nwant %v", w, tt.want)
			}
			if !maps.Equal(mapping, tt.mapping) {
				t.Errorf("mapping = %v, want %v", mapping, tt.mapping)
			}
			if err := got.ValidateSSA(); err != nil {
				t.Errorf("result is not SSA: %v", err)
			}
			if !slices.Equal(got.Inputs, before.Inputs) || !slices.Equal(got.Outputs, before.Outputs) {
				t.Errorf("external names changed: %v -> %v, %v -> %v", before.Inputs, got.Inputs, before.Outputs, got.Outputs)
			}
			if !reflect.DeepEqual(tt.graph, before) {
				t.Error("input graph was modified")
			}
		})
	}
}

func TestRewriteIdempotent(t *testing.T) {
	g := &dag.Graph{
		Inputs:  []string{"in"},
		Outputs: []string{"a"},
		Device:  &dag.Device{Type: "cuda"},
		Nodes: []dag.Node{
			node("Conv", []string{"in", "w"}, "a"),
			node("Relu", []string{"a"}, "a"),
		},
	}
	once, _ := Rewrite(g)
	twice, mapping := Rewrite(once)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second rewrite changed the graph:\n%v\n%v", wiring(once), wiring(twice))
	}
	if len(mapping.Renamed()) != 0 {
		t.Errorf("second rewrite renamed weights: %v", mapping.Renamed())
	}
}

func TestMappingWeights(t *testing.T) {
	s := store.NewMemoryStore(map[string]store.Tensor{
		"W":  store.NewFloat32([]int64{1}, []float32{1}),
		"in": store.NewFloat32([]int64{1}, []float32{1}),
	})
	m := Mapping{"W_1": "W", "bias": "bias", "in": "in"}

	got, err := m.Weights(context.Background(), s, []string{"in"})
	if err != nil {
		t.Fatal(err)
	}
	if !maps.Equal(got, Mapping{"W_1": "W"}) {
		t.Errorf("Weights() = %v", got)
	}
	if r := m.Reverse(); r["W"] != "W_1" {
		t.Errorf("Reverse()[W] = %q", r["W"])
	}
	if got := m.Renamed(); !slices.Equal(got, []string{"W_1"}) {
		t.Errorf("Renamed() = %v", got)
	}
}

func TestRemapHints(t *testing.T) {
	hints := shape.Table{
		"W":  shape.Of(shape.DTypeFloat32, 4),
		"in": shape.Of(shape.DTypeFloat32, 1, 4),
	}
	got := RemapHints(hints, map[string]string{"W": "W_1"})
	if _, ok := got["W"]; ok {
		t.Error("hint should have moved off the original name")
	}
	if !got["W_1"].Equal(hints["W"]) {
		t.Errorf("W_1 = %v", got["W_1"])
	}
	if !got["in"].Equal(hints["in"]) {
		t.Errorf("in = %v", got["in"])
	}
}
