package cut

import (
	"context"
	stderrors "errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

func fullHints(g *dag.Graph) shape.Table {
	hints := make(shape.Table)
	for _, name := range g.Tensors() {
		hints[name] = shape.Of(shape.DTypeFloat32, 1, 4)
	}
	return hints
}

// baking converts a partition into an "Engine" node that bakes in its
// weights.
func baking(calls *[]Subgraph) Converter {
	return ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
		if calls != nil {
			*calls = append(*calls, sub)
		}
		var inputs []string
		for _, in := range sub.Inputs {
			if !sub.IsWeight(in) {
				inputs = append(inputs, in)
			}
		}
		return dag.Node{Type: "Engine", Inputs: inputs, Outputs: slices.Clone(sub.Outputs)}, nil
	})
}

func weightStore() store.Store {
	return store.NewMemoryStore(map[string]store.Tensor{
		"w": store.NewFloat32([]int64{1, 4}, []float32{1, 2, 3, 4}),
	})
}

func TestSubstitute(t *testing.T) {
	g := diamond()
	g.Device = &dag.Device{Type: "cuda", ID: 0}
	before := g.Clone()
	plan := NewPlan(g, Cut(g, byType("A", "B", "C"), nil))

	var calls []Subgraph
	var converted []int
	s := &Substitution{
		Converter: baking(&calls),
		Hints:     fullHints(g),
		Weights:   weightStore(),
		OnConverted: func(_ context.Context, p *Partition, _ dag.Node, _ time.Duration) {
			converted = append(converted, p.Index)
		},
	}
	out, err := s.Apply(context.Background(), plan)
	require.NoError(t, err)

	require.Len(t, calls, 2)
	require.Equal(t, []int{0, 1}, converted)
	require.Contains(t, calls[0].Weights, "w")
	require.Len(t, calls[0].Nodes, 2)
	require.Empty(t, calls[1].Weights)

	require.Len(t, out.Nodes, 3)
	require.Equal(t, "Engine", out.Nodes[0].Type)
	require.Equal(t, []string{"in"}, out.Nodes[0].Inputs)
	require.Equal(t, []string{"x", "y"}, out.Nodes[0].Outputs)
	require.Equal(t, before.Nodes[2], out.Nodes[1])
	require.Equal(t, []string{"y", "u"}, out.Nodes[2].Inputs)
	require.Equal(t, &dag.Device{Type: "cuda", ID: 0}, out.Nodes[0].Device)

	require.Equal(t, g.Inputs, out.Inputs)
	require.Equal(t, g.Outputs, out.Outputs)
	require.NoError(t, out.ValidateSSA())
	require.NoError(t, dag.CheckAcyclic(out.Edges()))
	require.Equal(t, before, g, "plan graph must not be modified")
}

func TestSubstituteKeepsConverterDevice(t *testing.T) {
	g := diamond()
	g.Device = &dag.Device{Type: "cuda"}
	plan := NewPlan(g, Cut(g, All, nil))

	conv := ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
		return dag.Node{Type: "Engine", Inputs: []string{"in"}, Outputs: sub.Outputs, Device: &dag.Device{Type: "dla", ID: 1}}, nil
	})
	out, err := Substitute(context.Background(), plan, conv, fullHints(g), weightStore(), nil)
	require.NoError(t, err)
	require.Equal(t, "dla", out.Nodes[0].Device.Type)
}

func TestSubstituteErrors(t *testing.T) {
	boom := stderrors.New("builder exploded")

	tests := []struct {
		name    string
		hints   func(shape.Table)
		weights store.Store
		conv    Converter
		code    errors.Code
	}{
		{
			name:  "missing boundary shape",
			hints: func(h shape.Table) { delete(h, "in") },
			code:  errors.ErrCodeMissingShape,
		},
		{
			name:    "dangling weight",
			weights: store.NewMemoryStore(nil),
			code:    errors.ErrCodeDanglingReference,
		},
		{
			name: "converter failure",
			conv: ConverterFunc(func(context.Context, Subgraph, shape.Table, store.Store) (dag.Node, error) {
				return dag.Node{}, boom
			}),
			code: errors.ErrCodeConversion,
		},
		{
			name: "missing output",
			conv: ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
				return dag.Node{Type: "Engine", Inputs: []string{"in"}, Outputs: nil}, nil
			}),
			code: errors.ErrCodeConversion,
		},
		{
			name: "extra output",
			conv: ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
				return dag.Node{Type: "Engine", Inputs: []string{"in"}, Outputs: append(slices.Clone(sub.Outputs), "leak")}, nil
			}),
			code: errors.ErrCodeConversion,
		},
		{
			name: "duplicate input",
			conv: ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
				return dag.Node{Type: "Engine", Inputs: []string{"in", "in"}, Outputs: sub.Outputs}, nil
			}),
			code: errors.ErrCodeConversion,
		},
		{
			name: "missing activation input",
			conv: ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
				return dag.Node{Type: "Engine", Inputs: []string{"w"}, Outputs: sub.Outputs}, nil
			}),
			code: errors.ErrCodeConversion,
		},
		{
			name: "untyped node",
			conv: ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
				return dag.Node{Inputs: []string{"in"}, Outputs: sub.Outputs}, nil
			}),
			code: errors.ErrCodeConversion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := diamond()
			plan := NewPlan(g, Cut(g, All, nil))
			hints := fullHints(g)
			if tt.hints != nil {
				tt.hints(hints)
			}
			weights := tt.weights
			if weights == nil {
				weights = weightStore()
			}
			conv := tt.conv
			if conv == nil {
				conv = baking(nil)
			}

			out, err := Substitute(context.Background(), plan, conv, hints, weights, nil)
			require.Nil(t, out)
			require.Error(t, err)
			require.Equal(t, tt.code, errors.GetCode(err), "err = %v", err)
		})
	}
}

// Replacement outputs must follow the boundary order, not just the set.
func TestSubstituteRejectsReorderedOutputs(t *testing.T) {
	g := diamond()
	plan := NewPlan(g, Cut(g, byType("A", "B", "C"), nil))
	require.Equal(t, []string{"x", "y"}, plan.Partitions[0].Outputs)

	conv := ConverterFunc(func(_ context.Context, sub Subgraph, _ shape.Table, _ store.Store) (dag.Node, error) {
		outs := slices.Clone(sub.Outputs)
		slices.Reverse(outs)
		return dag.Node{Type: "Engine", Inputs: []string{"in"}, Outputs: outs}, nil
	})
	out, err := Substitute(context.Background(), plan, conv, fullHints(g), weightStore(), nil)
	require.Nil(t, out)
	require.Equal(t, errors.ErrCodeConversion, errors.GetCode(err), "err = %v", err)
}

func TestSubstituteWrapsConverterError(t *testing.T) {
	boom := stderrors.New("builder exploded")
	g := diamond()
	plan := NewPlan(g, Cut(g, All, nil))
	conv := ConverterFunc(func(context.Context, Subgraph, shape.Table, store.Store) (dag.Node, error) {
		return dag.Node{}, boom
	})

	_, err := Substitute(context.Background(), plan, conv, fullHints(g), weightStore(), nil)
	require.ErrorIs(t, err, boom)
	require.Contains(t, err.Error(), "partition 0")
}

func TestSubstituteMissingShapeBeforeConvert(t *testing.T) {
	g := diamond()
	plan := NewPlan(g, Cut(g, byType("A", "B", "C"), nil))
	hints := fullHints(g)
	delete(hints, "z")

	var calls []Subgraph
	_, err := Substitute(context.Background(), plan, baking(&calls), hints, weightStore(), nil)
	require.True(t, errors.Is(err, errors.ErrCodeMissingShape))
	require.Contains(t, err.Error(), `"z"`)
	require.Empty(t, calls, "no partition may be converted when any boundary lacks a shape")
}

func TestSubstituteCancelled(t *testing.T) {
	g := diamond()
	plan := NewPlan(g, Cut(g, All, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Substitute(ctx, plan, baking(nil), fullHints(g), weightStore(), nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSubstituteNoPartitions(t *testing.T) {
	g := diamond()
	plan := NewPlan(g, Cut(g, None, nil))
	out, err := Substitute(context.Background(), plan, baking(nil), nil, nil, nil)
	require.NoError(t, err)
	require.Equal(t, g.Nodes, out.Nodes)
}
