package cut

import (
	"context"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// Subgraph is the unit handed to a [Converter].
type Subgraph struct {
	Index   int                     // Partition index
	Nodes   []dag.Node              // Member nodes, copies in graph order
	Inputs  []string                // Boundary inputs
	Outputs []string                // Boundary outputs
	Weights map[string]store.Tensor // Values of the boundary inputs that are weights
	Device  *dag.Device             // Placement of the enclosing graph
}

// IsWeight reports whether the boundary input name is a weight.
func (s *Subgraph) IsWeight(name string) bool {
	_, ok := s.Weights[name]
	return ok
}

// Converter turns one partition into a single replacement node.
//
// The returned node must list exactly the boundary outputs and only
// boundary inputs; weights it bakes in may be omitted from its inputs.
// weights resolves tensors by the names used in sub.
type Converter interface {
	Convert(ctx context.Context, sub Subgraph, hints shape.Table, weights store.Store) (dag.Node, error)
}

// ConverterFunc adapts a function to [Converter].
type ConverterFunc func(ctx context.Context, sub Subgraph, hints shape.Table, weights store.Store) (dag.Node, error)

// Convert calls f.
func (f ConverterFunc) Convert(ctx context.Context, sub Subgraph, hints shape.Table, weights store.Store) (dag.Node, error) {
	return f(ctx, sub, hints, weights)
}

// Substitution replaces every partition of a plan with a converted node.
type Substitution struct {
	Converter Converter
	Hints     shape.Table // Shapes keyed by the names used in the plan graph
	Weights   store.Store // Weight values keyed by the names used in the plan graph
	Logger    *log.Logger

	// OnConverted, if set, is called after each successful conversion.
	OnConverted func(ctx context.Context, p *Partition, n dag.Node, elapsed time.Duration)
}

// Substitute runs a [Substitution] with the given collaborators.
func Substitute(ctx context.Context, plan *Plan, conv Converter, hints shape.Table, weights store.Store, logger *log.Logger) (*dag.Graph, error) {
	s := &Substitution{Converter: conv, Hints: hints, Weights: weights, Logger: logger}
	return s.Apply(ctx, plan)
}

// Apply builds a new graph from plan in which every partition is replaced
// by the node its converter returns. Kept nodes are copied unchanged. The
// plan's graph is not modified.
//
// Before any conversion, every boundary tensor of every partition must have
// a shape hint and every weight among the boundary inputs must resolve.
// The first failure aborts the whole substitution.
func (s *Substitution) Apply(ctx context.Context, plan *Plan) (*dag.Graph, error) {
	logger := s.Logger
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	g := plan.Graph

	for _, p := range plan.Partitions {
		for _, name := range slices.Concat(p.Inputs, p.Outputs) {
			if _, ok := s.Hints[name]; !ok {
				return nil, errors.New(errors.ErrCodeMissingShape,
					"partition %d: no shape for boundary tensor %q", p.Index, name)
			}
		}
	}

	producers := g.Producers()
	out := &dag.Graph{
		Name:    g.Name,
		Inputs:  append([]string(nil), g.Inputs...),
		Outputs: append([]string(nil), g.Outputs...),
		Device:  g.Device.Clone(),
		Nodes:   make([]dag.Node, 0, len(plan.Segments)),
	}

	for _, seg := range plan.Segments {
		if !seg.IsPartition() {
			out.Nodes = append(out.Nodes, g.Nodes[seg.Node].Clone())
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := seg.Partition

		sub, err := s.subgraph(ctx, g, p, producers)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		n, err := s.Converter.Convert(ctx, sub, s.Hints, s.Weights)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConversion, err, "partition %d (%d nodes)", p.Index, len(p.Nodes))
		}
		if err := checkReplacement(sub, n); err != nil {
			return nil, err
		}
		if n.Device == nil {
			n.Device = g.Device.Clone()
		}
		elapsed := time.Since(start)

		logger.Debug("converted partition", "partition", p.Index, "nodes", len(p.Nodes), "op", n.Type,
			"inputs", len(n.Inputs), "outputs", len(n.Outputs), "elapsed", elapsed)
		if s.OnConverted != nil {
			s.OnConverted(ctx, p, n, elapsed)
		}
		out.Nodes = append(out.Nodes, n)
	}
	return out, nil
}

func (s *Substitution) subgraph(ctx context.Context, g *dag.Graph, p *Partition, producers map[string]int) (Subgraph, error) {
	sub := Subgraph{
		Index:   p.Index,
		Nodes:   make([]dag.Node, len(p.Nodes)),
		Inputs:  append([]string(nil), p.Inputs...),
		Outputs: append([]string(nil), p.Outputs...),
		Weights: make(map[string]store.Tensor),
		Device:  g.Device.Clone(),
	}
	for i, idx := range p.Nodes {
		sub.Nodes[i] = g.Nodes[idx].Clone()
	}

	for _, name := range p.Inputs {
		if _, produced := producers[name]; produced || g.IsInput(name) {
			continue
		}
		if s.Weights == nil {
			return Subgraph{}, errors.New(errors.ErrCodeDanglingReference,
				"partition %d: %q is not produced and no weight store is set", p.Index, name)
		}
		t, ok, err := s.Weights.Get(ctx, name)
		if err != nil {
			return Subgraph{}, errors.Wrap(errors.ErrCodeInternal, err, "partition %d: read weight %q", p.Index, name)
		}
		if !ok {
			return Subgraph{}, errors.New(errors.ErrCodeDanglingReference,
				"partition %d: %q is not produced and not held as a weight", p.Index, name)
		}
		sub.Weights[name] = t
	}
	return sub, nil
}

// checkReplacement validates the node a converter returned for sub.
func checkReplacement(sub Subgraph, n dag.Node) error {
	if n.Type == "" {
		return errors.New(errors.ErrCodeConversion, "partition %d: converter returned a node without type", sub.Index)
	}

	// Output order matters: converters index per-output metadata by it.
	if !slices.Equal(n.Outputs, sub.Outputs) {
		return errors.New(errors.ErrCodeConversion, "partition %d: converted node outputs %v, want boundary outputs %v", sub.Index, n.Outputs, sub.Outputs)
	}

	ins := make(map[string]bool, len(n.Inputs))
	for _, in := range n.Inputs {
		if ins[in] {
			return errors.New(errors.ErrCodeConversion, "partition %d: input %q listed twice", sub.Index, in)
		}
		if !slices.Contains(sub.Inputs, in) {
			return errors.New(errors.ErrCodeConversion, "partition %d: input %q is not a boundary input", sub.Index, in)
		}
		ins[in] = true
	}
	for _, in := range sub.Inputs {
		if !ins[in] && !sub.IsWeight(in) {
			return errors.New(errors.ErrCodeConversion, "partition %d: boundary input %q missing from converted node", sub.Index, in)
		}
	}
	return nil
}
