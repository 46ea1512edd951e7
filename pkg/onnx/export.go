package onnx

import (
	"fmt"
	"maps"
	"slices"

	"github.com/matzehuels/netcut/pkg/buildinfo"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/ssa"
)

// Rule translates one graph node into ONNX nodes. Extra initializers, such
// as the shape operand of Reshape, are returned alongside.
type Rule func(n dag.Node) ([]Node, []Tensor, error)

// Exporter translates cut subgraphs into ONNX models.
type Exporter struct {
	rules map[string]Rule
	opset int64
}

// NewExporter returns an exporter with the built-in rules targeting the
// given opset. A non-positive opset selects [DefaultOpset].
func NewExporter(opset int64) *Exporter {
	if opset <= 0 {
		opset = DefaultOpset
	}
	e := &Exporter{rules: make(map[string]Rule), opset: opset}
	for _, op := range []string{
		"Relu", "Sigmoid", "Tanh", "Add", "Sub", "Mul", "Div", "Sum",
		"Exp", "Log", "Abs", "Neg", "Sqrt", "MatMul",
	} {
		e.rules[op] = direct(op)
	}
	e.rules["Softmax"] = softmax
	e.rules["FC"] = fc
	e.rules["Conv"] = conv
	e.rules["MaxPool"] = pool("MaxPool")
	e.rules["AveragePool"] = pool("AveragePool")
	e.rules["Flatten"] = flatten
	e.rules["Concat"] = concat
	e.rules["Transpose"] = transpose
	e.rules["Reshape"] = reshape
	e.rules["Dropout"] = identity
	e.rules["Copy"] = identity
	return e
}

// Register adds or replaces the rule for opType.
func (e *Exporter) Register(opType string, r Rule) {
	e.rules[opType] = r
}

// Ops returns the op types with a rule, sorted.
func (e *Exporter) Ops() []string {
	ops := make([]string, 0, len(e.rules))
	for op := range e.rules {
		ops = append(ops, op)
	}
	slices.Sort(ops)
	return ops
}

// CanExport reports whether n has a rule.
func (e *Exporter) CanExport(n dag.Node) bool {
	_, ok := e.rules[n.Type]
	return ok
}

// Check runs the rule for n and reports why it cannot be exported.
// A node without a rule returns an UNSUPPORTED error.
func (e *Exporter) Check(n dag.Node) error {
	rule, ok := e.rules[n.Type]
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "no export rule for %s", n.Type)
	}
	_, _, err := rule(n)
	return err
}

// ExportSubgraph builds a model computing sub's outputs from its inputs.
//
// With bake set, every weight in sub.Weights becomes an initializer (and,
// as IR version 3 requires, a graph input). Without it weights are plain
// graph inputs. Initializers keep the element type of the stored tensor;
// a hint that disagrees with it is a TYPE_MISMATCH error.
func (e *Exporter) ExportSubgraph(sub cut.Subgraph, hints shape.Table, bake bool) (*Model, error) {
	g := &Graph{Name: fmt.Sprintf("partition_%d", sub.Index)}

	// Rule initializers must not shadow a tensor of the subgraph.
	taken := subgraphTensors(sub)
	pool := ssa.NewNamePool(slices.Collect(maps.Keys(taken)))

	for i, n := range sub.Nodes {
		rule, ok := e.rules[n.Type]
		if !ok {
			return nil, errors.New(errors.ErrCodeUnsupported, "node %d: no export rule for %s", i, n.Type)
		}
		nodes, inits, err := rule(n)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeConversion, err, "node %d (%s)", i, n.Type)
		}
		for j := range nodes {
			if nodes[j].Name == "" {
				nodes[j].Name = nodeName(n, i, j)
			}
		}
		for k, t := range inits {
			if taken[t.Name] {
				fresh := pool.Fresh(t.Name)
				renameInput(nodes, t.Name, fresh)
				inits[k].Name = fresh
			}
			taken[inits[k].Name] = true
			pool.Reserve(inits[k].Name)
		}
		g.Nodes = append(g.Nodes, nodes...)
		for _, t := range inits {
			g.Initializers = append(g.Initializers, t)
			g.Inputs = append(g.Inputs, ValueInfo{Name: t.Name, ElemType: t.DataType, Dims: t.Dims})
		}
	}

	for _, name := range sub.Inputs {
		w, isWeight := sub.Weights[name]
		h := hints.Lookup(name)
		if isWeight {
			if h != nil && !h.Equal(w.Shape()) {
				return nil, errors.New(errors.ErrCodeTypeMismatch,
					"weight %q is %s but its hint is %s", name, w.Shape(), h)
			}
			if bake {
				if err := w.Validate(); err != nil {
					return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "weight %q", name)
				}
				g.Initializers = append(g.Initializers, Tensor{
					Name:     name,
					DataType: w.DType.ONNX(),
					Dims:     slices.Clone(w.Dims),
					RawData:  w.Data,
				})
			}
			g.Inputs = append(g.Inputs, ValueInfo{Name: name, ElemType: w.DType.ONNX(), Dims: slices.Clone(w.Dims)})
			continue
		}
		if h == nil {
			return nil, errors.New(errors.ErrCodeMissingShape, "input %q has no shape", name)
		}
		info, err := valueInfo(name, *h)
		if err != nil {
			return nil, err
		}
		g.Inputs = append(g.Inputs, info)
	}

	for _, name := range sub.Outputs {
		h := hints.Lookup(name)
		if h == nil {
			return nil, errors.New(errors.ErrCodeMissingShape, "output %q has no shape", name)
		}
		info, err := valueInfo(name, *h)
		if err != nil {
			return nil, err
		}
		g.Outputs = append(g.Outputs, info)
	}

	return &Model{
		IRVersion:       IRVersion,
		OpsetVersion:    e.opset,
		ProducerName:    Producer,
		ProducerVersion: buildinfo.Version,
		Graph:           g,
	}, nil
}

// Bindings returns the runtime inputs of a model exported from sub: the
// boundary inputs minus the baked weights.
func Bindings(sub cut.Subgraph, bake bool) []string {
	if !bake {
		return slices.Clone(sub.Inputs)
	}
	var in []string
	for _, name := range sub.Inputs {
		if !sub.IsWeight(name) {
			in = append(in, name)
		}
	}
	return in
}

func valueInfo(name string, s shape.Shape) (ValueInfo, error) {
	code := s.DType.ONNX()
	if code == 0 {
		return ValueInfo{}, errors.New(errors.ErrCodeTypeMismatch, "%q has no ONNX element type (%s)", name, s.DType)
	}
	return ValueInfo{Name: name, ElemType: code, Dims: slices.Clone(s.Dims)}, nil
}

func nodeName(n dag.Node, i, j int) string {
	base := n.Name
	if base == "" {
		base = fmt.Sprintf("%s_%d", n.Type, i)
	}
	if j > 0 {
		return fmt.Sprintf("%s_%d", base, j)
	}
	return base
}

// subgraphTensors returns every tensor name sub reads or writes.
func subgraphTensors(sub cut.Subgraph) map[string]bool {
	taken := make(map[string]bool)
	for _, name := range sub.Inputs {
		taken[name] = true
	}
	for _, name := range sub.Outputs {
		taken[name] = true
	}
	for _, n := range sub.Nodes {
		for _, name := range n.Inputs {
			taken[name] = true
		}
		for _, name := range n.Outputs {
			taken[name] = true
		}
	}
	return taken
}

func renameInput(nodes []Node, from, to string) {
	for i := range nodes {
		for j, in := range nodes[i].Inputs {
			if in == from {
				nodes[i].Inputs[j] = to
			}
		}
	}
}

// ExportSubgraph exports with the default rules and opset.
func ExportSubgraph(sub cut.Subgraph, hints shape.Table, bake bool) (*Model, error) {
	return NewExporter(DefaultOpset).ExportSubgraph(sub, hints, bake)
}
