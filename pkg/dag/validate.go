package dag

import (
	"fmt"
)

// Validate checks that g is a well-formed dataflow graph in topological
// order. isWeight reports whether a tensor is held by the runtime weight
// store; a nil isWeight accepts every free read as a weight.
//
// Validate checks that:
//   - every node has an operator type and only non-empty tensor names
//   - every node input is produced by an earlier node, declared as an
//     external input, or is a weight
//   - no external input that is also an external output is overwritten
//   - every external output is produced or is an external input
//
// Validate does not require single assignment; see [Graph.ValidateSSA].
// Returned errors wrap one of the package sentinels with the offending node
// index and tensor name.
func (g *Graph) Validate(isWeight func(string) bool) error {
	defined := make(map[string]bool, len(g.Inputs))
	for _, s := range g.Inputs {
		if s == "" {
			return fmt.Errorf("external inputs: %w", ErrEmptyTensorName)
		}
		defined[s] = true
	}
	outputs := make(map[string]bool, len(g.Outputs))
	for _, s := range g.Outputs {
		if s == "" {
			return fmt.Errorf("external outputs: %w", ErrEmptyTensorName)
		}
		outputs[s] = true
	}

	for i, n := range g.Nodes {
		if n.Type == "" {
			return fmt.Errorf("node %d: %w", i, ErrEmptyOpType)
		}
		for _, in := range n.Inputs {
			if in == "" {
				return fmt.Errorf("node %d (%s) input: %w", i, n.Type, ErrEmptyTensorName)
			}
			if defined[in] {
				continue
			}
			if isWeight != nil && !isWeight(in) {
				return fmt.Errorf("node %d (%s) reads %q: %w", i, n.Type, in, ErrDanglingInput)
			}
			defined[in] = true
		}
		for _, out := range n.Outputs {
			if out == "" {
				return fmt.Errorf("node %d (%s) output: %w", i, n.Type, ErrEmptyTensorName)
			}
			if outputs[out] && g.IsInput(out) {
				return fmt.Errorf("node %d (%s) writes %q: %w", i, n.Type, out, ErrInputOverwritten)
			}
			defined[out] = true
		}
	}

	for _, s := range g.Outputs {
		if !defined[s] {
			return fmt.Errorf("external output %q: %w", s, ErrUnknownOutput)
		}
	}
	return nil
}

// ValidateSSA checks the single-assignment rule: every tensor is written by
// at most one node, no node writes a declared external input, and no node
// writes a tensor that an earlier node already read as a weight.
func (g *Graph) ValidateSSA() error {
	writer := make(map[string]int)
	for _, s := range g.Inputs {
		writer[s] = -1
	}
	weights := make(map[string]bool)
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if _, ok := writer[in]; !ok {
				weights[in] = true
			}
		}
		for _, out := range n.Outputs {
			if weights[out] {
				return fmt.Errorf("node %d (%s) writes %q after it was read as a weight: %w", i, n.Type, out, ErrMultipleWriters)
			}
			if prev, ok := writer[out]; ok {
				if prev < 0 {
					return fmt.Errorf("node %d (%s) writes external input %q: %w", i, n.Type, out, ErrMultipleWriters)
				}
				return fmt.Errorf("node %d (%s) and node %d both write %q: %w", prev, g.Nodes[prev].Type, i, out, ErrMultipleWriters)
			}
			writer[out] = i
		}
	}
	return nil
}

// Edges returns the node-level dependency edges of g: for every node, the
// indices of the nodes it reads from, deduplicated. g is expected to be in
// SSA form; otherwise the last writer of a tensor wins.
func (g *Graph) Edges() [][]int {
	producers := g.Producers()
	deps := make([][]int, len(g.Nodes))
	for i, n := range g.Nodes {
		seen := make(map[int]bool)
		for _, in := range n.Inputs {
			p, ok := producers[in]
			if !ok || p == i || seen[p] {
				continue
			}
			seen[p] = true
			deps[i] = append(deps[i], p)
		}
	}
	return deps
}

// CheckAcyclic reports whether the dependency lists in deps form a DAG.
// deps[i] lists the nodes that node i depends on. It returns
// [ErrGraphHasCycle] wrapped with a node on the cycle otherwise.
func CheckAcyclic(deps [][]int) error {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, len(deps))
	var visit func(int) bool
	visit = func(i int) bool {
		color[i] = gray
		for _, d := range deps[i] {
			switch color[d] {
			case gray:
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		color[i] = black
		return false
	}

	for i := range deps {
		if color[i] == white && visit(i) {
			return fmt.Errorf("node %d: %w", i, ErrGraphHasCycle)
		}
	}
	return nil
}
