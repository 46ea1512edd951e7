package ssa

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/dag"
)

// NamePool hands out fresh tensor names that collide neither with reserved
// names nor with names it handed out before.
//
// A pool belongs to one renaming pass; it is not safe for concurrent use.
type NamePool struct {
	used map[string]bool
	next map[string]int
}

// NewNamePool returns a pool with every name in reserved marked as taken.
func NewNamePool(reserved []string) *NamePool {
	p := &NamePool{
		used: make(map[string]bool, len(reserved)),
		next: make(map[string]int),
	}
	for _, name := range reserved {
		p.used[name] = true
	}
	return p
}

// Reserve marks name as taken.
func (p *NamePool) Reserve(name string) { p.used[name] = true }

// Fresh returns base_N for the smallest N >= 1 that is not taken, and marks
// it taken.
func (p *NamePool) Fresh(base string) string {
	for n := p.next[base] + 1; ; n++ {
		name := fmt.Sprintf("%s_%d", base, n)
		if !p.used[name] {
			p.used[name] = true
			p.next[base] = n
			return name
		}
	}
}

// Renamer converts one graph to SSA form. Create one per graph with
// [NewRenamer]; the name pool it owns is seeded from that graph.
type Renamer struct {
	g      *dag.Graph
	pool   *NamePool
	logger *log.Logger
}

// NewRenamer returns a renamer for g. A nil logger discards output.
func NewRenamer(g *dag.Graph, logger *log.Logger) *Renamer {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Renamer{g: g, logger: logger}
}

// Rewrite is shorthand for NewRenamer(g, nil).Rewrite().
func Rewrite(g *dag.Graph) (*dag.Graph, Mapping) {
	return NewRenamer(g, nil).Rewrite()
}

// Rewrite returns the renamed graph and the weight mapping. The input graph
// is not modified.
//
// Rewrite is total for every graph accepted by [dag.Graph.Validate]. For
// other graphs the result is well defined but may not satisfy
// [dag.Graph.ValidateSSA].
func (r *Renamer) Rewrite() (*dag.Graph, Mapping) {
	g := r.g
	r.pool = NewNamePool(g.Tensors())

	isOutput := make(map[string]bool, len(g.Outputs))
	for _, s := range g.Outputs {
		isOutput[s] = true
	}
	last := lastWrites(g)

	current := make(map[string]string)
	for _, s := range g.Inputs {
		current[s] = s
	}
	mapping := make(Mapping)
	renamed := 0

	// define picks the name for a new version of orig. final reports
	// whether no later write of orig follows.
	define := func(orig string, final bool) string {
		_, seen := current[orig]
		keep := !seen
		if isOutput[orig] {
			keep = final
		}
		name := orig
		if !keep {
			name = r.pool.Fresh(orig)
			renamed++
		}
		current[orig] = name
		return name
	}

	out := &dag.Graph{
		Name:    g.Name,
		Inputs:  append([]string(nil), g.Inputs...),
		Outputs: append([]string(nil), g.Outputs...),
		Device:  g.Device.Clone(),
		Nodes:   make([]dag.Node, len(g.Nodes)),
	}

	for i, n := range g.Nodes {
		nn := n.Clone()
		for j, in := range n.Inputs {
			name, ok := current[in]
			if !ok {
				_, written := last[in]
				name = define(in, !written)
				mapping[name] = in
			}
			nn.Inputs[j] = name
		}
		for j, o := range n.Outputs {
			nn.Outputs[j] = define(o, last[o] == write{i, j})
		}
		out.Nodes[i] = nn
	}

	r.logger.Debug("ssa rename", "graph", g.Name, "nodes", len(g.Nodes), "renamed", renamed, "weights", len(mapping))
	return out, mapping
}

type write struct{ node, pos int }

func lastWrites(g *dag.Graph) map[string]write {
	last := make(map[string]write)
	for i, n := range g.Nodes {
		for j, o := range n.Outputs {
			last[o] = write{i, j}
		}
	}
	return last
}
