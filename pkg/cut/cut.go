package cut

import (
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/dag"
)

// Supporter decides whether the accelerator backend can run a node.
// Implementations must not modify the node.
type Supporter interface {
	Supports(n dag.Node) (bool, error)
}

// SupportFunc adapts a function to [Supporter].
type SupportFunc func(n dag.Node) (bool, error)

// Supports calls f(n).
func (f SupportFunc) Supports(n dag.Node) (bool, error) { return f(n) }

// All supports every node.
var All Supporter = SupportFunc(func(dag.Node) (bool, error) { return true, nil })

// None supports no node.
var None Supporter = SupportFunc(func(dag.Node) (bool, error) { return false, nil })

// Partition is a group of supported nodes that will be replaced by one
// converted node.
type Partition struct {
	Index   int      // Position among the plan's partitions, from 0
	Nodes   []int    // Member node indices, increasing
	Inputs  []string // Boundary inputs, filled in by NewPlan
	Outputs []string // Boundary outputs, filled in by NewPlan
}

// Segment is one element of a cut: a kept node or a partition.
type Segment struct {
	Node      int        // Index of a kept node; -1 for partitions
	Partition *Partition // nil for kept nodes
}

// IsPartition reports whether s is a partition.
func (s Segment) IsPartition() bool { return s.Partition != nil }

// Nodes returns the node indices covered by s.
func (s Segment) Nodes() []int {
	if s.Partition != nil {
		return s.Partition.Nodes
	}
	return []int{s.Node}
}

type cutter struct {
	g      *dag.Graph
	s      Supporter
	logger *log.Logger

	out        []Segment
	open       *Partition
	before     []int
	after      []int
	produced   map[string]bool
	tainted    map[string]bool
	partitions int
}

// Cut partitions g into kept nodes and maximal partitions of supported
// nodes. g must be in single-assignment form. A nil logger discards
// predicate failures.
func Cut(g *dag.Graph, s Supporter, logger *log.Logger) []Segment {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	c := &cutter{g: g, s: s, logger: logger}

	for i, n := range g.Nodes {
		supported := c.supports(i, n)

		switch {
		case c.open == nil && !supported:
			c.emitNode(i)
		case c.open == nil:
			c.openPartition(i)
		case !supported:
			if c.readsAny(n, c.produced) || c.readsAny(n, c.tainted) {
				c.after = append(c.after, i)
				for _, out := range n.Outputs {
					c.tainted[out] = true
				}
			} else {
				c.before = append(c.before, i)
			}
		case c.readsAny(n, c.tainted):
			c.flush()
			c.openPartition(i)
		default:
			c.open.Nodes = append(c.open.Nodes, i)
			for _, out := range n.Outputs {
				c.produced[out] = true
			}
		}
	}
	c.flush()

	logger.Debug("cut graph", "graph", g.Name, "nodes", len(g.Nodes), "segments", len(c.out), "partitions", c.partitions)
	return c.out
}

func (c *cutter) supports(i int, n dag.Node) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("support query panicked, keeping node", "node", i, "op", n.Type, "panic", fmt.Sprint(r))
			ok = false
		}
	}()
	ok, err := c.s.Supports(n.Clone())
	if err != nil {
		c.logger.Warn("support query failed, keeping node", "node", i, "op", n.Type, "err", err)
		return false
	}
	return ok
}

func (c *cutter) readsAny(n dag.Node, set map[string]bool) bool {
	for _, in := range n.Inputs {
		if set[in] {
			return true
		}
	}
	return false
}

func (c *cutter) emitNode(i int) {
	c.out = append(c.out, Segment{Node: i})
}

func (c *cutter) openPartition(i int) {
	c.open = &Partition{Index: c.partitions, Nodes: []int{i}}
	c.partitions++
	c.produced = make(map[string]bool)
	c.tainted = make(map[string]bool)
	for _, out := range c.g.Nodes[i].Outputs {
		c.produced[out] = true
	}
}

// flush emits the before-queue, the open partition and the after-queue.
func (c *cutter) flush() {
	if c.open == nil {
		return
	}
	for _, i := range c.before {
		c.emitNode(i)
	}
	c.out = append(c.out, Segment{Node: -1, Partition: c.open})
	for _, i := range c.after {
		c.emitNode(i)
	}
	c.open, c.before, c.after = nil, nil, nil
}
