package cut

import (
	"fmt"
	"strings"

	"github.com/matzehuels/netcut/pkg/dag"
)

// PartitionOpType is the operator type of the placeholder nodes produced by
// [Plan.Graph].
const PartitionOpType = "Partition"

// Plan is a cut of one graph with boundary tensors computed for every
// partition.
type Plan struct {
	Graph      *dag.Graph
	Segments   []Segment
	Partitions []*Partition
}

// NewPlan computes partition boundaries for segments cut from g.
func NewPlan(g *dag.Graph, segments []Segment) *Plan {
	p := &Plan{Graph: g, Segments: segments}
	for _, s := range segments {
		if !s.IsPartition() {
			continue
		}
		s.Partition.Inputs, s.Partition.Outputs = Boundary(g, s.Partition.Nodes)
		p.Partitions = append(p.Partitions, s.Partition)
	}
	return p
}

// Boundary returns the boundary tensors of the node set nodes in g.
//
// Inputs are the tensors read by a member and not produced by any member,
// in first-read order without duplicates. Outputs are the tensors produced
// by a member and either read by a non-member or declared as an external
// output of g, in production order.
func Boundary(g *dag.Graph, nodes []int) (inputs, outputs []string) {
	member := make(map[int]bool, len(nodes))
	produced := make(map[string]bool)
	for _, i := range nodes {
		member[i] = true
		for _, out := range g.Nodes[i].Outputs {
			produced[out] = true
		}
	}

	seen := make(map[string]bool)
	for _, i := range nodes {
		for _, in := range g.Nodes[i].Inputs {
			if produced[in] || seen[in] {
				continue
			}
			seen[in] = true
			inputs = append(inputs, in)
		}
	}

	external := make(map[string]bool)
	for i, n := range g.Nodes {
		if member[i] {
			continue
		}
		for _, in := range n.Inputs {
			external[in] = true
		}
	}
	for _, s := range g.Outputs {
		external[s] = true
	}
	seen = make(map[string]bool)
	for _, i := range nodes {
		for _, out := range g.Nodes[i].Outputs {
			if external[out] && !seen[out] {
				seen[out] = true
				outputs = append(outputs, out)
			}
		}
	}
	return inputs, outputs
}

// Order returns the node indices of all segments in emission order.
func (p *Plan) Order() []int {
	order := make([]int, 0, len(p.Graph.Nodes))
	for _, s := range p.Segments {
		order = append(order, s.Nodes()...)
	}
	return order
}

// Collapsed returns g with every partition replaced by a placeholder node of
// type [PartitionOpType] wired to the partition's boundary. The result is
// used for acyclicity checks and rendering.
func (p *Plan) Collapsed() *dag.Graph {
	g := &dag.Graph{
		Name:    p.Graph.Name,
		Inputs:  append([]string(nil), p.Graph.Inputs...),
		Outputs: append([]string(nil), p.Graph.Outputs...),
		Device:  p.Graph.Device.Clone(),
	}
	for _, s := range p.Segments {
		if !s.IsPartition() {
			g.Nodes = append(g.Nodes, p.Graph.Nodes[s.Node].Clone())
			continue
		}
		g.Nodes = append(g.Nodes, dag.Node{
			Name:    fmt.Sprintf("partition_%d", s.Partition.Index),
			Type:    PartitionOpType,
			Inputs:  append([]string(nil), s.Partition.Inputs...),
			Outputs: append([]string(nil), s.Partition.Outputs...),
		})
	}
	return g
}

// Summary holds plan counts.
type Summary struct {
	Nodes      int // Nodes in the cut graph
	Partitions int // Partitions found
	Converted  int // Nodes inside partitions
	Kept       int // Nodes left to the runtime
	Largest    int // Size of the largest partition
}

// Summary counts nodes and partitions.
func (p *Plan) Summary() Summary {
	s := Summary{Nodes: len(p.Graph.Nodes), Partitions: len(p.Partitions)}
	for _, part := range p.Partitions {
		s.Converted += len(part.Nodes)
		s.Largest = max(s.Largest, len(part.Nodes))
	}
	s.Kept = s.Nodes - s.Converted
	return s
}

// String lists the segments one per line:
//
//	partition 0 [Conv Relu] in=[data conv_w] out=[x]
//	node 2 Softmax
func (p *Plan) String() string {
	var b strings.Builder
	for _, s := range p.Segments {
		if !s.IsPartition() {
			fmt.Fprintf(&b, "node %d %s\n", s.Node, p.Graph.Nodes[s.Node].Type)
			continue
		}
		ops := make([]string, len(s.Partition.Nodes))
		for i, idx := range s.Partition.Nodes {
			ops[i] = p.Graph.Nodes[idx].Type
		}
		fmt.Fprintf(&b, "partition %d [%s] in=[%s] out=[%s]\n",
			s.Partition.Index,
			strings.Join(ops, " "),
			strings.Join(s.Partition.Inputs, " "),
			strings.Join(s.Partition.Outputs, " "))
	}
	return b.String()
}

// Validate checks that the collapsed plan is acyclic and that its segment
// order is a topological order.
func (p *Plan) Validate() error {
	g := p.Collapsed()
	deps := g.Edges()
	for i, d := range deps {
		for _, j := range d {
			if j > i {
				return fmt.Errorf("segment %d (%s) reads from later segment %d (%s)", i, g.Nodes[i].Type, j, g.Nodes[j].Type)
			}
		}
	}
	return dag.CheckAcyclic(deps)
}
