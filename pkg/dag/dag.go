package dag

import (
	"errors"
	"slices"
)

var (
	// ErrEmptyOpType is returned by [Graph.Validate] when a node has no
	// operator type tag.
	ErrEmptyOpType = errors.New("node operator type must not be empty")

	// ErrEmptyTensorName is returned by [Graph.Validate] when a node input,
	// node output or external name is the empty string.
	ErrEmptyTensorName = errors.New("tensor name must not be empty")

	// ErrDanglingInput is returned by [Graph.Validate] when a node reads a
	// tensor that is neither produced by an earlier node, declared as an
	// external input, nor held as a weight.
	ErrDanglingInput = errors.New("input is not produced, declared or held as a weight")

	// ErrInputOverwritten is returned by [Graph.Validate] when a node writes
	// a tensor that is also a declared external input and a declared external
	// output. Such a graph cannot keep both name sequences stable.
	ErrInputOverwritten = errors.New("external input is overwritten and declared as an external output")

	// ErrUnknownOutput is returned by [Graph.Validate] when a declared
	// external output is never produced and is not an external input.
	ErrUnknownOutput = errors.New("external output is never produced")

	// ErrMultipleWriters is returned by [Graph.ValidateSSA] when a tensor is
	// written by more than one node, or written by a node while also being
	// an external input.
	ErrMultipleWriters = errors.New("tensor has more than one writer")

	// ErrGraphHasCycle is returned by [CheckAcyclic] when a cycle is detected
	// in a node dependency graph. Cycles are detected using depth-first
	// search with white/gray/black coloring.
	ErrGraphHasCycle = errors.New("graph contains a cycle")
)

// Device is a placement annotation carried by nodes and graphs.
// netcut never interprets it; it only carries it forward.
type Device struct {
	Type string `json:"type"`
	ID   int    `json:"id,omitempty"`
}

// Clone returns a copy of d. A nil device clones to nil.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}

// Arg is one named operator attribute. Exactly one of the value fields is
// meaningful; which one is decided by the operator that reads it.
type Arg struct {
	Name    string    `json:"name"`
	I       *int64    `json:"i,omitempty"`
	F       *float64  `json:"f,omitempty"`
	S       *string   `json:"s,omitempty"`
	B       []byte    `json:"b,omitempty"`
	Ints    []int64   `json:"ints,omitempty"`
	Floats  []float64 `json:"floats,omitempty"`
	Strings []string  `json:"strings,omitempty"`
}

// IntArg returns an integer argument.
func IntArg(name string, v int64) Arg { return Arg{Name: name, I: &v} }

// FloatArg returns a float argument.
func FloatArg(name string, v float64) Arg { return Arg{Name: name, F: &v} }

// StringArg returns a string argument.
func StringArg(name, v string) Arg { return Arg{Name: name, S: &v} }

// BytesArg returns a byte-string argument.
func BytesArg(name string, v []byte) Arg { return Arg{Name: name, B: v} }

// IntsArg returns an integer list argument.
func IntsArg(name string, v []int64) Arg { return Arg{Name: name, Ints: v} }

// FloatsArg returns a float list argument.
func FloatsArg(name string, v []float64) Arg { return Arg{Name: name, Floats: v} }

// Clone deep-copies the argument.
func (a Arg) Clone() Arg {
	c := Arg{Name: a.Name}
	if a.I != nil {
		v := *a.I
		c.I = &v
	}
	if a.F != nil {
		v := *a.F
		c.F = &v
	}
	if a.S != nil {
		v := *a.S
		c.S = &v
	}
	c.B = slices.Clone(a.B)
	c.Ints = slices.Clone(a.Ints)
	c.Floats = slices.Clone(a.Floats)
	c.Strings = slices.Clone(a.Strings)
	return c
}

// Node is one operator instance. Nodes are treated as values: rewriting
// code builds new nodes instead of mutating existing ones.
type Node struct {
	Name    string   // Optional instance name, informational only
	Type    string   // Operator type tag, e.g. "Conv"
	Inputs  []string // Ordered input tensor names
	Outputs []string // Ordered output tensor names
	Args    []Arg    // Unordered named attributes
	Device  *Device  // Optional placement annotation
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	c := Node{
		Name:    n.Name,
		Type:    n.Type,
		Inputs:  slices.Clone(n.Inputs),
		Outputs: slices.Clone(n.Outputs),
		Device:  n.Device.Clone(),
	}
	if n.Args != nil {
		c.Args = make([]Arg, len(n.Args))
		for i, a := range n.Args {
			c.Args[i] = a.Clone()
		}
	}
	return c
}

// Arg returns the argument with the given name.
func (n Node) Arg(name string) (Arg, bool) {
	for _, a := range n.Args {
		if a.Name == name {
			return a, true
		}
	}
	return Arg{}, false
}

// Int returns the integer argument name, or def when it is absent.
func (n Node) Int(name string, def int64) int64 {
	if a, ok := n.Arg(name); ok && a.I != nil {
		return *a.I
	}
	return def
}

// Ints returns the integer list argument name, or nil when it is absent.
func (n Node) Ints(name string) []int64 {
	if a, ok := n.Arg(name); ok {
		return a.Ints
	}
	return nil
}

// Str returns the string argument name, or def when it is absent.
func (n Node) Str(name, def string) string {
	if a, ok := n.Arg(name); ok && a.S != nil {
		return *a.S
	}
	return def
}

// Graph is an ordered dataflow graph. Node order is a topological order:
// a node may only read tensors produced by nodes before it.
//
// The zero value is an empty graph. Graph is not safe for concurrent
// mutation without external synchronization.
type Graph struct {
	Name    string
	Nodes   []Node
	Inputs  []string // Declared external inputs, supplied per invocation
	Outputs []string // Declared external outputs
	Device  *Device  // Graph-wide placement annotation
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := &Graph{
		Name:    g.Name,
		Inputs:  slices.Clone(g.Inputs),
		Outputs: slices.Clone(g.Outputs),
		Device:  g.Device.Clone(),
	}
	if g.Nodes != nil {
		c.Nodes = make([]Node, len(g.Nodes))
		for i, n := range g.Nodes {
			c.Nodes[i] = n.Clone()
		}
	}
	return c
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.Nodes) }

// IsInput reports whether name is a declared external input.
func (g *Graph) IsInput(name string) bool { return slices.Contains(g.Inputs, name) }

// IsOutput reports whether name is a declared external output.
func (g *Graph) IsOutput(name string) bool { return slices.Contains(g.Outputs, name) }

// Producers maps each written tensor to the index of its last writer.
// In SSA form every tensor has exactly one writer.
func (g *Graph) Producers() map[string]int {
	p := make(map[string]int)
	for i, n := range g.Nodes {
		for _, out := range n.Outputs {
			p[out] = i
		}
	}
	return p
}

// Consumers maps each read tensor to the indices of the nodes reading it,
// in node order. A node reading a tensor twice is listed once.
func (g *Graph) Consumers() map[string][]int {
	c := make(map[string][]int)
	for i, n := range g.Nodes {
		for _, in := range n.Inputs {
			if idx := c[in]; len(idx) > 0 && idx[len(idx)-1] == i {
				continue
			}
			c[in] = append(c[in], i)
		}
	}
	return c
}

// Tensors returns every tensor name in the graph in first-appearance order:
// external inputs, then node inputs and outputs in node order, then external
// outputs.
func (g *Graph) Tensors() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			names = append(names, s)
		}
	}
	for _, s := range g.Inputs {
		add(s)
	}
	for _, n := range g.Nodes {
		for _, s := range n.Inputs {
			add(s)
		}
		for _, s := range n.Outputs {
			add(s)
		}
	}
	for _, s := range g.Outputs {
		add(s)
	}
	return names
}

// FreeInputs returns, in first-read order, the tensors that some node reads
// before any node writes them and that are not external inputs. These are
// the graph's weight candidates.
func (g *Graph) FreeInputs() []string {
	defined := make(map[string]bool, len(g.Inputs))
	for _, s := range g.Inputs {
		defined[s] = true
	}
	var free []string
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			if !defined[in] {
				defined[in] = true
				free = append(free, in)
			}
		}
		for _, out := range n.Outputs {
			defined[out] = true
		}
	}
	return free
}
