// Package dag provides the dataflow graph model rewritten by netcut.
//
// # Overview
//
// A [Graph] is an ordered list of operator [Node] values plus two ordered
// lists of tensor names: the declared external inputs, supplied at every
// invocation, and the declared external outputs. Nodes communicate through
// named tensors; a node reading tensor "x" depends on the node writing "x".
//
// Node order is significant. It is always a topological order, so a node
// may only read tensors produced by nodes before it, external inputs, or
// weights held by the runtime weight store.
//
// # Basic Usage
//
//	g := &dag.Graph{
//	    Inputs:  []string{"data"},
//	    Outputs: []string{"prob"},
//	    Nodes: []dag.Node{
//	        {Type: "FC", Inputs: []string{"data", "fc_w", "fc_b"}, Outputs: []string{"fc"}},
//	        {Type: "Softmax", Inputs: []string{"fc"}, Outputs: []string{"prob"}},
//	    },
//	}
//	if err := g.Validate(weights.Has); err != nil {
//	    // malformed graph
//	}
//
// # Single Assignment
//
// Graphs read from a runtime may write the same tensor name more than once
// (in-place operators). The rewrite pipeline first renames such graphs into
// single-assignment form with package ssa, then checks the result with
// [Graph.ValidateSSA]. Partitioning relies on single assignment: with one
// writer per tensor, a tensor name identifies a dependency exactly.
//
// # Acyclicity
//
// [CheckAcyclic] runs a white/gray/black depth-first search over node-level
// dependency lists. The partitioner uses it to verify that collapsing each
// partition into one node keeps the graph acyclic.
//
// # Concurrency
//
// Graph and Node values are plain data. Concurrent reads are safe; writers
// must synchronize externally. Rewrites never mutate their input graph.
package dag
