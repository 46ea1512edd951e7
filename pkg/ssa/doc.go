// Package ssa converts a dataflow graph to single static assignment form.
//
// # Overview
//
// Runtimes that execute graphs in place let a node overwrite a tensor that an
// earlier node produced (for example an in-place Relu writing "x" back to
// "x"). Partitioning needs every tensor name to denote exactly one value, so
// the graph is renamed first: each write after the first gets a fresh name
// and every later read refers to the newest version.
//
// # Naming
//
// Renaming is minimal. The first definition of a name keeps it, where a first
// definition is a declared external input, the first read of a weight, or the
// first write. Later versions are named base_1, base_2 and so on, skipping
// every name already present in the graph (see [NamePool]).
//
// Declared external outputs are the exception: the final version of an
// output takes the original name so callers keep finding it, and earlier
// versions are freshly named. External input and output name lists are
// therefore identical before and after renaming.
//
// # Weights
//
// A tensor read before any node writes it and not declared as an external
// input is a weight candidate. [Mapping] records, for every such tensor, the
// name it carries in the renamed graph and the name it has in the weight
// store. Usually both are equal; they differ only when a weight shares its
// name with a declared output that some node rewrites.
//
// # Idempotence
//
// Renaming a graph that already satisfies [dag.Graph.ValidateSSA] returns an
// identical graph and an identity mapping.
package ssa
