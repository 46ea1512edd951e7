// Package cut finds the regions of a graph that an accelerator backend can
// run and replaces each of them with one opaque node.
//
// # Overview
//
// Cutting happens in two steps:
//
//  1. [Cut] classifies every node with a [Supporter] and groups supported
//     nodes into maximal partitions. [NewPlan] adds the boundary tensors of
//     each partition.
//  2. [Substitute] hands every partition to a [Converter] and splices the
//     returned node into a new graph in place of the partition's members.
//
// Both steps require a graph in single-assignment form (see package ssa),
// so that a tensor name identifies exactly one producing node.
//
// # Partitioning
//
// The partitioner walks the nodes in their given order and keeps one open
// partition. Unsupported nodes met while a partition is open are queued
// either before it (when they do not depend on the partition) or after it
// (when they read a tensor produced by the partition or by another queued
// node that does). Outputs of after-queued nodes are tainted: a supported
// node reading a tainted tensor cannot join the open partition, because the
// collapsed partition would then both feed and consume the same unsupported
// node. At that point the partition is closed and emitted as
// before-queue, partition, after-queue, and the node opens a new partition.
//
// The result is maximal: two emitted partitions are only ever separate
// because merging them would create a cycle. Nodes are never reordered
// across a dependency, so concatenating the segments yields a topological
// order of the input graph.
//
// # Predicate Failures
//
// A [Supporter] that returns an error or panics for a node is logged at
// warn level and the node is treated as unsupported. Support decisions
// never abort a rewrite.
//
// # Substitution Contract
//
// The converter receives the partition's member nodes, its boundary tensors,
// the resolved weight values among its inputs, and the shape table. It must
// return a node whose outputs are exactly the boundary outputs and whose
// inputs are drawn from the boundary inputs. Weights baked into the
// converted node may be left out of its inputs; every other boundary input
// must be present. Conversion failures abort the substitution.
package cut
