// Package pkg provides the core libraries for netcut.
//
// # Overview
//
// netcut takes a dataflow graph of operator nodes, finds the maximal runs of
// nodes an inference engine supports, and replaces each run with one opaque
// engine node. Weights baked into an engine are then removed from the
// runtime store. The pkg directory is organized into three areas:
//
//  1. Model - the graph, its shapes and its weights ([dag], [shape], [store])
//  2. Rewrite - renaming, cutting, conversion and pruning ([ssa], [cut], [engine], [prune])
//  3. Infrastructure - caching, errors, hooks, I/O and drawing ([cache], [errors], [observability], [io], [render])
//
// # Architecture
//
// The data flow through a rewrite:
//
//	graph.json + weights + hints
//	         ↓
//	    [ssa] single assignment renaming
//	         ↓
//	    [shape] hint unification and inference
//	         ↓
//	    [cut] maximal partitions of supported nodes
//	         ↓
//	    [engine] one engine node per partition (via [onnx])
//	         ↓
//	    [prune] weights no surviving node reads
//
// [pipeline] runs the whole sequence for the CLI and the API server.
//
// # Quick Start
//
//	g, _ := io.ImportGraph("model.json")
//	weights, _ := store.OpenFileStore("model.weights.json")
//	hints, _ := io.ImportHints("model.hints.json")
//
//	t, _ := pipeline.NewTransformer(pipeline.Options{}, nil, nil)
//	res, err := t.Transform(ctx, g, weights, hints)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(res.Stats)
//
// # Testing
//
//	go test ./pkg/...                    # All tests
//	go test -run Example ./pkg/...       # Examples only
//	go test -tags integration ./pkg/...  # Include Redis and MongoDB tests
//
// [dag]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/dag
// [shape]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/shape
// [store]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/store
// [ssa]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/ssa
// [cut]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/cut
// [engine]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/engine
// [onnx]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/onnx
// [prune]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/prune
// [pipeline]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/pipeline
// [cache]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/cache
// [errors]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/errors
// [observability]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/observability
// [io]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/io
// [render]: https://pkg.go.dev/github.com/matzehuels/netcut/pkg/render
package pkg
