// Package engine converts cut partitions into opaque accelerator engine
// nodes and decides which operators the accelerator supports.
//
// A [Converter] exports each partition to ONNX, hands the model to a
// [Builder], and emits one node carrying the serialized engine. Built
// engines are cached by model hash and build options, so re-running a
// rewrite on an unchanged network skips every build.
//
// [OpSupport] is the matching [cut.Supporter]: a node is supported when it
// can be exported and is allowed by the configured op lists.
package engine

import (
	"context"

	"github.com/matzehuels/netcut/pkg/onnx"
)

// BuildOptions are the settings an engine build depends on.
type BuildOptions struct {
	MaxBatchSize     int   `json:"max_batch_size"`
	MaxWorkspaceSize int64 `json:"max_workspace_size"`
	Debug            bool  `json:"debug"`
}

// Engine is a built engine plan with its runtime bindings.
type Engine struct {
	Plan    []byte   `json:"plan"`
	Inputs  []string `json:"inputs"`
	Outputs []string `json:"outputs"`
}

// Builder compiles an ONNX model into an engine.
type Builder interface {
	// Name identifies the builder in cache keys.
	Name() string
	Build(ctx context.Context, model *onnx.Model, opts BuildOptions) (*Engine, error)
}

// ModelBuilder is the portable builder: the plan is the serialized model
// itself, to be compiled by the runtime on first load.
type ModelBuilder struct{}

// Name returns "onnx".
func (ModelBuilder) Name() string { return "onnx" }

// Build serializes model.
func (ModelBuilder) Build(ctx context.Context, model *onnx.Model, _ BuildOptions) (*Engine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	plan, err := model.Marshal()
	if err != nil {
		return nil, err
	}
	e := &Engine{Plan: plan}
	initialized := make(map[string]bool, len(model.Graph.Initializers))
	for _, t := range model.Graph.Initializers {
		initialized[t.Name] = true
	}
	for _, in := range model.Graph.Inputs {
		if !initialized[in.Name] {
			e.Inputs = append(e.Inputs, in.Name)
		}
	}
	for _, out := range model.Graph.Outputs {
		e.Outputs = append(e.Outputs, out.Name)
	}
	return e, nil
}

// BuilderFunc adapts a function to [Builder].
type BuilderFunc func(ctx context.Context, model *onnx.Model, opts BuildOptions) (*Engine, error)

// Name returns "func".
func (BuilderFunc) Name() string { return "func" }

// Build calls f.
func (f BuilderFunc) Build(ctx context.Context, model *onnx.Model, opts BuildOptions) (*Engine, error) {
	return f(ctx, model, opts)
}

var (
	_ Builder = ModelBuilder{}
	_ Builder = BuilderFunc(nil)
)
