package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/onnx"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// Engine node arguments.
const (
	ArgSerializedEngine = "serialized_engine"
	ArgMaxBatchSize     = "max_batch_size"
	ArgLogVerbosity     = "log_verbosity"
	ArgOutputSizeHint   = "output_size_hint_"
)

// DefaultOpType is the type of emitted engine nodes.
const DefaultOpType = "TensorRT"

// Options configures a [Converter].
type Options struct {
	OpType           string        `json:"op_type"`
	MaxBatchSize     int           `json:"max_batch_size"`
	MaxWorkspaceSize int64         `json:"max_workspace_size"`
	Verbosity        int           `json:"verbosity"`
	Debug            bool          `json:"debug"`
	DebugDir         string        `json:"debug_dir,omitempty"`
	BakeWeights      bool          `json:"bake_weights"`
	Opset            int64         `json:"opset"`
	CacheTTL         time.Duration `json:"cache_ttl"`
}

// Converter implements [cut.Converter] by building one engine per
// partition.
type Converter struct {
	Options  Options
	Exporter *onnx.Exporter
	Builder  Builder
	Cache    cache.Cache
	Keyer    cache.Keyer
	Logger   *log.Logger
}

// NewConverter creates a converter. Nil collaborators default to a
// [ModelBuilder], a [cache.NullCache], a [cache.DefaultKeyer] and a
// discarding logger. Zero options take their defaults.
func NewConverter(opts Options, b Builder, c cache.Cache, keyer cache.Keyer, logger *log.Logger) *Converter {
	if opts.OpType == "" {
		opts.OpType = DefaultOpType
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = 1
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = cache.TTLEngine
	}
	if b == nil {
		b = ModelBuilder{}
	}
	if c == nil {
		c = cache.NewNullCache()
	}
	if keyer == nil {
		keyer = cache.NewDefaultKeyer()
	}
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	return &Converter{
		Options:  opts,
		Exporter: onnx.NewExporter(opts.Opset),
		Builder:  b,
		Cache:    c,
		Keyer:    keyer,
		Logger:   logger,
	}
}

// Convert exports sub, builds (or loads) its engine, and returns the
// engine node. The node's inputs are the engine's runtime bindings, which
// with baked weights exclude every weight.
func (c *Converter) Convert(ctx context.Context, sub cut.Subgraph, hints shape.Table, _ store.Store) (dag.Node, error) {
	model, err := c.Exporter.ExportSubgraph(sub, hints, c.Options.BakeWeights)
	if err != nil {
		return dag.Node{}, err
	}
	data, err := model.Marshal()
	if err != nil {
		return dag.Node{}, errors.Wrap(errors.ErrCodeInternal, err, "encode model")
	}
	if c.Options.DebugDir != "" {
		if err := c.dump(sub.Index, data); err != nil {
			c.Logger.Warn("debug dump failed", "partition", sub.Index, "err", err)
		}
	}

	eng, err := c.engine(ctx, model, data)
	if err != nil {
		return dag.Node{}, err
	}

	n := dag.Node{
		Name:    fmt.Sprintf("partition_%d", sub.Index),
		Type:    c.Options.OpType,
		Inputs:  eng.Inputs,
		Outputs: eng.Outputs,
		Args: []dag.Arg{
			dag.BytesArg(ArgSerializedEngine, eng.Plan),
			dag.IntArg(ArgMaxBatchSize, int64(c.Options.MaxBatchSize)),
			dag.IntArg(ArgLogVerbosity, int64(c.Options.Verbosity)),
		},
	}
	for i, out := range sub.Outputs {
		h := hints.Lookup(out)
		if h == nil {
			return dag.Node{}, errors.New(errors.ErrCodeMissingShape, "output %q has no shape", out)
		}
		n.Args = append(n.Args, dag.IntsArg(fmt.Sprintf("%s%d", ArgOutputSizeHint, i), h.Clone().Dims))
	}
	return n, nil
}

// engine returns the cached engine for the model bytes, building it on a
// miss. Cache failures degrade to a build.
func (c *Converter) engine(ctx context.Context, model *onnx.Model, data []byte) (*Engine, error) {
	key := c.Keyer.EngineKey(cache.Hash(data), cache.EngineKeyOpts{
		OpType:           c.Options.OpType,
		MaxBatchSize:     c.Options.MaxBatchSize,
		MaxWorkspaceSize: c.Options.MaxWorkspaceSize,
		Debug:            c.Options.Debug,
		Builder:          c.Builder.Name(),
	})

	cached, hit, err := c.Cache.Get(ctx, key)
	if err != nil {
		c.Logger.Warn("engine cache read failed", "err", err)
	}
	if hit {
		var e Engine
		if err := json.Unmarshal(cached, &e); err == nil {
			c.Logger.Debug("engine cache hit", "graph", model.Graph.Name, "bytes", len(e.Plan))
			return &e, nil
		}
		c.Logger.Warn("discarding corrupt engine cache entry", "key", key)
	}

	start := time.Now()
	e, err := c.Builder.Build(ctx, model, BuildOptions{
		MaxBatchSize:     c.Options.MaxBatchSize,
		MaxWorkspaceSize: c.Options.MaxWorkspaceSize,
		Debug:            c.Options.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", model.Graph.Name, err)
	}
	c.Logger.Debug("built engine", "graph", model.Graph.Name, "bytes", len(e.Plan), "elapsed", time.Since(start))

	if blob, err := json.Marshal(e); err == nil {
		if err := c.Cache.Set(ctx, key, blob, c.Options.CacheTTL); err != nil {
			c.Logger.Warn("engine cache write failed", "err", err)
		}
	}
	return e, nil
}

func (c *Converter) dump(index int, data []byte) error {
	if err := os.MkdirAll(c.Options.DebugDir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(c.Options.DebugDir, fmt.Sprintf("partition_%d.onnx", index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	c.Logger.Debug("wrote intermediate model", "path", path)
	return nil
}

var _ cut.Converter = (*Converter)(nil)
