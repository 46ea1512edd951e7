// Package pipeline runs the complete netcut rewrite.
//
// This package implements the validate → rename → cut → convert → prune
// sequence that the CLI and the API server share. Centralizing it keeps
// defaults, logging and error codes identical across entry points.
//
// # Stages
//
//  1. Validate: reject malformed input graphs
//  2. Rename: bring the graph into single-assignment form ([ssa])
//  3. Shapes: merge weight shapes, caller hints and inferred shapes ([shape])
//  4. Cut: group supported nodes into maximal partitions ([cut])
//  5. Convert: replace every partition with one engine node ([engine])
//  6. Prune: schedule baked weights for deletion ([prune])
//
// # Atomicity
//
// [Transformer.Rewrite] never touches the caller's graph or weight store;
// it returns a [Result] describing the new graph and the weights to drop.
// [Result.Commit] then applies both. A failing rewrite therefore leaves
// nothing half-done, and a caller can inspect or discard a result freely.
//
// # Usage
//
//	t, err := pipeline.NewTransformer(pipeline.Options{Logger: logger}, cache, nil)
//	if err != nil {
//	    return err
//	}
//	res, err := t.Rewrite(ctx, g, weights, hints)
//	if err != nil {
//	    return err
//	}
//	if err := res.Commit(ctx, g, weights); err != nil {
//	    return err
//	}
package pipeline

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/engine"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/onnx"
	"github.com/matzehuels/netcut/pkg/prune"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/ssa"
)

// =============================================================================
// Default Values - Single Source of Truth for CLI and API
// =============================================================================

const (
	// DefaultOpType is the operator type of emitted engine nodes.
	DefaultOpType = engine.DefaultOpType

	// DefaultMaxBatchSize is the engine's maximum batch size.
	DefaultMaxBatchSize = 1

	// DefaultMaxWorkspaceSize is the builder's scratch memory limit in bytes.
	DefaultMaxWorkspaceSize = int64(1 << 20)

	// DefaultVerbosity is the log verbosity passed to the engine runtime.
	DefaultVerbosity = 2

	// DefaultOpset is the ONNX opset of exported partitions.
	DefaultOpset = onnx.DefaultOpset

	// DefaultCacheTTL is how long built engines stay cached.
	DefaultCacheTTL = cache.TTLEngine
)

// =============================================================================
// Options - Rewrite Configuration
// =============================================================================

// Options contains all configuration for a rewrite.
// This struct supports JSON serialization for API requests and TOML for
// the [rewrite] section of the config file.
type Options struct {
	OpType           string `json:"op_type,omitempty" toml:"op_type"`
	MaxBatchSize     int    `json:"max_batch_size,omitempty" toml:"max_batch_size"`
	MaxWorkspaceSize int64  `json:"max_workspace_size,omitempty" toml:"max_workspace_size"`
	Verbosity        int    `json:"verbosity,omitempty" toml:"verbosity"`
	DebugBuilder     bool   `json:"debug_builder,omitempty" toml:"debug_builder"`
	DebugDir         string `json:"-" toml:"debug_dir"` // Dump intermediate models here

	// Operator filters. An empty SupportedOps accepts every exportable op.
	SupportedOps []string `json:"supported_ops,omitempty" toml:"supported_ops"`
	BlockedOps   []string `json:"blocked_ops,omitempty" toml:"blocked_ops"`

	// NoBake keeps weights as engine inputs (default: false = bake into the engine)
	NoBake bool `json:"no_bake,omitempty" toml:"no_bake"`

	OpsetVersion int64         `json:"opset_version,omitempty" toml:"opset_version"`
	CacheTTL     time.Duration `json:"-" toml:"cache_ttl"`

	// Runtime options (not serialized)
	Logger *log.Logger `json:"-" toml:"-"`

	// validated tracks whether ValidateAndSetDefaults has been called.
	validated bool
}

// ValidateAndSetDefaults checks option values and applies defaults.
// This method is idempotent - calling it multiple times has the same effect as calling it once.
func (o *Options) ValidateAndSetDefaults() error {
	if o.validated {
		return nil
	}
	if o.OpType == "" {
		o.OpType = DefaultOpType
	}
	for _, op := range slices.Concat([]string{o.OpType}, o.SupportedOps, o.BlockedOps) {
		if err := errors.ValidateOpType(op); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "rewrite options")
		}
	}
	if o.DebugDir != "" {
		if err := errors.ValidatePath(o.DebugDir); err != nil {
			return errors.Wrap(errors.ErrCodeInvalidConfig, err, "debug_dir")
		}
	}
	if o.MaxBatchSize < 0 || o.MaxWorkspaceSize < 0 || o.CacheTTL < 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "batch size, workspace size and cache TTL must not be negative")
	}
	if o.MaxBatchSize == 0 {
		o.MaxBatchSize = DefaultMaxBatchSize
	}
	if o.MaxWorkspaceSize == 0 {
		o.MaxWorkspaceSize = DefaultMaxWorkspaceSize
	}
	if o.Verbosity == 0 {
		o.Verbosity = DefaultVerbosity
	}
	if o.OpsetVersion == 0 {
		o.OpsetVersion = DefaultOpset
	}
	if o.OpsetVersion < onnx.DefaultOpset {
		return errors.New(errors.ErrCodeInvalidConfig, "opset %d is older than the minimum %d", o.OpsetVersion, onnx.DefaultOpset)
	}
	if o.CacheTTL == 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Logger == nil {
		o.Logger = log.NewWithOptions(io.Discard, log.Options{})
	}
	o.validated = true
	return nil
}

// ShouldBake returns whether weights are baked into engines.
func (o *Options) ShouldBake() bool {
	return !o.NoBake
}

// EngineOptions returns the converter options.
func (o *Options) EngineOptions() engine.Options {
	return engine.Options{
		OpType:           o.OpType,
		MaxBatchSize:     o.MaxBatchSize,
		MaxWorkspaceSize: o.MaxWorkspaceSize,
		Verbosity:        o.Verbosity,
		Debug:            o.DebugBuilder,
		DebugDir:         o.DebugDir,
		BakeWeights:      o.ShouldBake(),
		Opset:            o.OpsetVersion,
		CacheTTL:         o.CacheTTL,
	}
}

// =============================================================================
// Results
// =============================================================================

// Analysis is the outcome of the stages before conversion.
type Analysis struct {
	// ID identifies the run in logs and hooks.
	ID uuid.UUID

	// Graph is the renamed input graph the plan refers to.
	Graph *dag.Graph

	// Mapping maps renamed weights to their store names.
	Mapping ssa.Mapping

	// Hints are the unified shapes, keyed by renamed names.
	Hints shape.Table

	// Plan is the cut.
	Plan *cut.Plan

	SSATime time.Duration
	CutTime time.Duration
}

// Result contains the outputs of a rewrite. Nothing in it has been applied
// yet; see [Result.Commit].
type Result struct {
	ID uuid.UUID

	// Graph is the rewritten graph. Its external inputs, outputs and device
	// equal the original's.
	Graph *dag.Graph

	// Mapping maps renamed weights to their store names.
	Mapping ssa.Mapping

	// Hints are the unified shapes used for conversion.
	Hints shape.Table

	// Plan is the cut the rewrite applied.
	Plan *cut.Plan

	// Prune lists the store names to delete on commit.
	Prune *prune.Plan

	// Stats contains timing and size information.
	Stats Stats

	logger *log.Logger
}

// Stats contains rewrite statistics.
type Stats struct {
	Nodes       int           `json:"nodes"`
	Partitions  int           `json:"partitions"`
	Converted   int           `json:"converted"`
	Kept        int           `json:"kept"`
	Pruned      int           `json:"pruned"`
	SSATime     time.Duration `json:"ssa_time"`
	CutTime     time.Duration `json:"cut_time"`
	ConvertTime time.Duration `json:"convert_time"`
	Total       time.Duration `json:"total"`
}

// String returns a one-line summary.
func (s Stats) String() string {
	return fmt.Sprintf("%d nodes: %d partitions (%d converted nodes), %d kept, %d weights pruned in %s",
		s.Nodes, s.Partitions, s.Converted, s.Kept, s.Pruned, s.Total.Round(time.Millisecond))
}
