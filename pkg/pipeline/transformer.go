package pipeline

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/matzehuels/netcut/pkg/cache"
	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/engine"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/observability"
	"github.com/matzehuels/netcut/pkg/prune"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/ssa"
	"github.com/matzehuels/netcut/pkg/store"
)

// Transformer runs rewrites. It holds no per-run state, so one Transformer
// can serve concurrent rewrites of different graphs.
type Transformer struct {
	Options    Options
	Supporter  cut.Supporter
	Converter  cut.Converter
	Inferencer shape.Inferencer
	Logger     *log.Logger
}

// NewTransformer validates opts and builds a transformer with the default
// collaborators: an [engine.OpSupport] predicate, an [engine.Converter]
// caching into c, and the built-in shape rules. Any of them can be replaced
// on the returned value. A nil cache disables engine caching; a nil keyer
// uses [cache.DefaultKeyer].
func NewTransformer(opts Options, c cache.Cache, keyer cache.Keyer) (*Transformer, error) {
	if err := opts.ValidateAndSetDefaults(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	return &Transformer{
		Options:    opts,
		Supporter:  engine.NewOpSupport(opts.SupportedOps, opts.BlockedOps),
		Converter:  engine.NewConverter(opts.EngineOptions(), nil, c, keyer, opts.Logger),
		Inferencer: shape.NewRuleInferencer(),
		Logger:     opts.Logger,
	}, nil
}

// Analyze runs the stages before conversion: validation, renaming, shape
// unification and the cut. Neither g nor s is modified. A nil store accepts
// every free read as a weight whose shape is unknown.
func (t *Transformer) Analyze(ctx context.Context, g *dag.Graph, s store.Store, hints shape.Table) (*Analysis, error) {
	return t.analyze(ctx, uuid.New(), g, s, hints)
}

func (t *Transformer) analyze(ctx context.Context, id uuid.UUID, g *dag.Graph, s store.Store, hints shape.Table) (*Analysis, error) {
	if g == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "graph is nil")
	}
	isWeight := weightCheck(ctx, s)
	if s == nil {
		s = store.NewMemoryStore(nil)
	}
	a := &Analysis{ID: id}

	if err := g.Validate(isWeight); err != nil {
		return nil, graphError(err, "input graph")
	}

	start := time.Now()
	renamed, mapping := ssa.NewRenamer(g, t.Logger).Rewrite()
	weights, err := mapping.Weights(ctx, s, g.Inputs)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "resolve weights")
	}
	a.Graph, a.Mapping = renamed, weights
	a.SSATime = time.Since(start)

	// Everything the store holds seeds inference, under the renamed names.
	held, err := store.ShapesOf(ctx, store.Remap(s, weights))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "read store shapes")
	}
	a.Hints = shape.Unify(ctx, renamed, held, ssa.RemapHints(hints, mapping.Reverse()), t.Inferencer, t.Logger)

	start = time.Now()
	a.Plan = cut.NewPlan(renamed, cut.Cut(renamed, t.Supporter, t.Logger))
	if err := a.Plan.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "cut produced an invalid plan")
	}
	a.CutTime = time.Since(start)

	sum := a.Plan.Summary()
	t.Logger.Info("planned rewrite",
		"graph", g.Name,
		"nodes", sum.Nodes,
		"partitions", sum.Partitions,
		"converted", sum.Converted,
		"kept", sum.Kept)
	return a, nil
}

// Rewrite computes the rewritten graph and its prune plan without applying
// either. On error nothing observable has changed.
func (t *Transformer) Rewrite(ctx context.Context, g *dag.Graph, s store.Store, hints shape.Table) (res *Result, err error) {
	if g == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "graph is nil")
	}
	start := time.Now()
	hooks := observability.Rewrite()
	id := uuid.New()
	runID := id.String()

	hooks.OnRewriteStart(ctx, runID, g.Name, len(g.Nodes))
	defer func() {
		partitions, pruned := 0, 0
		if res != nil {
			partitions, pruned = len(res.Plan.Partitions), len(res.Prune.Delete)
		}
		hooks.OnRewriteComplete(ctx, runID, partitions, pruned, time.Since(start), err)
	}()

	a, err := t.analyze(ctx, id, g, s, hints)
	if err != nil {
		return nil, err
	}

	for _, p := range a.Plan.Partitions {
		hooks.OnPartition(ctx, runID, p.Index, len(p.Nodes))
	}

	isWeight := weightCheck(ctx, s)
	if s == nil {
		s = store.NewMemoryStore(nil)
	}
	view := store.Remap(s, a.Mapping)
	if isWeight != nil {
		isWeight = func(name string) bool { return store.Has(ctx, view, name) }
	}

	convertStart := time.Now()
	sub := &cut.Substitution{
		Converter: t.Converter,
		Hints:     a.Hints,
		Weights:   view,
		Logger:    t.Logger,
		OnConverted: func(ctx context.Context, p *cut.Partition, n dag.Node, elapsed time.Duration) {
			hooks.OnConvert(ctx, runID, p.Index, n.Type, elapsed)
		},
	}
	final, err := sub.Apply(ctx, a.Plan)
	if err != nil {
		return nil, err
	}
	convertTime := time.Since(convertStart)

	if err := final.Validate(isWeight); err != nil {
		return nil, graphError(err, "rewritten graph")
	}
	if err := final.ValidateSSA(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidGraph, err, "rewritten graph")
	}
	if err := dag.CheckAcyclic(final.Edges()); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidGraph, err, "rewritten graph")
	}

	prunePlan, err := prune.NewPlan(final, a.Mapping)
	if err != nil {
		return nil, err
	}

	sum := a.Plan.Summary()
	res = &Result{
		ID:      a.ID,
		Graph:   final,
		Mapping: a.Mapping,
		Hints:   a.Hints,
		Plan:    a.Plan,
		Prune:   prunePlan,
		Stats: Stats{
			Nodes:       sum.Nodes,
			Partitions:  sum.Partitions,
			Converted:   sum.Converted,
			Kept:        sum.Kept,
			Pruned:      len(prunePlan.Delete),
			SSATime:     a.SSATime,
			CutTime:     a.CutTime,
			ConvertTime: convertTime,
			Total:       time.Since(start),
		},
		logger: t.Logger,
	}

	t.Logger.Info("rewrote graph",
		"graph", g.Name,
		"nodes", len(final.Nodes),
		"partitions", sum.Partitions,
		"prune", len(prunePlan.Delete),
		"duration", res.Stats.Total)
	return res, nil
}

// Transform rewrites g and commits the result.
func (t *Transformer) Transform(ctx context.Context, g *dag.Graph, s store.Store, hints shape.Table) (*Result, error) {
	res, err := t.Rewrite(ctx, g, s, hints)
	if err != nil {
		return nil, err
	}
	if err := res.Commit(ctx, g, s); err != nil {
		return nil, err
	}
	return res, nil
}

// Commit deletes the pruned weights from s and then replaces *g with the
// rewritten graph. If pruning fails, g is left untouched.
func (r *Result) Commit(ctx context.Context, g *dag.Graph, s store.Store) error {
	if g == nil {
		return errors.New(errors.ErrCodeInvalidInput, "graph is nil")
	}
	var err error
	if r.Prune != nil && !r.Prune.Empty() {
		if s == nil {
			return errors.New(errors.ErrCodeInvalidInput, "no weight store to prune %d weights from", len(r.Prune.Delete))
		}
		err = r.Prune.Apply(ctx, s)
		observability.Rewrite().OnPrune(ctx, r.ID.String(), len(r.Prune.Delete), err)
		if err != nil {
			code := errors.GetCode(err)
			if code == "" {
				code = errors.ErrCodeInternal
			}
			return errors.Wrap(code, err, "prune weights")
		}
		if r.logger != nil {
			r.logger.Debug("pruned weights", "count", len(r.Prune.Delete))
		}
	}
	*g = *r.Graph.Clone()
	return nil
}

// weightCheck returns the weight predicate for validation. A nil store
// yields a nil predicate, which accepts every free read.
func weightCheck(ctx context.Context, s store.Store) func(string) bool {
	if s == nil {
		return nil
	}
	return func(name string) bool { return store.Has(ctx, s, name) }
}

// graphError maps dag validation sentinels onto error codes.
func graphError(err error, what string) error {
	if stderrors.Is(err, dag.ErrDanglingInput) {
		return errors.Wrap(errors.ErrCodeDanglingReference, err, "%s", what)
	}
	return errors.Wrap(errors.ErrCodeInvalidGraph, err, "%s", what)
}
