package shape

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/netcut/pkg/dag"
)

// Inferencer propagates shapes through a whole graph. Implementations are
// best-effort: tensors they cannot derive are simply absent from the result.
// The seeds must not be modified.
type Inferencer interface {
	Infer(g *dag.Graph, seeds Table) (Table, error)
}

// Unify merges weight shapes, caller hints and inferred shapes into one table
// keyed by the names used in g. Hints override weight shapes; inferred shapes
// fill in the rest without overriding either source.
//
// An inference failure is logged and the seeds are returned unchanged; an
// incomplete table is never an error at this stage.
func Unify(ctx context.Context, g *dag.Graph, weights, hints Table, inf Inferencer, logger *log.Logger) Table {
	if logger == nil {
		logger = log.NewWithOptions(io.Discard, log.Options{})
	}

	seeds := make(Table, len(weights)+len(hints))
	seeds.Merge(weights)
	seeds.Merge(hints)
	if inf == nil || ctx.Err() != nil {
		return seeds
	}

	inferred, err := inf.Infer(g, seeds.Clone())
	if err != nil {
		logger.Warn("shape inference failed, continuing with seeds", "err", err)
		return seeds
	}

	out := seeds.Clone()
	added := 0
	for name, s := range inferred {
		if _, ok := out[name]; ok {
			continue
		}
		out[name] = s.Clone()
		added++
	}
	logger.Debug("unified shape hints", "seeds", len(seeds), "inferred", added)
	return out
}
