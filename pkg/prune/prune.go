// Package prune removes weights that a rewrite made unreachable.
//
// After substitution, weights baked into converted nodes are no longer read
// by any node of the final graph. [NewPlan] finds them by comparing the
// final graph's node inputs against the SSA weight mapping, and
// [Plan.Apply] deletes their original names from the weight store.
//
// A name read by a surviving node is never deleted. When the mapping and
// the final graph disagree about a weight (two new names share one original
// and only one of them is still read, or the original name is still read
// as a weight) the plan fails with [errors.ErrCodePruneInconsistent]: such
// a state means the partition boundaries were computed incorrectly.
package prune

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/ssa"
	"github.com/matzehuels/netcut/pkg/store"
)

// Referenced returns the set of tensors read by some node of g.
func Referenced(g *dag.Graph) map[string]bool {
	refs := make(map[string]bool)
	for _, n := range g.Nodes {
		for _, in := range n.Inputs {
			refs[in] = true
		}
	}
	return refs
}

// Plan lists the store names a prune deletes and keeps.
type Plan struct {
	Delete []string // Original names to delete, sorted
	Keep   []string // Original names still referenced, sorted
}

// NewPlan computes which weights of mapping the final graph no longer reads.
// mapping must be the weight mapping of the SSA pass that produced the
// graph final was rewritten from.
func NewPlan(final *dag.Graph, mapping ssa.Mapping) (*Plan, error) {
	refs := Referenced(final)
	produced := final.Producers()

	// An original is live if any of its new names is still read.
	live := make(map[string]string)
	for newName, orig := range mapping {
		if refs[newName] {
			live[orig] = newName
		}
	}

	p := &Plan{}
	for newName, orig := range mapping {
		if refs[newName] {
			continue
		}
		if other, ok := live[orig]; ok {
			return nil, errors.New(errors.ErrCodePruneInconsistent,
				"weight %q is unreferenced as %q but still read as %q", orig, newName, other)
		}
		_, isProduced := produced[orig]
		if refs[orig] && !isProduced && !final.IsInput(orig) {
			return nil, errors.New(errors.ErrCodePruneInconsistent,
				"weight %q is scheduled for deletion but still read by the final graph", orig)
		}
		p.Delete = append(p.Delete, orig)
	}
	for orig := range live {
		p.Keep = append(p.Keep, orig)
	}
	slices.Sort(p.Delete)
	p.Delete = slices.Compact(p.Delete)
	slices.Sort(p.Keep)
	return p, nil
}

// Empty reports whether p deletes nothing.
func (p *Plan) Empty() bool { return len(p.Delete) == 0 }

// Apply deletes the planned names from s, in one batch when s implements
// [store.BatchDeleter]. Otherwise names are deleted one at a time and s must
// implement [store.Writer]: the planned tensors are read up front and put
// back if a delete fails, so s is left as it was. A store that supports
// neither is refused before anything is deleted.
func (p *Plan) Apply(ctx context.Context, s store.Store) error {
	if p.Empty() {
		return nil
	}
	if bd, ok := s.(store.BatchDeleter); ok {
		if err := bd.DeleteAll(ctx, p.Delete); err != nil {
			return fmt.Errorf("prune %d weights: %w", len(p.Delete), err)
		}
		return nil
	}

	w, ok := s.(store.Writer)
	if !ok {
		return errors.New(errors.ErrCodeUnsupported, "store supports neither batch deletes nor writes, cannot prune %d weights atomically", len(p.Delete))
	}
	saved := make(map[string]store.Tensor, len(p.Delete))
	for _, name := range p.Delete {
		t, ok, err := s.Get(ctx, name)
		if err != nil {
			return fmt.Errorf("read %s before prune: %w", name, err)
		}
		if ok {
			saved[name] = t
		}
	}

	for i, name := range p.Delete {
		err := ctx.Err()
		if err == nil {
			if err = s.Delete(ctx, name); err != nil {
				err = fmt.Errorf("prune %s: %w", name, err)
			}
		}
		if err != nil {
			// The failing name may be half deleted, so it is restored too.
			return stderrors.Join(err, restore(context.WithoutCancel(ctx), w, p.Delete[:i+1], saved))
		}
	}
	return nil
}

func restore(ctx context.Context, w store.Writer, names []string, saved map[string]store.Tensor) error {
	var errs []error
	for _, name := range names {
		t, ok := saved[name]
		if !ok {
			continue
		}
		if err := w.Put(ctx, name, t); err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", name, err))
		}
	}
	return stderrors.Join(errs...)
}
