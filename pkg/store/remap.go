package store

import (
	"context"
	"errors"

	"github.com/matzehuels/netcut/pkg/shape"
)

// ErrReadOnly is returned by Delete on a [Remap] view.
var ErrReadOnly = errors.New("store view is read-only")

// remapped is a read-only view of a store under renamed tensor names.
type remapped struct {
	base    Store
	forward map[string]string // new -> original
	hidden  map[string]bool   // originals renamed away
}

// Remap returns a read-only view of s in which each key of mapping (a new
// name) resolves to its value (an original name). Originals that were
// renamed to a different name are hidden, so a renamed graph never sees a
// weight under a stale name. Every other name passes through unchanged.
//
// Rewrites hand this view to shape seeding and to converters, so they can
// resolve weights by the names used in the renamed graph.
func Remap(s Store, mapping map[string]string) Store {
	r := &remapped{
		base:    s,
		forward: make(map[string]string, len(mapping)),
		hidden:  make(map[string]bool),
	}
	for newName, orig := range mapping {
		r.forward[newName] = orig
		if newName != orig {
			r.hidden[orig] = true
		}
	}
	// An original that is also some entry's new name stays visible.
	for newName := range mapping {
		delete(r.hidden, newName)
	}
	return r
}

func (r *remapped) resolve(name string) (string, bool) {
	if orig, ok := r.forward[name]; ok {
		return orig, true
	}
	if r.hidden[name] {
		return "", false
	}
	return name, true
}

func (r *remapped) Names(ctx context.Context) ([]string, error) {
	base, err := r.base.Names(ctx)
	if err != nil {
		return nil, err
	}
	held := make(map[string]bool, len(base))
	for _, n := range base {
		held[n] = true
	}

	var out []string
	for _, n := range base {
		if _, renamed := r.forward[n]; renamed {
			continue
		}
		if !r.hidden[n] {
			out = append(out, n)
		}
	}
	for newName, orig := range r.forward {
		if held[orig] {
			out = append(out, newName)
		}
	}
	return out, nil
}

func (r *remapped) Get(ctx context.Context, name string) (Tensor, bool, error) {
	orig, ok := r.resolve(name)
	if !ok {
		return Tensor{}, false, nil
	}
	return r.base.Get(ctx, orig)
}

func (r *remapped) Info(ctx context.Context, name string) (shape.Shape, bool, error) {
	orig, ok := r.resolve(name)
	if !ok {
		return shape.Shape{}, false, nil
	}
	return r.base.Info(ctx, orig)
}

func (r *remapped) Delete(context.Context, string) error {
	return ErrReadOnly
}
