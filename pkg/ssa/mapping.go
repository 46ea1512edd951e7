package ssa

import (
	"context"
	"maps"
	"slices"

	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// Mapping maps a weight candidate's name in the renamed graph to its name in
// the weight store (new -> original). Identity entries are included.
type Mapping map[string]string

// Reverse returns the original -> new mapping.
func (m Mapping) Reverse() map[string]string {
	r := make(map[string]string, len(m))
	for newName, orig := range m {
		r[orig] = newName
	}
	return r
}

// Renamed returns the entries whose new name differs from the original,
// sorted by new name.
func (m Mapping) Renamed() []string {
	var out []string
	for _, newName := range slices.Sorted(maps.Keys(m)) {
		if m[newName] != newName {
			out = append(out, newName)
		}
	}
	return out
}

// Weights restricts m to the entries whose original name is held by s.
// Names declared as external inputs are never weights and are dropped even
// if the store happens to hold a tensor of that name.
func (m Mapping) Weights(ctx context.Context, s store.Store, externalInputs []string) (Mapping, error) {
	out := make(Mapping, len(m))
	for newName, orig := range m {
		if slices.Contains(externalInputs, newName) {
			continue
		}
		_, ok, err := s.Info(ctx, orig)
		if err != nil {
			return nil, err
		}
		if ok {
			out[newName] = orig
		}
	}
	return out, nil
}

// RemapHints reattaches caller hints, keyed by original names, to the names
// used in the renamed graph. reverse is [Mapping.Reverse]. A hint whose name
// was renamed moves to the new name; every other hint stays where it is.
func RemapHints(hints shape.Table, reverse map[string]string) shape.Table {
	out := make(shape.Table, len(hints))
	for name, s := range hints {
		if newName, ok := reverse[name]; ok {
			name = newName
		}
		out[name] = s.Clone()
	}
	return out
}
