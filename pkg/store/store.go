// Package store defines the runtime weight store that a rewrite reads weight
// values and shapes from, and prunes after conversion.
//
// The store is owned by the caller and outlives every rewrite. netcut only
// borrows it: it lists names, reads shapes and values during a rewrite, and
// deletes the weights that no surviving node references once the rewrite is
// committed. It never holds on to stored values after a rewrite returns.
//
// # Implementations
//
//   - [MemoryStore]: in-process map, the default for library use and tests
//   - [FileStore]: a JSON weights document loaded into memory, saved back
//     after pruning (used by the CLI)
//   - [MongoStore]: one document per tensor in a MongoDB collection
//
// # Concurrency
//
// All implementations are safe for concurrent use, but a rewrite assumes
// exclusive access to its store from start to commit. Callers serialize
// rewrites that share a store.
package store

import (
	"context"
	"slices"

	"github.com/matzehuels/netcut/pkg/shape"
)

// Store holds weight and constant tensors by name.
type Store interface {
	// Names lists every tensor currently held, in no particular order.
	Names(ctx context.Context) ([]string, error)

	// Get returns the value of name. A missing name is not an error.
	Get(ctx context.Context, name string) (Tensor, bool, error)

	// Info returns the shape of name without necessarily loading its data.
	Info(ctx context.Context, name string) (shape.Shape, bool, error)

	// Delete removes name. Deleting an absent name succeeds.
	Delete(ctx context.Context, name string) error
}

// BatchDeleter is implemented by stores that can delete many names in one
// round trip. Pruning prefers it when available.
type BatchDeleter interface {
	DeleteAll(ctx context.Context, names []string) error
}

// Writer is implemented by stores that accept new tensors. Pruning uses it
// to put back weights when a per-name delete fails partway.
type Writer interface {
	Put(ctx context.Context, name string, t Tensor) error
}

// ShapesOf returns the shape of every tensor currently held by s.
func ShapesOf(ctx context.Context, s Store) (shape.Table, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	out := make(shape.Table, len(names))
	for _, name := range names {
		sh, ok, err := s.Info(ctx, name)
		if err != nil {
			return nil, err
		}
		if ok {
			out[name] = sh
		}
	}
	return out, nil
}

// Has reports whether s holds name. Lookup errors count as absent.
func Has(ctx context.Context, s Store, name string) bool {
	_, ok, err := s.Info(ctx, name)
	return err == nil && ok
}

// Sorted returns the names held by s in lexical order.
func Sorted(ctx context.Context, s Store) ([]string, error) {
	names, err := s.Names(ctx)
	if err != nil {
		return nil, err
	}
	slices.Sort(names)
	return names, nil
}
