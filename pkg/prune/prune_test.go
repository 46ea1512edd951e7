package prune

import (
	"context"
	stderrors "errors"
	"slices"
	"testing"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/ssa"
	"github.com/matzehuels/netcut/pkg/store"
)

// final is a rewritten graph: an engine that baked in conv_w, followed by a
// kept FC that still reads fc_w and fc_b.
func final() *dag.Graph {
	return &dag.Graph{
		Inputs:  []string{"data"},
		Outputs: []string{"out"},
		Nodes: []dag.Node{
			{Type: "TensorRT", Inputs: []string{"data"}, Outputs: []string{"x"}},
			{Type: "FC", Inputs: []string{"x", "fc_w", "fc_b"}, Outputs: []string{"out"}},
		},
	}
}

func TestReferenced(t *testing.T) {
	refs := Referenced(final())
	for _, name := range []string{"data", "x", "fc_w", "fc_b"} {
		if !refs[name] {
			t.Errorf("%s not referenced", name)
		}
	}
	if refs["out"] {
		t.Error("outputs are not references")
	}
}

func TestNewPlan(t *testing.T) {
	tests := []struct {
		name    string
		graph   *dag.Graph
		mapping ssa.Mapping
		delete  []string
		keep    []string
		code    errors.Code
	}{
		{
			name:    "baked weight is deleted",
			graph:   final(),
			mapping: ssa.Mapping{"conv_w": "conv_w", "fc_w": "fc_w", "fc_b": "fc_b"},
			delete:  []string{"conv_w"},
			keep:    []string{"fc_b", "fc_w"},
		},
		{
			name:    "renamed weight deletes original",
			graph:   final(),
			mapping: ssa.Mapping{"conv_w_1": "conv_w", "fc_w": "fc_w", "fc_b": "fc_b"},
			delete:  []string{"conv_w"},
			keep:    []string{"fc_b", "fc_w"},
		},
		{
			name:    "nothing to prune",
			graph:   final(),
			mapping: ssa.Mapping{"fc_w": "fc_w"},
			keep:    []string{"fc_w"},
		},
		{
			name:    "empty graph",
			graph:   &dag.Graph{},
			mapping: ssa.Mapping{},
		},
		{
			name:    "shared original still read under another name",
			graph:   final(),
			mapping: ssa.Mapping{"fc_w": "w", "w_1": "w"},
			code:    errors.ErrCodePruneInconsistent,
		},
		{
			name: "original still read as a weight",
			graph: &dag.Graph{
				Inputs:  []string{"data"},
				Outputs: []string{"out"},
				Nodes: []dag.Node{
					{Type: "FC", Inputs: []string{"data", "W"}, Outputs: []string{"out"}},
				},
			},
			mapping: ssa.Mapping{"W_1": "W"},
			code:    errors.ErrCodePruneInconsistent,
		},
		{
			name: "original reused as an activation",
			graph: &dag.Graph{
				Inputs:  []string{"data"},
				Outputs: []string{"W"},
				Nodes: []dag.Node{
					{Type: "TensorRT", Inputs: []string{"data"}, Outputs: []string{"W"}},
					{Type: "Relu", Inputs: []string{"W"}, Outputs: []string{"y"}},
				},
			},
			mapping: ssa.Mapping{"W_1": "W"},
			delete:  []string{"W"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPlan(tt.graph, tt.mapping)
			if tt.code != "" {
				if !errors.Is(err, tt.code) {
					t.Fatalf("NewPlan() error = %v, want %s", err, tt.code)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewPlan() error = %v", err)
			}
			if !slices.Equal(p.Delete, tt.delete) {
				t.Errorf("Delete = %v, want %v", p.Delete, tt.delete)
			}
			if !slices.Equal(p.Keep, tt.keep) {
				t.Errorf("Keep = %v, want %v", p.Keep, tt.keep)
			}
		})
	}
}

// A pruned name is never one a surviving node reads.
func TestPlanNeverDeletesReferenced(t *testing.T) {
	g := final()
	mapping := ssa.Mapping{"conv_w": "conv_w", "fc_w": "fc_w", "fc_b": "fc_b", "bn_s": "bn_s"}
	p, err := NewPlan(g, mapping)
	if err != nil {
		t.Fatal(err)
	}
	refs := Referenced(g)
	for _, name := range p.Delete {
		if refs[name] {
			t.Errorf("plan deletes referenced %s", name)
		}
	}
}

// deleteOnly hides MemoryStore's DeleteAll so Apply falls back to Delete.
// failAt makes the n-th delete fail.
type deleteOnly struct {
	store.Store
	mem     *store.MemoryStore
	deleted []string
	failAt  int
}

func newDeleteOnly(tensors map[string]store.Tensor) *deleteOnly {
	m := store.NewMemoryStore(tensors)
	return &deleteOnly{Store: m, mem: m}
}

func (d *deleteOnly) Delete(ctx context.Context, name string) error {
	d.deleted = append(d.deleted, name)
	if len(d.deleted) == d.failAt {
		return stderrors.New("disk full")
	}
	return d.mem.Delete(ctx, name)
}

func (d *deleteOnly) Put(_ context.Context, name string, t store.Tensor) error {
	d.mem.Put(name, t)
	return nil
}

// noWrites can neither batch delete nor put tensors back.
type noWrites struct{ store.Store }

func TestApply(t *testing.T) {
	ctx := context.Background()
	tensors := map[string]store.Tensor{
		"conv_w": store.NewFloat32([]int64{1}, []float32{1}),
		"fc_w":   store.NewFloat32([]int64{1}, []float32{2}),
	}
	p := &Plan{Delete: []string{"conv_w", "absent"}}

	t.Run("batch", func(t *testing.T) {
		s := store.NewMemoryStore(tensors)
		if err := p.Apply(ctx, s); err != nil {
			t.Fatal(err)
		}
		names, _ := s.Names(ctx)
		if !slices.Equal(names, []string{"fc_w"}) {
			t.Errorf("Names() = %v", names)
		}
	})

	t.Run("per name", func(t *testing.T) {
		s := newDeleteOnly(tensors)
		if err := p.Apply(ctx, s); err != nil {
			t.Fatal(err)
		}
		if !slices.Equal(s.deleted, []string{"conv_w", "absent"}) {
			t.Errorf("deleted = %v", s.deleted)
		}
	})

	t.Run("per name failure restores", func(t *testing.T) {
		s := newDeleteOnly(tensors)
		s.failAt = 2
		both := &Plan{Delete: []string{"conv_w", "fc_w"}}
		if err := both.Apply(ctx, s); err == nil {
			t.Fatal("expected error")
		}
		names, _ := s.mem.Names(ctx)
		if !slices.Equal(names, []string{"conv_w", "fc_w"}) {
			t.Errorf("Names() = %v, want both weights back", names)
		}
	})

	t.Run("no writes", func(t *testing.T) {
		m := store.NewMemoryStore(tensors)
		err := p.Apply(ctx, noWrites{m})
		if !errors.Is(err, errors.ErrCodeUnsupported) {
			t.Errorf("Apply() = %v, want UNSUPPORTED", err)
		}
		if m.Len() != 2 {
			t.Errorf("Len() = %d, store was modified", m.Len())
		}
	})

	t.Run("empty plan", func(t *testing.T) {
		if err := (&Plan{}).Apply(ctx, nil); err != nil {
			t.Errorf("empty plan touched the store: %v", err)
		}
	})
}
