package io

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

const convDoc = `{
  "name": "block",
  "device": {"type": "cuda", "id": 1},
  "inputs": ["data"],
  "outputs": ["y"],
  "nodes": [
    {"type": "Conv", "inputs": ["data", "w"], "outputs": ["c"],
     "args": [{"name": "kernel", "i": 3}, {"name": "order", "s": "NCHW"}]},
    {"name": "act", "type": "Relu", "inputs": ["c"], "outputs": ["y"]}
  ]
}`

func TestReadGraph(t *testing.T) {
	g, err := ReadGraph(strings.NewReader(convDoc))
	if err != nil {
		t.Fatalf("ReadGraph() error = %v", err)
	}
	if g.Name != "block" || g.Device == nil || g.Device.ID != 1 {
		t.Errorf("graph header = %q %+v", g.Name, g.Device)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("len(Nodes) = %d, want 2", len(g.Nodes))
	}
	if got := g.Nodes[0].Int("kernel", 0); got != 3 {
		t.Errorf("kernel = %d, want 3", got)
	}
	if got := g.Nodes[0].Str("order", ""); got != "NCHW" {
		t.Errorf("order = %q", got)
	}
	if g.Nodes[1].Name != "act" {
		t.Errorf("Name = %q", g.Nodes[1].Name)
	}
	if err := g.Validate(nil); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestReadGraphErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		code errors.Code
	}{
		{"malformed", `{"nodes": [`, errors.ErrCodeInvalidInput},
		{"unknown field", `{"inputs": [], "outputs": [], "nodes": [], "edges": []}`, errors.ErrCodeInvalidInput},
		{"missing type", `{"inputs": ["a"], "outputs": ["b"], "nodes": [{"inputs": ["a"], "outputs": ["b"]}]}`, errors.ErrCodeInvalidGraph},
		{"empty tensor", `{"inputs": ["a"], "outputs": ["b"], "nodes": [{"type": "Relu", "inputs": [""], "outputs": ["b"]}]}`, errors.ErrCodeInvalidTensorName},
		{"padded input", `{"inputs": [" a"], "outputs": [], "nodes": []}`, errors.ErrCodeInvalidTensorName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadGraph(strings.NewReader(tt.doc))
			if !errors.Is(err, tt.code) {
				t.Errorf("ReadGraph() error = %v, want code %s", err, tt.code)
			}
		})
	}
}

func TestExportImportGraph(t *testing.T) {
	g := &dag.Graph{
		Name:    "copy",
		Inputs:  []string{"x"},
		Outputs: []string{"y"},
		Nodes: []dag.Node{
			{Type: "Transpose", Inputs: []string{"x"}, Outputs: []string{"y"},
				Args: []dag.Arg{dag.IntsArg("axes", []int64{1, 0})}},
		},
	}
	path := filepath.Join(t.TempDir(), "g.json")
	if err := ExportGraph(g, path); err != nil {
		t.Fatalf("ExportGraph() error = %v", err)
	}
	got, err := ImportGraph(path)
	if err != nil {
		t.Fatalf("ImportGraph() error = %v", err)
	}
	if ints := got.Nodes[0].Ints("axes"); len(ints) != 2 || ints[0] != 1 {
		t.Errorf("axes = %v", ints)
	}
}

func TestWriteGraphEmptyLists(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteGraph(&dag.Graph{}, &buf); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"inputs": []`) {
		t.Errorf("empty inputs not written as []:\n%s", buf.String())
	}
}

func TestImportMissingFile(t *testing.T) {
	_, err := ImportGraph(filepath.Join(t.TempDir(), "nope.json"))
	if !errors.Is(err, errors.ErrCodeFileNotFound) {
		t.Errorf("ImportGraph() error = %v, want FILE_NOT_FOUND", err)
	}
}

func TestWeights(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.json")
	in := map[string]store.Tensor{
		"w": store.NewFloat16([]int64{2}, []float32{0.5, -1}),
		"s": store.NewInt64([]int64{2}, []int64{4, -1}),
	}
	if err := ExportWeights(in, path); err != nil {
		t.Fatalf("ExportWeights() error = %v", err)
	}
	out, err := ImportWeights(path)
	if err != nil {
		t.Fatalf("ImportWeights() error = %v", err)
	}
	vals, err := out["w"].Float32s()
	if err != nil || len(vals) != 2 || vals[0] != 0.5 || vals[1] != -1 {
		t.Errorf("w = %v, %v", vals, err)
	}
	if out["w"].DType != shape.DTypeFloat16 {
		t.Errorf("w dtype = %s", out["w"].DType)
	}

	if _, err := ReadWeights(strings.NewReader(`{"tensors": [{"dtype": "float32"}]}`)); !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("ReadWeights() error = %v, want INVALID_INPUT", err)
	}
}

func TestReadHints(t *testing.T) {
	h, err := ReadHints(strings.NewReader(`{"data": {"dtype": "half", "dims": [1, 3]}}`))
	if err != nil {
		t.Fatalf("ReadHints() error = %v", err)
	}
	if !h["data"].Equal(shape.Of(shape.DTypeFloat16, 1, 3)) {
		t.Errorf("data = %s", h["data"])
	}

	for _, doc := range []string{
		`{"data": {"dtype": "complex64", "dims": [1]}}`,
		`{"data": {"dims": [1]}}`,
		`{"data": {"dtype": "float32", "dims": [-1]}}`,
		`{"data": {"dtype": "float32", "rank": 1}}`,
	} {
		if _, err := ReadHints(strings.NewReader(doc)); err == nil {
			t.Errorf("ReadHints(%s) succeeded", doc)
		}
	}

	h, err = ReadHints(strings.NewReader(`null`))
	if err != nil || h == nil {
		t.Errorf("ReadHints(null) = %v, %v", h, err)
	}
}

func TestHintsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hints.json")
	var buf bytes.Buffer
	if err := WriteHints(shape.Table{"x": shape.Of(shape.DTypeInt32, 5)}, &buf); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
	h, err := ImportHints(path)
	if err != nil {
		t.Fatal(err)
	}
	if h["x"].String() != shape.Of(shape.DTypeInt32, 5).String() {
		t.Errorf("x = %s", h["x"])
	}
}
