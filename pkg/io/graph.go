package io

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
)

type graph struct {
	Name    string      `json:"name,omitempty"`
	Device  *dag.Device `json:"device,omitempty"`
	Inputs  []string    `json:"inputs"`
	Outputs []string    `json:"outputs"`
	Nodes   []node      `json:"nodes"`
}

type node struct {
	Name    string      `json:"name,omitempty"`
	Type    string      `json:"type"`
	Inputs  []string    `json:"inputs"`
	Outputs []string    `json:"outputs"`
	Args    []dag.Arg   `json:"args,omitempty"`
	Device  *dag.Device `json:"device,omitempty"`
}

// ReadGraph decodes a graph document from r.
//
// Operator types and tensor names are checked for syntax only; structural
// checks (dangling reads, overwritten inputs) are left to
// [dag.Graph.Validate], which needs to know the weights. Unknown fields are
// rejected so a misspelled key does not silently drop data.
//
// ReadGraph does not close r.
func ReadGraph(r io.Reader) (*dag.Graph, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var data graph
	if err := dec.Decode(&data); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode graph")
	}

	for _, names := range [][]string{data.Inputs, data.Outputs} {
		for _, name := range names {
			if err := errors.ValidateTensorName(name); err != nil {
				return nil, err
			}
		}
	}

	g := &dag.Graph{
		Name:    data.Name,
		Device:  data.Device,
		Inputs:  data.Inputs,
		Outputs: data.Outputs,
		Nodes:   make([]dag.Node, len(data.Nodes)),
	}
	for i, n := range data.Nodes {
		if err := errors.ValidateOpType(n.Type); err != nil {
			return nil, fmt.Errorf("node %d: %w", i, err)
		}
		for _, name := range append(append([]string(nil), n.Inputs...), n.Outputs...) {
			if err := errors.ValidateTensorName(name); err != nil {
				return nil, fmt.Errorf("node %d (%s): %w", i, n.Type, err)
			}
		}
		g.Nodes[i] = dag.Node{
			Name:    n.Name,
			Type:    n.Type,
			Inputs:  n.Inputs,
			Outputs: n.Outputs,
			Args:    n.Args,
			Device:  n.Device,
		}
	}
	return g, nil
}

// WriteGraph encodes g as an indented graph document.
func WriteGraph(g *dag.Graph, w io.Writer) error {
	out := graph{
		Name:    g.Name,
		Device:  g.Device,
		Inputs:  nonNil(g.Inputs),
		Outputs: nonNil(g.Outputs),
		Nodes:   make([]node, len(g.Nodes)),
	}
	for i, n := range g.Nodes {
		out.Nodes[i] = node{
			Name:    n.Name,
			Type:    n.Type,
			Inputs:  nonNil(n.Inputs),
			Outputs: nonNil(n.Outputs),
			Args:    n.Args,
			Device:  n.Device,
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ImportGraph reads the graph document at path.
func ImportGraph(path string) (*dag.Graph, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := ReadGraph(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// ExportGraph writes g to a graph document at path.
func ExportGraph(g *dag.Graph, path string) error {
	return create(path, func(w io.Writer) error { return WriteGraph(g, w) })
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// create writes a new file at path, making parent directories as needed.
func create(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// nonNil keeps empty name lists as [] in the document.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
