package io

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// ReadWeights decodes a weights document from r.
func ReadWeights(r io.Reader) (map[string]store.Tensor, error) {
	tensors, err := store.DecodeWeights(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "read weights")
	}
	for name := range tensors {
		if err := errors.ValidateTensorName(name); err != nil {
			return nil, err
		}
	}
	return tensors, nil
}

// WriteWeights encodes tensors as a weights document sorted by name.
func WriteWeights(tensors map[string]store.Tensor, w io.Writer) error {
	if err := store.EncodeWeights(w, tensors); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ImportWeights reads the weights document at path.
func ImportWeights(path string) (map[string]store.Tensor, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	t, err := ReadWeights(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// ExportWeights writes tensors to a weights document at path.
func ExportWeights(tensors map[string]store.Tensor, path string) error {
	return create(path, func(w io.Writer) error { return WriteWeights(tensors, w) })
}

// ReadHints decodes a hints document from r. Every hint needs a known
// element type.
func ReadHints(r io.Reader) (shape.Table, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	var hints shape.Table
	if err := dec.Decode(&hints); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode hints")
	}
	for _, name := range slices.Sorted(maps.Keys(hints)) {
		if err := errors.ValidateTensorName(name); err != nil {
			return nil, err
		}
		if hints[name].DType == shape.DTypeUnknown {
			return nil, errors.New(errors.ErrCodeInvalidInput, "hint %q: missing dtype", name)
		}
		for _, d := range hints[name].Dims {
			if d < 0 {
				return nil, errors.New(errors.ErrCodeInvalidInput, "hint %q: negative dimension %d", name, d)
			}
		}
	}
	if hints == nil {
		hints = shape.Table{}
	}
	return hints, nil
}

// WriteHints encodes hints as an indented hints document.
func WriteHints(hints shape.Table, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(hints); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// ImportHints reads the hints document at path.
func ImportHints(path string) (shape.Table, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	h, err := ReadHints(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return h, nil
}
