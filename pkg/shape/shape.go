// Package shape describes static tensor shapes and element types, and
// completes partial shape tables by whole-graph inference.
//
// A [Table] maps tensor names to [Shape] values. Tables are deliberately
// partial: a missing entry means "unknown". Components that merely consult
// shapes tolerate gaps; the subgraph substitution step requires a shape for
// every boundary tensor of a partition it converts.
//
// [Unify] builds the table used by a rewrite from three sources, in order
// of increasing priority:
//
//  1. shapes of the weights held by the runtime store
//  2. caller-supplied input hints
//  3. shapes derived by an [Inferencer] seeded with (1) and (2)
//
// Inference is best-effort. [RuleInferencer] ships rules for common
// operators and silently skips anything it cannot derive.
package shape

import (
	"fmt"
	"slices"
	"strings"
)

// DType is a tensor element type.
type DType int

// Element types. The zero value is DTypeUnknown.
const (
	DTypeUnknown DType = iota
	DTypeFloat32
	DTypeFloat16
	DTypeFloat64
	DTypeInt8
	DTypeUint8
	DTypeInt32
	DTypeInt64
	DTypeBool
)

var dtypeNames = map[DType]string{
	DTypeUnknown: "unknown",
	DTypeFloat32: "float32",
	DTypeFloat16: "float16",
	DTypeFloat64: "float64",
	DTypeInt8:    "int8",
	DTypeUint8:   "uint8",
	DTypeInt32:   "int32",
	DTypeInt64:   "int64",
	DTypeBool:    "bool",
}

// String returns the canonical lower-case name, e.g. "float32".
func (d DType) String() string {
	if s, ok := dtypeNames[d]; ok {
		return s
	}
	return fmt.Sprintf("dtype(%d)", int(d))
}

// ParseDType parses a type name. "float" and "half" are accepted as
// aliases for float32 and float16.
func ParseDType(s string) (DType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "float32", "float":
		return DTypeFloat32, nil
	case "float16", "half":
		return DTypeFloat16, nil
	case "float64", "double":
		return DTypeFloat64, nil
	case "int8":
		return DTypeInt8, nil
	case "uint8":
		return DTypeUint8, nil
	case "int32":
		return DTypeInt32, nil
	case "int64":
		return DTypeInt64, nil
	case "bool":
		return DTypeBool, nil
	}
	return DTypeUnknown, fmt.Errorf("unknown dtype %q", s)
}

// Size returns the element size in bytes, or 0 for DTypeUnknown.
func (d DType) Size() int {
	switch d {
	case DTypeFloat32, DTypeInt32:
		return 4
	case DTypeFloat16:
		return 2
	case DTypeFloat64, DTypeInt64:
		return 8
	case DTypeInt8, DTypeUint8, DTypeBool:
		return 1
	}
	return 0
}

// ONNX returns the ONNX TensorProto.DataType code.
func (d DType) ONNX() int32 {
	switch d {
	case DTypeFloat32:
		return 1
	case DTypeUint8:
		return 2
	case DTypeInt8:
		return 3
	case DTypeInt32:
		return 6
	case DTypeInt64:
		return 7
	case DTypeBool:
		return 9
	case DTypeFloat16:
		return 10
	case DTypeFloat64:
		return 11
	}
	return 0
}

// MarshalText implements encoding.TextMarshaler.
func (d DType) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *DType) UnmarshalText(b []byte) error {
	v, err := ParseDType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Shape is a static shape with an element type. Dims are ordered outermost
// first; a scalar has no dims.
type Shape struct {
	DType DType   `json:"dtype"`
	Dims  []int64 `json:"dims"`
}

// Of is shorthand for a Shape literal.
func Of(dt DType, dims ...int64) Shape { return Shape{DType: dt, Dims: dims} }

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s.Dims) }

// Elements returns the number of elements. A scalar has one element.
func (s Shape) Elements() int64 {
	n := int64(1)
	for _, d := range s.Dims {
		n *= d
	}
	return n
}

// Equal reports whether s and o have the same type and dims.
func (s Shape) Equal(o Shape) bool {
	return s.DType == o.DType && slices.Equal(s.Dims, o.Dims)
}

// String formats the shape as "float32[1,3,224,224]".
func (s Shape) String() string {
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = fmt.Sprint(d)
	}
	return s.DType.String() + "[" + strings.Join(parts, ",") + "]"
}

// Clone returns a copy that shares no memory with s.
func (s Shape) Clone() Shape { return Shape{DType: s.DType, Dims: slices.Clone(s.Dims)} }

// Table maps tensor names to shapes. A missing entry means unknown.
type Table map[string]Shape

// Clone returns a deep copy of t. A nil table clones to an empty table.
func (t Table) Clone() Table {
	c := make(Table, len(t))
	for k, v := range t {
		c[k] = v.Clone()
	}
	return c
}

// Merge copies every entry of o into t, overriding existing entries.
func (t Table) Merge(o Table) {
	for k, v := range o {
		t[k] = v.Clone()
	}
}

// Missing returns the names that have no entry in t, in input order.
func (t Table) Missing(names []string) []string {
	var missing []string
	for _, n := range names {
		if _, ok := t[n]; !ok {
			missing = append(missing, n)
		}
	}
	return missing
}

// Lookup returns a pointer to the shape of name, or nil when unknown.
func (t Table) Lookup(name string) *Shape {
	if s, ok := t[name]; ok {
		return &s
	}
	return nil
}
