package store

import (
	"encoding/binary"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/x448/float16"

	"github.com/matzehuels/netcut/pkg/shape"
)

// Tensor is a concrete tensor value: an element type, dims and the raw
// little-endian element bytes.
type Tensor struct {
	DType shape.DType `json:"dtype" bson:"dtype"`
	Dims  []int64     `json:"dims" bson:"dims"`
	Data  []byte      `json:"data" bson:"data"`
}

// Shape returns the static shape of t.
func (t Tensor) Shape() shape.Shape {
	return shape.Shape{DType: t.DType, Dims: slices.Clone(t.Dims)}
}

// Validate checks that the byte length matches dims and element size.
func (t Tensor) Validate() error {
	size := t.DType.Size()
	if size == 0 {
		return fmt.Errorf("unsupported dtype %s", t.DType)
	}
	for _, d := range t.Dims {
		if d < 0 {
			return fmt.Errorf("negative dimension in %v", t.Dims)
		}
	}
	if want := t.Shape().Elements() * int64(size); int64(len(t.Data)) != want {
		return fmt.Errorf("%s: have %d bytes, want %d", t.Shape(), len(t.Data), want)
	}
	return nil
}

// Clone returns a deep copy of t.
func (t Tensor) Clone() Tensor {
	return Tensor{DType: t.DType, Dims: slices.Clone(t.Dims), Data: slices.Clone(t.Data)}
}

// NewFloat32 builds a float32 tensor.
func NewFloat32(dims []int64, values []float32) Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(v))
	}
	return Tensor{DType: shape.DTypeFloat32, Dims: slices.Clone(dims), Data: data}
}

// NewFloat16 builds a float16 tensor, rounding each value to nearest even.
func NewFloat16(dims []int64, values []float32) Tensor {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint16(data[2*i:], float16.Fromfloat32(v).Bits())
	}
	return Tensor{DType: shape.DTypeFloat16, Dims: slices.Clone(dims), Data: data}
}

// NewInt64 builds an int64 tensor.
func NewInt64(dims []int64, values []int64) Tensor {
	data := make([]byte, 8*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint64(data[8*i:], uint64(v))
	}
	return Tensor{DType: shape.DTypeInt64, Dims: slices.Clone(dims), Data: data}
}

// NewInt32 builds an int32 tensor.
func NewInt32(dims []int64, values []int32) Tensor {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(data[4*i:], uint32(v))
	}
	return Tensor{DType: shape.DTypeInt32, Dims: slices.Clone(dims), Data: data}
}

// Float32s decodes float32, float16 and float64 tensors as float32 values.
func (t Tensor) Float32s() ([]float32, error) {
	switch t.DType {
	case shape.DTypeFloat32:
		out := make([]float32, len(t.Data)/4)
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(t.Data[4*i:]))
		}
		return out, nil
	case shape.DTypeFloat16:
		out := make([]float32, len(t.Data)/2)
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(t.Data[2*i:])).Float32()
		}
		return out, nil
	case shape.DTypeFloat64:
		out := make([]float32, len(t.Data)/8)
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(t.Data[8*i:])))
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot read %s as float32", t.DType)
}

// Int64s decodes integer and bool tensors as int64 values.
func (t Tensor) Int64s() ([]int64, error) {
	switch t.DType {
	case shape.DTypeInt64:
		out := make([]int64, len(t.Data)/8)
		for i := range out {
			out[i] = int64(binary.LittleEndian.Uint64(t.Data[8*i:]))
		}
		return out, nil
	case shape.DTypeInt32:
		out := make([]int64, len(t.Data)/4)
		for i := range out {
			out[i] = int64(int32(binary.LittleEndian.Uint32(t.Data[4*i:])))
		}
		return out, nil
	case shape.DTypeInt8:
		out := make([]int64, len(t.Data))
		for i, b := range t.Data {
			out[i] = int64(int8(b))
		}
		return out, nil
	case shape.DTypeUint8, shape.DTypeBool:
		out := make([]int64, len(t.Data))
		for i, b := range t.Data {
			out[i] = int64(b)
		}
		return out, nil
	}
	return nil, fmt.Errorf("cannot read %s as int64", t.DType)
}

func putFloat64(b []byte, v float64) {
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
}

func sortedKeys(m map[string]Tensor) []string {
	return slices.Sorted(maps.Keys(m))
}
