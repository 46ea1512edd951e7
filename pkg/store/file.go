package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/matzehuels/netcut/pkg/shape"
)

// weightsDoc is the on-disk weights document:
//
//	{
//	  "tensors": [
//	    {"name": "fc_w", "dtype": "float32", "dims": [2, 2], "values": [1, 0, 0, 1]},
//	    {"name": "shape", "dtype": "int64", "dims": [2], "data": "AQAAAAAAAAA..."}
//	  ]
//	}
//
// Each tensor carries either "values" (decimal numbers) or "data" (base64
// little-endian bytes).
type weightsDoc struct {
	Tensors []tensorDoc `json:"tensors"`
}

type tensorDoc struct {
	Name   string        `json:"name"`
	DType  shape.DType   `json:"dtype"`
	Dims   []int64       `json:"dims"`
	Values []json.Number `json:"values,omitempty"`
	Data   []byte        `json:"data,omitempty"`
}

// DecodeWeights reads a weights document from r.
func DecodeWeights(r io.Reader) (map[string]Tensor, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc weightsDoc
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode weights: %w", err)
	}

	out := make(map[string]Tensor, len(doc.Tensors))
	for _, td := range doc.Tensors {
		if td.Name == "" {
			return nil, fmt.Errorf("decode weights: tensor without name")
		}
		if _, dup := out[td.Name]; dup {
			return nil, fmt.Errorf("decode weights: duplicate tensor %q", td.Name)
		}
		t, err := td.tensor()
		if err != nil {
			return nil, fmt.Errorf("tensor %s: %w", td.Name, err)
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("tensor %s: %w", td.Name, err)
		}
		out[td.Name] = t
	}
	return out, nil
}

func (td tensorDoc) tensor() (Tensor, error) {
	if td.Data != nil || td.Values == nil {
		return Tensor{DType: td.DType, Dims: td.Dims, Data: td.Data}, nil
	}

	switch td.DType {
	case shape.DTypeFloat32, shape.DTypeFloat16, shape.DTypeFloat64:
		vals := make([]float32, len(td.Values))
		for i, v := range td.Values {
			f, err := strconv.ParseFloat(v.String(), 64)
			if err != nil {
				return Tensor{}, err
			}
			vals[i] = float32(f)
		}
		switch td.DType {
		case shape.DTypeFloat16:
			return NewFloat16(td.Dims, vals), nil
		case shape.DTypeFloat64:
			return newFloat64(td.Dims, td.Values)
		}
		return NewFloat32(td.Dims, vals), nil
	case shape.DTypeInt64, shape.DTypeInt32, shape.DTypeInt8, shape.DTypeUint8, shape.DTypeBool:
		vals := make([]int64, len(td.Values))
		for i, v := range td.Values {
			n, err := v.Int64()
			if err != nil {
				return Tensor{}, err
			}
			vals[i] = n
		}
		return packInts(td.DType, td.Dims, vals), nil
	}
	return Tensor{}, fmt.Errorf("unsupported dtype %s", td.DType)
}

func newFloat64(dims []int64, values []json.Number) (Tensor, error) {
	t := Tensor{DType: shape.DTypeFloat64, Dims: dims, Data: make([]byte, 8*len(values))}
	for i, v := range values {
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return Tensor{}, err
		}
		putFloat64(t.Data[8*i:], f)
	}
	return t, nil
}

func packInts(dt shape.DType, dims []int64, vals []int64) Tensor {
	switch dt {
	case shape.DTypeInt64:
		return NewInt64(dims, vals)
	case shape.DTypeInt32:
		v32 := make([]int32, len(vals))
		for i, v := range vals {
			v32[i] = int32(v)
		}
		return NewInt32(dims, v32)
	}
	data := make([]byte, len(vals))
	for i, v := range vals {
		data[i] = byte(v)
	}
	return Tensor{DType: dt, Dims: dims, Data: data}
}

// EncodeWeights writes tensors as a weights document, sorted by name, using
// decimal values so the file stays reviewable.
func EncodeWeights(w io.Writer, tensors map[string]Tensor) error {
	doc := weightsDoc{Tensors: make([]tensorDoc, 0, len(tensors))}
	for _, name := range sortedKeys(tensors) {
		t := tensors[name]
		td := tensorDoc{Name: name, DType: t.DType, Dims: t.Dims}
		switch t.DType {
		case shape.DTypeFloat32, shape.DTypeFloat16:
			vals, _ := t.Float32s()
			td.Values = make([]json.Number, len(vals))
			for i, v := range vals {
				td.Values[i] = json.Number(strconv.FormatFloat(float64(v), 'g', -1, 32))
			}
		case shape.DTypeInt64, shape.DTypeInt32, shape.DTypeInt8, shape.DTypeUint8, shape.DTypeBool:
			vals, _ := t.Int64s()
			td.Values = make([]json.Number, len(vals))
			for i, v := range vals {
				td.Values[i] = json.Number(strconv.FormatInt(v, 10))
			}
		default:
			td.Data = t.Data
		}
		doc.Tensors = append(doc.Tensors, td)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// FileStore is a [MemoryStore] backed by a weights document on disk.
// Changes stay in memory until [FileStore.Save].
type FileStore struct {
	*MemoryStore
	path string
}

// OpenFileStore loads the weights document at path. A missing file yields
// an empty store that Save will create.
func OpenFileStore(path string) (*FileStore, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return &FileStore{MemoryStore: NewMemoryStore(nil), path: path}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tensors, err := DecodeWeights(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &FileStore{MemoryStore: NewMemoryStore(tensors), path: path}, nil
}

// Path returns the document path.
func (f *FileStore) Path() string { return f.path }

// Save writes the current contents back to the document path.
func (f *FileStore) Save() error { return f.SaveAs(f.path) }

// SaveAs writes the current contents to path. The file is written to a
// temporary sibling first and renamed into place.
func (f *FileStore) SaveAs(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".weights-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := EncodeWeights(tmp, f.Snapshot()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// Ensure FileStore implements Store and BatchDeleter.
var (
	_ Store        = (*FileStore)(nil)
	_ BatchDeleter = (*FileStore)(nil)
)
