package onnx

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/errors"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// field is one decoded wire field.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	v     uint64
	bytes []byte
}

func decode(t *testing.T, b []byte) []field {
	t.Helper()
	var out []field
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		require.GreaterOrEqual(t, n, 0, "bad tag")
		b = b[n:]
		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.v, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			var v uint32
			v, n = protowire.ConsumeFixed32(b)
			f.v = uint64(v)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			t.Fatalf("unexpected wire type %d", typ)
		}
		require.GreaterOrEqual(t, n, 0, "bad value for field %d", num)
		b = b[n:]
		out = append(out, f)
	}
	return out
}

func pick(fs []field, num protowire.Number) []field {
	var out []field
	for _, f := range fs {
		if f.num == num {
			out = append(out, f)
		}
	}
	return out
}

func strs(fs []field, num protowire.Number) []string {
	var out []string
	for _, f := range pick(fs, num) {
		out = append(out, string(f.bytes))
	}
	return out
}

// convRelu is Conv(data, conv_w) -> x; Relu(x) -> y with conv_w a weight.
func convRelu() (cut.Subgraph, shape.Table) {
	w := store.NewFloat32([]int64{2, 1, 1, 1}, []float32{0.5, -1})
	sub := cut.Subgraph{
		Index: 3,
		Nodes: []dag.Node{
			{Name: "conv1", Type: "Conv", Inputs: []string{"data", "conv_w"}, Outputs: []string{"x"},
				Args: []dag.Arg{dag.IntArg("kernel", 1)}},
			{Type: "Relu", Inputs: []string{"x"}, Outputs: []string{"y"}},
		},
		Inputs:  []string{"data", "conv_w"},
		Outputs: []string{"y"},
		Weights: map[string]store.Tensor{"conv_w": w},
	}
	hints := shape.Table{
		"data":   shape.Of(shape.DTypeFloat32, 1, 1, 4, 4),
		"conv_w": w.Shape(),
		"y":      shape.Of(shape.DTypeFloat32, 1, 2, 4, 4),
	}
	return sub, hints
}

func TestExportSubgraph(t *testing.T) {
	sub, hints := convRelu()

	m, err := ExportSubgraph(sub, hints, true)
	require.NoError(t, err)
	require.Equal(t, int64(IRVersion), m.IRVersion)
	require.Equal(t, int64(DefaultOpset), m.OpsetVersion)
	require.Equal(t, Producer, m.ProducerName)

	g := m.Graph
	require.Equal(t, "partition_3", g.Name)
	require.Len(t, g.Nodes, 2)
	require.Equal(t, "Conv", g.Nodes[0].OpType)
	require.Equal(t, "conv1", g.Nodes[0].Name)
	require.Equal(t, "Relu_1", g.Nodes[1].Name)

	require.Len(t, g.Initializers, 1)
	require.Equal(t, "conv_w", g.Initializers[0].Name)
	require.Equal(t, int32(1), g.Initializers[0].DataType)

	var inputs []string
	for _, in := range g.Inputs {
		inputs = append(inputs, in.Name)
	}
	require.Equal(t, []string{"data", "conv_w"}, inputs)
	require.Equal(t, []ValueInfo{{Name: "y", ElemType: 1, Dims: []int64{1, 2, 4, 4}}}, g.Outputs)

	require.Equal(t, []string{"data"}, Bindings(sub, true))
	require.Equal(t, []string{"data", "conv_w"}, Bindings(sub, false))
}

func TestExportSubgraphUnbaked(t *testing.T) {
	sub, hints := convRelu()
	m, err := ExportSubgraph(sub, hints, false)
	require.NoError(t, err)
	require.Empty(t, m.Graph.Initializers)
	require.Len(t, m.Graph.Inputs, 2)
}

func TestExportSubgraphKeepsWeightType(t *testing.T) {
	sub, hints := convRelu()
	w := store.NewFloat16([]int64{2, 1, 1, 1}, []float32{0.5, -1})
	sub.Weights["conv_w"] = w
	hints["conv_w"] = w.Shape()

	m, err := ExportSubgraph(sub, hints, true)
	require.NoError(t, err)
	require.Equal(t, int32(10), m.Graph.Initializers[0].DataType)
	require.Len(t, m.Graph.Initializers[0].RawData, 4)
}

// A rule initializer never takes the name of a real tensor.
func TestExportSubgraphInitializerNames(t *testing.T) {
	sub := cut.Subgraph{
		Nodes: []dag.Node{
			{Type: "Reshape", Inputs: []string{"y__shape"}, Outputs: []string{"y"},
				Args: []dag.Arg{dag.IntsArg("shape", []int64{1, -1})}},
		},
		Inputs:  []string{"y__shape"},
		Outputs: []string{"y"},
	}
	hints := shape.Table{
		"y__shape": shape.Of(shape.DTypeFloat32, 2, 3),
		"y":        shape.Of(shape.DTypeFloat32, 1, 6),
	}

	m, err := ExportSubgraph(sub, hints, true)
	require.NoError(t, err)
	g := m.Graph
	require.Len(t, g.Initializers, 1)
	require.Equal(t, "y__shape_1", g.Initializers[0].Name)
	require.Equal(t, []string{"y__shape", "y__shape_1"}, g.Nodes[0].Inputs)

	var inputs []string
	for _, in := range g.Inputs {
		inputs = append(inputs, in.Name)
	}
	require.ElementsMatch(t, []string{"y__shape_1", "y__shape"}, inputs)
}

func TestExportSubgraphErrors(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*cut.Subgraph, shape.Table)
		code   errors.Code
	}{
		{
			name:   "weight hint disagrees with stored type",
			modify: func(_ *cut.Subgraph, h shape.Table) { h["conv_w"] = shape.Of(shape.DTypeFloat16, 2, 1, 1, 1) },
			code:   errors.ErrCodeTypeMismatch,
		},
		{
			name:   "missing output hint",
			modify: func(_ *cut.Subgraph, h shape.Table) { delete(h, "y") },
			code:   errors.ErrCodeMissingShape,
		},
		{
			name:   "missing input hint",
			modify: func(_ *cut.Subgraph, h shape.Table) { delete(h, "data") },
			code:   errors.ErrCodeMissingShape,
		},
		{
			name: "no rule",
			modify: func(s *cut.Subgraph, _ shape.Table) {
				s.Nodes[1].Type = "LRN"
			},
			code: errors.ErrCodeUnsupported,
		},
		{
			name: "rule rejects node",
			modify: func(s *cut.Subgraph, _ shape.Table) {
				s.Nodes[0].Args = nil
			},
			code: errors.ErrCodeConversion,
		},
		{
			name: "corrupt weight",
			modify: func(s *cut.Subgraph, _ shape.Table) {
				w := s.Weights["conv_w"]
				w.Data = w.Data[:3]
				s.Weights["conv_w"] = w
			},
			code: errors.ErrCodeInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, hints := convRelu()
			tt.modify(&sub, hints)
			_, err := ExportSubgraph(sub, hints, true)
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.code), "got %v", err)
		})
	}
}

func TestRules(t *testing.T) {
	e := NewExporter(0)
	tests := []struct {
		name  string
		node  dag.Node
		op    string
		attrs []Attribute
		in    []string
		inits int
	}{
		{
			name:  "fc",
			node:  dag.Node{Type: "FC", Inputs: []string{"x", "w", "b"}, Outputs: []string{"y"}},
			op:    "Gemm",
			attrs: []Attribute{IntAttr("transB", 1)},
			in:    []string{"x", "w", "b"},
		},
		{
			name: "conv",
			node: dag.Node{Type: "Conv", Inputs: []string{"x", "w"}, Outputs: []string{"y"},
				Args: []dag.Arg{dag.IntArg("kernel", 3), dag.IntArg("stride", 2), dag.IntArg("pad", 1)}},
			op: "Conv",
			attrs: []Attribute{
				IntsAttr("kernel_shape", []int64{3, 3}),
				IntsAttr("strides", []int64{2, 2}),
				IntsAttr("pads", []int64{1, 1, 1, 1}),
				IntsAttr("dilations", []int64{1, 1}),
			},
			in: []string{"x", "w"},
		},
		{
			name: "global pool",
			node: dag.Node{Type: "AveragePool", Inputs: []string{"x"}, Outputs: []string{"y"},
				Args: []dag.Arg{dag.IntArg("global_pooling", 1)}},
			op: "GlobalAveragePool",
			in: []string{"x"},
		},
		{
			name:  "transpose",
			node:  dag.Node{Type: "Transpose", Inputs: []string{"x"}, Outputs: []string{"y"}, Args: []dag.Arg{dag.IntsArg("axes", []int64{0, 2, 1})}},
			op:    "Transpose",
			attrs: []Attribute{IntsAttr("perm", []int64{0, 2, 1})},
			in:    []string{"x"},
		},
		{
			name:  "reshape",
			node:  dag.Node{Type: "Reshape", Inputs: []string{"x"}, Outputs: []string{"y"}, Args: []dag.Arg{dag.IntsArg("shape", []int64{1, -1})}},
			op:    "Reshape",
			in:    []string{"x", "y__shape"},
			inits: 1,
		},
		{
			name: "dropout",
			node: dag.Node{Type: "Dropout", Inputs: []string{"x"}, Outputs: []string{"y"}},
			op:   "Identity",
			in:   []string{"x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.True(t, e.CanExport(tt.node))
			require.NoError(t, e.Check(tt.node))
			nodes, inits, err := e.rules[tt.node.Type](tt.node)
			require.NoError(t, err)
			require.Len(t, nodes, 1)
			require.Equal(t, tt.op, nodes[0].OpType)
			require.Equal(t, tt.in, nodes[0].Inputs)
			require.Equal(t, tt.attrs, nodes[0].Attributes)
			require.Len(t, inits, tt.inits)
		})
	}
}

func TestCheckRejects(t *testing.T) {
	e := NewExporter(0)
	for name, n := range map[string]dag.Node{
		"concat split_info": {Type: "Concat", Inputs: []string{"a", "b"}, Outputs: []string{"y", "split"}},
		"dropout mask":      {Type: "Dropout", Inputs: []string{"x"}, Outputs: []string{"y", "mask"}},
		"training dropout":  {Type: "Dropout", Inputs: []string{"x"}, Outputs: []string{"y"}, Args: []dag.Arg{dag.IntArg("is_test", 0)}},
		"reshape no shape":  {Type: "Reshape", Inputs: []string{"x"}, Outputs: []string{"y"}},
		"nhwc conv":         {Type: "Conv", Inputs: []string{"x", "w"}, Outputs: []string{"y"}, Args: []dag.Arg{dag.IntArg("kernel", 1), dag.StringArg("order", "NHWC")}},
		"unknown op":        {Type: "SpatialBN", Inputs: []string{"x"}, Outputs: []string{"y"}},
	} {
		t.Run(name, func(t *testing.T) {
			require.Error(t, e.Check(n))
		})
	}
}

func TestMarshal(t *testing.T) {
	sub, hints := convRelu()
	m, err := ExportSubgraph(sub, hints, true)
	require.NoError(t, err)
	m.ProducerVersion = "v1"

	b, err := m.Marshal()
	require.NoError(t, err)

	model := decode(t, b)
	require.Equal(t, uint64(IRVersion), pick(model, 1)[0].v)
	require.Equal(t, []string{"netcut"}, strs(model, 2))
	require.Equal(t, []string{"v1"}, strs(model, 3))

	opset := decode(t, pick(model, 8)[0].bytes)
	require.Equal(t, uint64(DefaultOpset), pick(opset, 2)[0].v)

	graph := decode(t, pick(model, 7)[0].bytes)
	require.Equal(t, []string{"partition_3"}, strs(graph, 2))
	require.Len(t, pick(graph, 1), 2)
	require.Len(t, pick(graph, 11), 2)
	require.Len(t, pick(graph, 12), 1)

	conv := decode(t, pick(graph, 1)[0].bytes)
	require.Equal(t, []string{"data", "conv_w"}, strs(conv, 1))
	require.Equal(t, []string{"x"}, strs(conv, 2))
	require.Equal(t, []string{"Conv"}, strs(conv, 4))
	attr := decode(t, pick(conv, 5)[0].bytes)
	require.Equal(t, []string{"kernel_shape"}, strs(attr, 1))
	require.Len(t, pick(attr, 8), 2)
	require.Equal(t, uint64(AttrInts), pick(attr, 20)[0].v)

	init := decode(t, pick(graph, 5)[0].bytes)
	require.Len(t, pick(init, 1), 4)
	require.Equal(t, uint64(1), pick(init, 2)[0].v)
	require.Equal(t, []string{"conv_w"}, strs(init, 8))
	require.Equal(t, sub.Weights["conv_w"].Data, pick(init, 9)[0].bytes)

	out := decode(t, pick(graph, 12)[0].bytes)
	require.Equal(t, []string{"y"}, strs(out, 1))
	typ := decode(t, pick(out, 2)[0].bytes)
	tensor := decode(t, pick(typ, 1)[0].bytes)
	require.Equal(t, uint64(1), pick(tensor, 1)[0].v)
	dims := decode(t, pick(tensor, 2)[0].bytes)
	require.Len(t, pick(dims, 1), 4)
}

func TestMarshalFloatAttr(t *testing.T) {
	a := FloatAttr("alpha", 0.25)
	fs := decode(t, a.marshal())
	require.Equal(t, math.Float32bits(0.25), uint32(pick(fs, 2)[0].v))
	require.Equal(t, uint64(AttrFloat), pick(fs, 20)[0].v)
}

func TestMarshalNoGraph(t *testing.T) {
	_, err := (&Model{}).Marshal()
	require.Error(t, err)
}
