package onnx

import (
	"fmt"
	"slices"

	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/shape"
	"github.com/matzehuels/netcut/pkg/store"
)

// single rejects nodes whose auxiliary outputs (Concat split_info, Reshape
// old_shape, Dropout mask) have no ONNX counterpart.
func single(n dag.Node) error {
	if len(n.Outputs) != 1 {
		return fmt.Errorf("%s with %d outputs is not exportable", n.Type, len(n.Outputs))
	}
	return nil
}

func direct(op string) Rule {
	return func(n dag.Node) ([]Node, []Tensor, error) {
		if err := single(n); err != nil {
			return nil, nil, err
		}
		return []Node{{OpType: op, Inputs: slices.Clone(n.Inputs), Outputs: slices.Clone(n.Outputs)}}, nil, nil
	}
}

func softmax(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	return []Node{{
		OpType:     "Softmax",
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: []Attribute{IntAttr("axis", n.Int("axis", 1))},
	}}, nil, nil
}

// fc maps FC(X, W, b) to Gemm with a transposed W.
func fc(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	if len(n.Inputs) != 3 {
		return nil, nil, fmt.Errorf("FC needs 3 inputs, has %d", len(n.Inputs))
	}
	if axis := n.Int("axis", 1); axis != 1 {
		return nil, nil, fmt.Errorf("FC axis %d is not exportable", axis)
	}
	return []Node{{
		OpType:     "Gemm",
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: []Attribute{IntAttr("transB", 1)},
	}}, nil, nil
}

func windowAttrs(n dag.Node) ([]Attribute, error) {
	kernel, stride, pads, dilation := shape.Window(n)
	if kernel[0] == 0 {
		return nil, fmt.Errorf("%s without kernel size", n.Type)
	}
	attrs := []Attribute{
		IntsAttr("kernel_shape", kernel[:]),
		IntsAttr("strides", stride[:]),
		IntsAttr("pads", pads[:]),
	}
	if n.Type == "Conv" {
		attrs = append(attrs, IntsAttr("dilations", dilation[:]))
		if g := n.Int("group", 1); g != 1 {
			attrs = append(attrs, IntAttr("group", g))
		}
	} else if dilation != [2]int64{1, 1} {
		return nil, fmt.Errorf("dilated %s is not exportable", n.Type)
	}
	return attrs, nil
}

func conv(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	if order := n.Str("order", "NCHW"); order != "NCHW" {
		return nil, nil, fmt.Errorf("Conv order %s is not exportable", order)
	}
	attrs, err := windowAttrs(n)
	if err != nil {
		return nil, nil, err
	}
	return []Node{{
		OpType:     "Conv",
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: attrs,
	}}, nil, nil
}

func pool(op string) Rule {
	return func(n dag.Node) ([]Node, []Tensor, error) {
		if err := single(n); err != nil {
			return nil, nil, err
		}
		if n.Int("global_pooling", 0) != 0 {
			return []Node{{
				OpType:  "Global" + op,
				Inputs:  slices.Clone(n.Inputs),
				Outputs: slices.Clone(n.Outputs),
			}}, nil, nil
		}
		attrs, err := windowAttrs(n)
		if err != nil {
			return nil, nil, err
		}
		return []Node{{
			OpType:     op,
			Inputs:     slices.Clone(n.Inputs),
			Outputs:    slices.Clone(n.Outputs),
			Attributes: attrs,
		}}, nil, nil
	}
}

func flatten(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	return []Node{{
		OpType:     "Flatten",
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: []Attribute{IntAttr("axis", n.Int("axis", 1))},
	}}, nil, nil
}

func concat(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	return []Node{{
		OpType:     "Concat",
		Inputs:     slices.Clone(n.Inputs),
		Outputs:    slices.Clone(n.Outputs),
		Attributes: []Attribute{IntAttr("axis", n.Int("axis", 1))},
	}}, nil, nil
}

func transpose(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	node := Node{OpType: "Transpose", Inputs: slices.Clone(n.Inputs), Outputs: slices.Clone(n.Outputs)}
	if axes := n.Ints("axes"); len(axes) > 0 {
		node.Attributes = []Attribute{IntsAttr("perm", slices.Clone(axes))}
	}
	return []Node{node}, nil, nil
}

// reshape moves the shape argument into an int64 initializer, which is how
// opset 5 and later take it.
func reshape(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	target := n.Ints("shape")
	if len(target) == 0 {
		return nil, nil, fmt.Errorf("Reshape without shape argument")
	}
	if len(n.Inputs) != 1 {
		return nil, nil, fmt.Errorf("Reshape with a shape input is not exportable")
	}
	t := store.NewInt64([]int64{int64(len(target))}, target)
	init := Tensor{
		Name:     n.Outputs[0] + "__shape",
		DataType: t.DType.ONNX(),
		Dims:     t.Dims,
		RawData:  t.Data,
	}
	return []Node{{
		OpType:  "Reshape",
		Inputs:  []string{n.Inputs[0], init.Name},
		Outputs: slices.Clone(n.Outputs),
	}}, []Tensor{init}, nil
}

// identity covers inference-mode Dropout and Copy.
func identity(n dag.Node) ([]Node, []Tensor, error) {
	if err := single(n); err != nil {
		return nil, nil, err
	}
	if len(n.Inputs) != 1 {
		return nil, nil, fmt.Errorf("%s needs 1 input, has %d", n.Type, len(n.Inputs))
	}
	if n.Type == "Dropout" && n.Int("is_test", 1) == 0 {
		return nil, nil, fmt.Errorf("training-mode Dropout is not exportable")
	}
	return []Node{{OpType: "Identity", Inputs: slices.Clone(n.Inputs), Outputs: slices.Clone(n.Outputs)}}, nil, nil
}
