package shape

import (
	"fmt"
	"slices"
	"sync"

	"github.com/matzehuels/netcut/pkg/dag"
)

// Rule derives output shapes for one node. in holds one entry per node
// input, nil where the input shape is unknown. A rule returns shapes for a
// prefix of the node outputs (possibly none) or an error when the inputs
// are inconsistent.
type Rule func(n dag.Node, in []*Shape) ([]Shape, error)

// RuleInferencer is an [Inferencer] backed by a registry of per-operator
// rules. Nodes without a rule, and nodes whose rule fails, contribute no
// shapes; [RuleInferencer.InferVerbose] reports why.
//
// RuleInferencer is safe for concurrent use once registration is done.
type RuleInferencer struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRuleInferencer returns an inferencer with the built-in rules.
func NewRuleInferencer() *RuleInferencer {
	r := &RuleInferencer{rules: make(map[string]Rule)}
	for _, op := range []string{
		"Relu", "Sigmoid", "Tanh", "Softmax", "Dropout", "Copy", "Identity",
		"Exp", "Log", "Abs", "Neg", "Sqrt", "LeakyRelu", "Elu",
	} {
		r.Register(op, unaryRule)
	}
	for _, op := range []string{"Add", "Sub", "Mul", "Div", "Sum", "Max", "Min"} {
		r.Register(op, broadcastRule)
	}
	r.Register("FC", fcRule)
	r.Register("MatMul", matMulRule)
	r.Register("Conv", convRule)
	r.Register("MaxPool", poolRule)
	r.Register("AveragePool", poolRule)
	r.Register("Flatten", flattenRule)
	r.Register("Concat", concatRule)
	r.Register("Transpose", transposeRule)
	r.Register("Reshape", reshapeRule)
	return r
}

// Register installs rule for opType, replacing any previous rule.
func (r *RuleInferencer) Register(opType string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[opType] = rule
}

// Has reports whether a rule is registered for opType.
func (r *RuleInferencer) Has(opType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rules[opType]
	return ok
}

// Infer walks g in order, applying rules to derive output shapes. Seeds are
// never overridden. The returned table contains the seeds plus every derived
// shape. Infer never returns an error; the signature satisfies [Inferencer].
func (r *RuleInferencer) Infer(g *dag.Graph, seeds Table) (Table, error) {
	out, _ := r.InferVerbose(g, seeds)
	return out, nil
}

// InferVerbose is Infer plus a per-node list of skipped rule errors, keyed
// by node index.
func (r *RuleInferencer) InferVerbose(g *dag.Graph, seeds Table) (Table, map[int]error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := seeds.Clone()
	skipped := make(map[int]error)
	for i, n := range g.Nodes {
		rule, ok := r.rules[n.Type]
		if !ok {
			continue
		}
		in := make([]*Shape, len(n.Inputs))
		for j, name := range n.Inputs {
			in[j] = out.Lookup(name)
		}
		shapes, err := rule(n, in)
		if err != nil {
			skipped[i] = fmt.Errorf("node %d (%s): %w", i, n.Type, err)
			continue
		}
		for j, s := range shapes {
			if j >= len(n.Outputs) {
				break
			}
			if _, seeded := out[n.Outputs[j]]; !seeded {
				out[n.Outputs[j]] = s
			}
		}
	}
	return out, skipped
}

func known(in []*Shape, n int) bool {
	if len(in) < n {
		return false
	}
	for _, s := range in[:n] {
		if s == nil {
			return false
		}
	}
	return true
}

func unaryRule(_ dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 1) {
		return nil, nil
	}
	return []Shape{in[0].Clone()}, nil
}

// broadcastRule applies numpy-style broadcasting across all inputs.
func broadcastRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if len(in) == 0 || !known(in, len(in)) {
		return nil, nil
	}
	dims := slices.Clone(in[0].Dims)
	for _, s := range in[1:] {
		var err error
		if dims, err = broadcast(dims, s.Dims); err != nil {
			return nil, err
		}
	}
	return []Shape{{DType: in[0].DType, Dims: dims}}, nil
}

func broadcast(a, b []int64) ([]int64, error) {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := slices.Clone(a)
	off := len(a) - len(b)
	for i, d := range b {
		switch o := out[off+i]; {
		case o == d || d == 1:
		case o == 1:
			out[off+i] = d
		default:
			return nil, fmt.Errorf("cannot broadcast %v with %v", a, b)
		}
	}
	return out, nil
}

func prod(dims []int64) int64 {
	p := int64(1)
	for _, d := range dims {
		p *= d
	}
	return p
}

// fcRule handles a fully connected layer: X is flattened to [M, K] at axis,
// W is [N, K] flattened at axis_w, and the output is [M, N].
func fcRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 2) {
		return nil, nil
	}
	x, w := in[0], in[1]
	axis := int(n.Int("axis", 1))
	axisW := int(n.Int("axis_w", 1))
	if axis > x.Rank() || axisW > w.Rank() {
		return nil, fmt.Errorf("axis out of range for %s and %s", x, w)
	}
	k := prod(x.Dims[axis:])
	if wk := prod(w.Dims[axisW:]); wk != k {
		return nil, fmt.Errorf("inner dimensions differ: %d vs %d", k, wk)
	}
	dims := append(slices.Clone(x.Dims[:axis]), prod(w.Dims[:axisW]))
	return []Shape{{DType: x.DType, Dims: dims}}, nil
}

func matMulRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 2) {
		return nil, nil
	}
	a, b := in[0], in[1]
	if a.Rank() != 2 || b.Rank() != 2 {
		return nil, nil
	}
	m, k := a.Dims[0], a.Dims[1]
	if n.Int("trans_a", 0) != 0 {
		m, k = k, m
	}
	k2, cols := b.Dims[0], b.Dims[1]
	if n.Int("trans_b", 0) != 0 {
		k2, cols = cols, k2
	}
	if k != k2 {
		return nil, fmt.Errorf("inner dimensions differ: %d vs %d", k, k2)
	}
	return []Shape{{DType: a.DType, Dims: []int64{m, cols}}}, nil
}

// spatial holds 2-D window parameters in NCHW layout.
type spatial struct {
	kernel   [2]int64
	stride   [2]int64
	pads     [4]int64 // top, left, bottom, right
	dilation [2]int64
}

// Window reads kernel, stride, pad and dilation arguments of a Conv or pool
// node. Both the scalar ("kernel", "stride", "pad") and list ("kernels",
// "strides", "pads", "dilations") spellings are accepted. A zero kernel
// means the kernel size was not given.
func Window(n dag.Node) (kernel, stride [2]int64, pads [4]int64, dilation [2]int64) {
	s := window(n)
	return s.kernel, s.stride, s.pads, s.dilation
}

func window(n dag.Node) spatial {
	s := spatial{stride: [2]int64{1, 1}, dilation: [2]int64{1, 1}}
	if k := n.Int("kernel", 0); k > 0 {
		s.kernel = [2]int64{k, k}
	}
	if ks := n.Ints("kernels"); len(ks) == 2 {
		s.kernel = [2]int64{ks[0], ks[1]}
	}
	if v := n.Int("stride", 0); v > 0 {
		s.stride = [2]int64{v, v}
	}
	if vs := n.Ints("strides"); len(vs) == 2 {
		s.stride = [2]int64{vs[0], vs[1]}
	}
	if v := n.Int("pad", 0); v > 0 {
		s.pads = [4]int64{v, v, v, v}
	}
	if vs := n.Ints("pads"); len(vs) == 4 {
		s.pads = [4]int64{vs[0], vs[1], vs[2], vs[3]}
	}
	if v := n.Int("dilation", 0); v > 0 {
		s.dilation = [2]int64{v, v}
	}
	if vs := n.Ints("dilations"); len(vs) == 2 {
		s.dilation = [2]int64{vs[0], vs[1]}
	}
	return s
}

func (s spatial) out(h, w int64) (int64, int64, error) {
	var dims [2]int64
	for i, size := range [2]int64{h, w} {
		eff := s.dilation[i]*(s.kernel[i]-1) + 1
		span := size + s.pads[i] + s.pads[i+2] - eff
		if span < 0 || s.stride[i] <= 0 {
			return 0, 0, fmt.Errorf("window %d does not fit input %d", eff, size)
		}
		dims[i] = span/s.stride[i] + 1
	}
	return dims[0], dims[1], nil
}

func convRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 2) {
		return nil, nil
	}
	x, w := in[0], in[1]
	if x.Rank() != 4 || w.Rank() != 4 {
		return nil, nil
	}
	s := window(n)
	if s.kernel[0] == 0 {
		s.kernel = [2]int64{w.Dims[2], w.Dims[3]}
	}
	h, wd, err := s.out(x.Dims[2], x.Dims[3])
	if err != nil {
		return nil, err
	}
	return []Shape{{DType: x.DType, Dims: []int64{x.Dims[0], w.Dims[0], h, wd}}}, nil
}

func poolRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 1) {
		return nil, nil
	}
	x := in[0]
	if x.Rank() != 4 {
		return nil, nil
	}
	if n.Int("global_pooling", 0) != 0 {
		return []Shape{{DType: x.DType, Dims: []int64{x.Dims[0], x.Dims[1], 1, 1}}}, nil
	}
	s := window(n)
	if s.kernel[0] == 0 {
		return nil, fmt.Errorf("pooling without kernel size")
	}
	h, w, err := s.out(x.Dims[2], x.Dims[3])
	if err != nil {
		return nil, err
	}
	return []Shape{{DType: x.DType, Dims: []int64{x.Dims[0], x.Dims[1], h, w}}}, nil
}

func flattenRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 1) {
		return nil, nil
	}
	x := in[0]
	axis := int(n.Int("axis", 1))
	if axis < 0 || axis > x.Rank() {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, x.Rank())
	}
	return []Shape{{DType: x.DType, Dims: []int64{prod(x.Dims[:axis]), prod(x.Dims[axis:])}}}, nil
}

// concatRule also emits the split_info second output, one int32 per input.
func concatRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if len(in) == 0 || !known(in, len(in)) {
		return nil, nil
	}
	rank := in[0].Rank()
	axis := int(n.Int("axis", 1))
	if axis < 0 {
		axis += rank
	}
	if axis < 0 || axis >= rank {
		return nil, fmt.Errorf("axis %d out of range for rank %d", axis, rank)
	}
	dims := slices.Clone(in[0].Dims)
	dims[axis] = 0
	for _, s := range in {
		if s.Rank() != rank {
			return nil, fmt.Errorf("rank mismatch: %s vs %s", in[0], s)
		}
		for i, d := range s.Dims {
			if i != axis && d != dims[i] {
				return nil, fmt.Errorf("dimension %d differs: %s vs %s", i, in[0], s)
			}
		}
		dims[axis] += s.Dims[axis]
	}
	return []Shape{
		{DType: in[0].DType, Dims: dims},
		{DType: DTypeInt32, Dims: []int64{int64(len(in))}},
	}, nil
}

func transposeRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 1) {
		return nil, nil
	}
	x := in[0]
	axes := n.Ints("axes")
	if len(axes) == 0 {
		for i := x.Rank() - 1; i >= 0; i-- {
			axes = append(axes, int64(i))
		}
	}
	if len(axes) != x.Rank() {
		return nil, fmt.Errorf("axes %v do not match rank %d", axes, x.Rank())
	}
	dims := make([]int64, len(axes))
	for i, a := range axes {
		if a < 0 || int(a) >= x.Rank() {
			return nil, fmt.Errorf("axis %d out of range", a)
		}
		dims[i] = x.Dims[a]
	}
	return []Shape{{DType: x.DType, Dims: dims}}, nil
}

// reshapeRule resolves 0 (copy the input dim) and a single -1 (infer) in the
// shape argument. The second output holds the old shape as int64.
func reshapeRule(n dag.Node, in []*Shape) ([]Shape, error) {
	if !known(in, 1) {
		return nil, nil
	}
	x := in[0]
	target := n.Ints("shape")
	if len(target) == 0 {
		return nil, nil
	}
	dims := make([]int64, len(target))
	infer := -1
	fixed := int64(1)
	for i, d := range target {
		switch {
		case d == 0:
			if i >= x.Rank() {
				return nil, fmt.Errorf("copy dim %d out of range", i)
			}
			dims[i] = x.Dims[i]
		case d == -1:
			if infer >= 0 {
				return nil, fmt.Errorf("more than one inferred dimension")
			}
			infer = i
			continue
		case d < 0:
			return nil, fmt.Errorf("invalid dimension %d", d)
		default:
			dims[i] = d
		}
		fixed *= dims[i]
	}
	total := x.Elements()
	if infer >= 0 {
		if fixed == 0 || total%fixed != 0 {
			return nil, fmt.Errorf("cannot infer dimension of %v from %d elements", target, total)
		}
		dims[infer] = total / fixed
	} else if fixed != total {
		return nil, fmt.Errorf("element count %d does not match %d", fixed, total)
	}
	return []Shape{
		{DType: x.DType, Dims: dims},
		{DType: DTypeInt64, Dims: []int64{int64(x.Rank())}},
	}, nil
}
