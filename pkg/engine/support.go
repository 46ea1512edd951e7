package engine

import (
	"slices"

	"github.com/matzehuels/netcut/pkg/cut"
	"github.com/matzehuels/netcut/pkg/dag"
	"github.com/matzehuels/netcut/pkg/onnx"
)

// OpSupport decides support by exportability and op lists.
type OpSupport struct {
	Exporter *onnx.Exporter
	// Supported, when non-empty, is the only set of op types accepted.
	Supported []string
	// Blocked op types are never accepted.
	Blocked []string
}

// NewOpSupport returns a predicate over the default exporter.
func NewOpSupport(supported, blocked []string) *OpSupport {
	return &OpSupport{Exporter: onnx.NewExporter(0), Supported: supported, Blocked: blocked}
}

// Supports reports whether n can run on the accelerator. A node whose type
// has a rule but whose arguments the rule rejects returns the rule's error,
// which the partitioner logs before treating the node as unsupported.
func (s *OpSupport) Supports(n dag.Node) (bool, error) {
	if slices.Contains(s.Blocked, n.Type) {
		return false, nil
	}
	if len(s.Supported) > 0 && !slices.Contains(s.Supported, n.Type) {
		return false, nil
	}
	if !s.Exporter.CanExport(n) {
		return false, nil
	}
	if err := s.Exporter.Check(n); err != nil {
		return false, err
	}
	return true, nil
}

var _ cut.Supporter = (*OpSupport)(nil)
