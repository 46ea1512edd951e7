package dag_test

import (
	"errors"
	"fmt"

	"github.com/matzehuels/netcut/pkg/dag"
)

func ExampleGraph_Validate() {
	g := &dag.Graph{
		Inputs:  []string{"data"},
		Outputs: []string{"prob"},
		Nodes: []dag.Node{
			{Type: "FC", Inputs: []string{"data", "fc_w"}, Outputs: []string{"fc"}},
			{Type: "Softmax", Inputs: []string{"fc"}, Outputs: []string{"prob"}},
		},
	}

	weights := map[string]bool{"fc_w": true}
	fmt.Println("valid:", g.Validate(func(s string) bool { return weights[s] }) == nil)

	delete(weights, "fc_w")
	err := g.Validate(func(s string) bool { return weights[s] })
	fmt.Println("dangling:", errors.Is(err, dag.ErrDanglingInput))
	// Output:
	// valid: true
	// dangling: true
}

func ExampleGraph_FreeInputs() {
	g := &dag.Graph{
		Inputs: []string{"x"},
		Nodes: []dag.Node{
			{Type: "Conv", Inputs: []string{"x", "w", "b"}, Outputs: []string{"y"}},
			{Type: "Add", Inputs: []string{"y", "bias2"}, Outputs: []string{"z"}},
		},
	}
	fmt.Println(g.FreeInputs())
	// Output:
	// [w b bias2]
}

func ExampleCheckAcyclic() {
	fmt.Println(dag.CheckAcyclic([][]int{nil, {0}, {1}}))
	fmt.Println(errors.Is(dag.CheckAcyclic([][]int{{1}, {0}}), dag.ErrGraphHasCycle))
	// Output:
	// <nil>
	// true
}
