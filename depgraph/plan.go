package depgraph

import (
	"fmt"
	"reflect"
)

// Plan is the setup-time resolution plan for one endpoint's declared
// parameter types: their transitive dependencies in topological order,
// and whether any of them forces a per-request scope (§4.3 Plan
// computation at setup).
type Plan struct {
	Order  []reflect.Type
	Scoped bool
}

type planState int

const (
	unvisited planState = iota
	visiting
	visited
)

// Plan topologically sorts the transitive dependency set of paramTypes
// and detects cycles, failing at setup rather than at request time
// (§3 Invariants).
func (g *Graph) Plan(paramTypes []reflect.Type) (*Plan, error) {
	state := map[reflect.Type]planState{}
	var order []reflect.Type
	scoped := false

	var visit func(t reflect.Type, path []reflect.Type) error
	visit = func(t reflect.Type, path []reflect.Type) error {
		switch state[t] {
		case visited:
			return nil
		case visiting:
			return fmt.Errorf("depgraph: dependency cycle detected: %s", cyclePath(append(path, t)))
		}
		node, ok := g.lookup(t)
		if !ok {
			return fmt.Errorf("depgraph: no factory registered for %s", t)
		}
		state[t] = visiting
		for _, dep := range node.Deps {
			if err := visit(dep, append(path, t)); err != nil {
				return err
			}
		}
		state[t] = visited
		order = append(order, t)
		if node.IsResource || node.Lifetime == Scoped {
			scoped = true
		}
		return nil
	}

	for _, t := range paramTypes {
		if err := visit(t, nil); err != nil {
			return nil, err
		}
	}
	return &Plan{Order: order, Scoped: scoped}, nil
}

func cyclePath(path []reflect.Type) string {
	s := ""
	for i, t := range path {
		if i > 0 {
			s += " -> "
		}
		s += t.String()
	}
	return s
}
