// Package restore implements the restoration engine: dependency-ordered
// parallel restore of stored content into a destination instance, with ID
// remapping, checkpointing, and a dead letter queue for per-item failures.
package restore

import (
	"fmt"
	"sort"

	"github.com/lookervault/lookervault/types"
)

// DependencyError reports an unsatisfiable ordering between content types.
type DependencyError struct {
	Message string
}

func (e *DependencyError) Error() string {
	return "dependency error: " + e.Message
}

// dependencies lists, per content type, the types that must be restored
// before it. Folder parent chains are intra-type and resolved by id order,
// not modeled as an edge.
var dependencies = map[types.ContentType][]types.ContentType{
	types.ContentTypeDashboard:     {types.ContentTypeFolder, types.ContentTypeLook, types.ContentTypeUser},
	types.ContentTypeLook:          {types.ContentTypeFolder, types.ContentTypeUser, types.ContentTypeLookMLModel},
	types.ContentTypeFolder:        {types.ContentTypeUser},
	types.ContentTypeScheduledPlan: {types.ContentTypeDashboard, types.ContentTypeLook, types.ContentTypeUser},
	types.ContentTypeBoard:         {types.ContentTypeDashboard, types.ContentTypeLook, types.ContentTypeUser},
	types.ContentTypeGroup:         {types.ContentTypeUser},
	types.ContentTypeRole:          {types.ContentTypePermissionSet, types.ContentTypeModelSet},
}

// DependencyGraph is the directed acyclic graph over content types used
// to order restoration.
type DependencyGraph struct {
	edges map[types.ContentType][]types.ContentType
}

// NewDependencyGraph builds the graph and verifies it is acyclic.
func NewDependencyGraph() (*DependencyGraph, error) {
	g := &DependencyGraph{edges: dependencies}
	if _, err := g.TopologicalOrder(types.AllContentTypes); err != nil {
		return nil, err
	}
	return g, nil
}

// Dependencies returns the direct prerequisites of one content type.
func (g *DependencyGraph) Dependencies(ct types.ContentType) []types.ContentType {
	deps := g.edges[ct]
	out := make([]types.ContentType, len(deps))
	copy(out, deps)
	return out
}

// TopologicalOrder returns the subset ordered so every type appears after
// all of its in-subset dependencies. The order is deterministic: ties
// break by content type code.
func (g *DependencyGraph) TopologicalOrder(subset []types.ContentType) ([]types.ContentType, error) {
	want := make(map[types.ContentType]bool, len(subset))
	for _, ct := range subset {
		want[ct] = true
	}

	// Kahn's algorithm over the induced subgraph.
	indegree := make(map[types.ContentType]int, len(subset))
	for ct := range want {
		indegree[ct] = 0
	}
	for ct := range want {
		for _, dep := range g.edges[ct] {
			if want[dep] {
				indegree[ct]++
			}
		}
	}

	var ready []types.ContentType
	for ct, deg := range indegree {
		if deg == 0 {
			ready = append(ready, ct)
		}
	}
	sortTypes(ready)

	var order []types.ContentType
	for len(ready) > 0 {
		ct := ready[0]
		ready = ready[1:]
		order = append(order, ct)

		var freed []types.ContentType
		for other := range want {
			for _, dep := range g.edges[other] {
				if dep == ct && want[other] {
					indegree[other]--
					if indegree[other] == 0 {
						freed = append(freed, other)
					}
				}
			}
		}
		sortTypes(freed)
		ready = append(ready, freed...)
	}

	if len(order) != len(want) {
		var stuck []types.ContentType
		for ct, deg := range indegree {
			if deg > 0 {
				stuck = append(stuck, ct)
			}
		}
		sortTypes(stuck)
		return nil, &DependencyError{Message: fmt.Sprintf("cycle involving %v", stuck)}
	}
	return order, nil
}

func sortTypes(cts []types.ContentType) {
	sort.Slice(cts, func(i, j int) bool { return cts[i] < cts[j] })
}
