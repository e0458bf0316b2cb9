package graph

import (
	"fmt"
)

// NoPathMessage is the human-readable form of a missing path.
const NoPathMessage = "There is no link between these two."

// PathStep is one node on a path and the relationship of the edge that
// leads to the next node. The final step has an empty Relationship.
type PathStep struct {
	Node         string
	Relationship RelType
}

// PathResult is the outcome of a shortest-path query.
// The zero value is the NoPath sentinel.
type PathResult struct {
	Steps []PathStep
}

// NoPath is returned when either endpoint is unknown or they are disconnected.
var NoPath = PathResult{}

// Found reports whether a path exists.
func (p PathResult) Found() bool { return len(p.Steps) > 0 }

// Len returns the number of edges on the path, or -1 for NoPath.
func (p PathResult) Len() int { return len(p.Steps) - 1 }

// Nodes returns the node identities along the path.
func (p PathResult) Nodes() []string {
	result := make([]string, len(p.Steps))
	for i, s := range p.Steps {
		result[i] = s.Node
	}
	return result
}

// Elements returns identities alternating with relationship labels,
// e.g. [A acted_in Y acted_in B].
func (p PathResult) Elements() []string {
	if !p.Found() {
		return nil
	}

	result := make([]string, 0, 2*len(p.Steps)-1)
	for i, s := range p.Steps {
		result = append(result, s.Node)
		if i < len(p.Steps)-1 {
			result = append(result, string(s.Relationship))
		}
	}
	return result
}

// Lines returns the presentation form of the path: one line per step with
// the relationship arrow appended, then the final node.
func (p PathResult) Lines() []string {
	if !p.Found() {
		return []string{NoPathMessage}
	}

	result := make([]string, 0, len(p.Steps))
	for i, s := range p.Steps {
		if i == len(p.Steps)-1 {
			result = append(result, s.Node)
			break
		}
		result = append(result, fmt.Sprintf("%s   <--(%s)-->", s.Node, s.Relationship))
	}
	return result
}

// FindPath returns a shortest path by edge count from source to target.
//
// The search is an unweighted BFS that expands neighbours in edge insertion
// order, so among equally short paths the first discovered one wins.
func FindPath(g *MovieGraph, source, target string) PathResult {
	g.mu.RLock()
	defer g.mu.RUnlock()

	si, ok := g.index[source]
	if !ok {
		return NoPath
	}
	ti, ok := g.index[target]
	if !ok {
		return NoPath
	}
	if si == ti {
		return PathResult{Steps: []PathStep{{Node: source}}}
	}

	// parentEdge[i] is the edge index used to discover node i.
	parentEdge := make(map[int]int, len(g.nodes))
	parent := make(map[int]int, len(g.nodes))
	parent[si] = -1

	queue := []int{si}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, ei := range g.adjacency[current] {
			next := g.index[g.edges[ei].Other(g.nodes[current].ID)]
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = current
			parentEdge[next] = ei

			if next == ti {
				return g.tracePath(si, ti, parent, parentEdge)
			}
			queue = append(queue, next)
		}
	}

	return NoPath
}

// tracePath walks parent links back from target. Caller must hold the read lock.
func (g *MovieGraph) tracePath(si, ti int, parent, parentEdge map[int]int) PathResult {
	var reversed []PathStep
	reversed = append(reversed, PathStep{Node: g.nodes[ti].ID})

	for current := ti; current != si; current = parent[current] {
		prev := parent[current]
		reversed = append(reversed, PathStep{
			Node:         g.nodes[prev].ID,
			Relationship: g.edges[parentEdge[current]].Relationship,
		})
	}

	steps := make([]PathStep, len(reversed))
	for i, s := range reversed {
		steps[len(reversed)-1-i] = s
	}
	return PathResult{Steps: steps}
}
