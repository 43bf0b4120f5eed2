package core

import "container/heap"

// FindPath runs A* from start to goal and returns the vertex sequence, both
// endpoints inclusive, or nil when no path exists. The heuristic is
// straight-line Euclidean distance, which is admissible and consistent since
// no lane is shorter than the straight line between its endpoints.
//
// Ties on f-score break by discovery order, so identical inputs always yield
// the identical path. The degenerate request start == goal returns nil;
// callers are expected to special-case zero-length routes before searching.
//
// The function reads only the immutable graph structure, so concurrent calls
// against the same graph are safe.
func FindPath(g *NavGraph, start, goal int) []int {
	if g == nil || start == goal {
		return nil
	}
	if g.Vertex(start) == nil || g.Vertex(goal) == nil {
		return nil
	}

	goalVertex := g.Vertex(goal)
	heuristic := func(v int) float64 {
		return Distance(g.Vertex(v), goalVertex)
	}

	open := &openSet{}
	heap.Init(open)
	seq := 0
	push := func(v int, g, fScore float64) {
		heap.Push(open, &openNode{vertex: v, gScore: g, fScore: fScore, seq: seq})
		seq++
	}

	gScore := map[int]float64{start: 0}
	cameFrom := map[int]int{}

	push(start, 0, heuristic(start))

	for open.Len() > 0 {
		node := heap.Pop(open).(*openNode)
		// An improvement after this entry was pushed leaves it carrying a
		// stale g-score; the fresher duplicate is still in the heap.
		if node.gScore > gScore[node.vertex] {
			continue
		}
		current := node.vertex

		if current == goal {
			return reconstruct(cameFrom, start, goal)
		}

		for _, neighbor := range g.NeighborsOf(current) {
			tentative := gScore[current] + Distance(g.Vertex(current), g.Vertex(neighbor))
			best, seen := gScore[neighbor]
			if seen && tentative >= best {
				continue
			}
			cameFrom[neighbor] = current
			gScore[neighbor] = tentative
			push(neighbor, tentative, tentative+heuristic(neighbor))
		}
	}

	return nil
}

func reconstruct(cameFrom map[int]int, start, goal int) []int {
	path := []int{goal}
	for current := goal; current != start; {
		current = cameFrom[current]
		path = append(path, current)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// openNode is an A* frontier entry. A vertex may appear several times when
// its g-score improves; entries with an outdated gScore are skipped on pop.
// seq records discovery order for the deterministic tie-break.
type openNode struct {
	vertex int
	gScore float64
	fScore float64
	seq    int
}

type openSet []*openNode

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].fScore == s[j].fScore {
		return s[i].seq < s[j].seq
	}
	return s[i].fScore < s[j].fScore
}
func (s openSet) Swap(i, j int)      { s[i], s[j] = s[j], s[i] }
func (s *openSet) Push(x any)        { *s = append(*s, x.(*openNode)) }
func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	*s = old[:n-1]
	return it
}
