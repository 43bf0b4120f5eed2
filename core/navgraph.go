package core

import (
	"fmt"

	"github.com/routewise/fleet-simulator/model"
)

// NavGraph is the shared navigation graph: vertices, directed lanes, and a
// derived adjacency index. The structure is built once and never mutated by
// the engine; the only runtime write is the per-vertex occupant field, owned
// exclusively by the fleet manager under its lock.
type NavGraph struct {
	Name     string
	vertices []*model.Vertex
	lanes    []*model.Lane

	// adjacency maps a vertex index to the ordered list of vertices
	// reachable over one outgoing lane. Order follows lane declaration
	// order, which keeps searches deterministic.
	adjacency map[int][]int

	// laneIndex maps (start,end) to the lane for speed-limit lookup.
	laneIndex map[[2]int]*model.Lane
}

// NewNavGraph validates and assembles a graph. Vertex indices must be dense
// (0..n-1 in slice order) and every lane endpoint must be in range.
func NewNavGraph(name string, vertices []*model.Vertex, lanes []*model.Lane) (*NavGraph, error) {
	for i, v := range vertices {
		if v == nil {
			return nil, fmt.Errorf("navgraph %q: vertex %d is nil", name, i)
		}
		if v.Index != i {
			return nil, fmt.Errorf("navgraph %q: vertex at position %d has index %d, want dense 0-based indices", name, i, v.Index)
		}
	}

	g := &NavGraph{
		Name:      name,
		vertices:  vertices,
		lanes:     lanes,
		adjacency: make(map[int][]int),
		laneIndex: make(map[[2]int]*model.Lane),
	}

	for i, l := range lanes {
		if l == nil {
			return nil, fmt.Errorf("navgraph %q: lane %d is nil", name, i)
		}
		if l.Start < 0 || l.Start >= len(vertices) || l.End < 0 || l.End >= len(vertices) {
			return nil, fmt.Errorf("navgraph %q: lane %d (%d->%d) references out-of-range vertex", name, i, l.Start, l.End)
		}
		g.adjacency[l.Start] = append(g.adjacency[l.Start], l.End)
		g.laneIndex[[2]int{l.Start, l.End}] = l
	}

	return g, nil
}

// VertexCount returns the number of vertices.
func (g *NavGraph) VertexCount() int { return len(g.vertices) }

// Vertex returns the vertex with the given index, or nil if out of range.
func (g *NavGraph) Vertex(index int) *model.Vertex {
	if index < 0 || index >= len(g.vertices) {
		return nil
	}
	return g.vertices[index]
}

// Vertices returns the underlying vertex slice. Callers must not mutate it.
func (g *NavGraph) Vertices() []*model.Vertex { return g.vertices }

// Lanes returns the underlying lane slice. Callers must not mutate it.
func (g *NavGraph) Lanes() []*model.Lane { return g.lanes }

// NeighborsOf returns the vertices reachable from v over one outgoing lane.
func (g *NavGraph) NeighborsOf(v int) []int { return g.adjacency[v] }

// LaneExists reports whether a directed lane a->b is declared.
func (g *NavGraph) LaneExists(a, b int) bool {
	_, ok := g.laneIndex[[2]int{a, b}]
	return ok
}

// LaneBetween returns the lane a->b, or nil if none is declared.
func (g *NavGraph) LaneBetween(a, b int) *model.Lane {
	return g.laneIndex[[2]int{a, b}]
}

// Chargers returns the indices of all charging vertices, in index order.
func (g *NavGraph) Chargers() []int {
	var out []int
	for _, v := range g.vertices {
		if v.IsCharger {
			out = append(out, v.Index)
		}
	}
	return out
}
