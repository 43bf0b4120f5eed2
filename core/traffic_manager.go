package core

import "sync"

// laneKey identifies a directed lane by its endpoints.
type laneKey struct {
	start, end int
}

// TrafficManager owns the reservation registry: which agent holds which
// vertex and which lane. A vertex or lane has at most one holder at any
// instant; holding grants the exclusive right to occupy or traverse it.
//
// Reservation failure is a normal negative result, not an error: the caller
// retries with an alternate route or abandons the task. Nothing here blocks
// or queues.
type TrafficManager struct {
	graph *NavGraph

	mu       sync.Mutex
	vertices map[int]int     // vertex index -> holder agent ID
	lanes    map[laneKey]int // (start,end) -> holder agent ID
}

// NewTrafficManager constructs an empty registry over the given graph.
func NewTrafficManager(graph *NavGraph) *TrafficManager {
	return &TrafficManager{
		graph:    graph,
		vertices: make(map[int]int),
		lanes:    make(map[laneKey]int),
	}
}

// ReservePath atomically reserves every vertex in path and every consecutive
// lane for agentID. If any vertex or lane is held by another agent the
// registry is left untouched and false is returned. Check and commit happen
// under one critical section, so two concurrent callers can never both pass
// the check phase.
func (tm *TrafficManager) ReservePath(agentID int, path []int) bool {
	if len(path) == 0 {
		return false
	}

	tm.mu.Lock()
	defer tm.mu.Unlock()

	for i, vertex := range path {
		if holder, held := tm.vertices[vertex]; held && holder != agentID {
			return false
		}
		if i+1 < len(path) {
			key := laneKey{path[i], path[i+1]}
			if holder, held := tm.lanes[key]; held && holder != agentID {
				return false
			}
		}
	}

	for i, vertex := range path {
		tm.vertices[vertex] = agentID
		if i+1 < len(path) {
			tm.lanes[laneKey{path[i], path[i+1]}] = agentID
		}
	}
	return true
}

// ReserveVertex reserves a single vertex for agentID, failing if another
// agent holds it. Used when an agent is placed on the graph at spawn.
func (tm *TrafficManager) ReserveVertex(agentID, vertex int) bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if holder, held := tm.vertices[vertex]; held && holder != agentID {
		return false
	}
	tm.vertices[vertex] = agentID
	return true
}

// ReleaseVertex clears the hold on vertex only if agentID is the current
// holder. Stale or duplicate releases are no-ops.
func (tm *TrafficManager) ReleaseVertex(agentID, vertex int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if tm.vertices[vertex] == agentID {
		delete(tm.vertices, vertex)
	}
}

// ReleaseLane clears the hold on the lane start->end only if agentID is the
// current holder.
func (tm *TrafficManager) ReleaseLane(agentID, start, end int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	key := laneKey{start, end}
	if tm.lanes[key] == agentID {
		delete(tm.lanes, key)
	}
}

// ReleasePath releases every vertex and consecutive lane of path that
// agentID currently holds. Used for whole-task teardown when a route is
// abandoned outright; during normal advance the fleet manager releases
// incrementally so trailing agents are unblocked as soon as possible.
func (tm *TrafficManager) ReleasePath(agentID int, path []int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for i, vertex := range path {
		if tm.vertices[vertex] == agentID {
			delete(tm.vertices, vertex)
		}
		if i+1 < len(path) {
			key := laneKey{path[i], path[i+1]}
			if tm.lanes[key] == agentID {
				delete(tm.lanes, key)
			}
		}
	}
}

// VertexHolder returns the holder of vertex and whether it is held.
func (tm *TrafficManager) VertexHolder(vertex int) (int, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	holder, held := tm.vertices[vertex]
	return holder, held
}

// LaneHolder returns the holder of the lane start->end and whether it is held.
func (tm *TrafficManager) LaneHolder(start, end int) (int, bool) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	holder, held := tm.lanes[laneKey{start, end}]
	return holder, held
}

// HeldVertices returns the set of vertices currently held by agents other
// than excludeAgent. This is the blocked set fed to FindAlternatePath.
func (tm *TrafficManager) HeldVertices(excludeAgent int) map[int]bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	blocked := make(map[int]bool, len(tm.vertices))
	for vertex, holder := range tm.vertices {
		if holder != excludeAgent {
			blocked[vertex] = true
		}
	}
	return blocked
}

// FindAlternatePath searches for a route from start to goal with the blocked
// vertices removed from the graph. It is a plain breadth-first search, so
// the result is shortest in hop count rather than in distance; only vertex
// blocking is modeled for this fallback. Returns nil when no route survives
// the blocking.
func (tm *TrafficManager) FindAlternatePath(agentID, start, goal int, blocked map[int]bool) []int {
	if tm.graph.Vertex(start) == nil || tm.graph.Vertex(goal) == nil {
		return nil
	}
	if blocked[start] || blocked[goal] {
		return nil
	}

	type queued struct {
		vertex int
		path   []int
	}
	queue := []queued{{vertex: start, path: []int{start}}}
	visited := map[int]bool{}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if current.vertex == goal {
			return current.path
		}
		if visited[current.vertex] {
			continue
		}
		visited[current.vertex] = true

		for _, neighbor := range tm.graph.NeighborsOf(current.vertex) {
			if blocked[neighbor] || visited[neighbor] {
				continue
			}
			next := make([]int, len(current.path), len(current.path)+1)
			copy(next, current.path)
			queue = append(queue, queued{vertex: neighbor, path: append(next, neighbor)})
		}
	}

	return nil
}
