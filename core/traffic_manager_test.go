package core

import (
	"reflect"
	"sync"
	"testing"
)

// registrySnapshot captures both maps for before/after comparisons.
func registrySnapshot(tm *TrafficManager) (map[int]int, map[laneKey]int) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	vertices := make(map[int]int, len(tm.vertices))
	for k, v := range tm.vertices {
		vertices[k] = v
	}
	lanes := make(map[laneKey]int, len(tm.lanes))
	for k, v := range tm.lanes {
		lanes[k] = v
	}
	return vertices, lanes
}

func TestReservePathAndRelease(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	if !tm.ReservePath(1, []int{0, 1, 2}) {
		t.Fatalf("ReservePath failed on an empty registry")
	}
	if holder, held := tm.VertexHolder(1); !held || holder != 1 {
		t.Fatalf("vertex 1 holder = %d/%v, want 1/true", holder, held)
	}
	if holder, held := tm.LaneHolder(0, 1); !held || holder != 1 {
		t.Fatalf("lane 0->1 holder = %d/%v, want 1/true", holder, held)
	}

	tm.ReleasePath(1, []int{0, 1, 2})
	if _, held := tm.VertexHolder(0); held {
		t.Fatalf("vertex 0 still held after ReleasePath")
	}
	if _, held := tm.LaneHolder(1, 2); held {
		t.Fatalf("lane 1->2 still held after ReleasePath")
	}
}

func TestReservePathFailureLeavesRegistryUntouched(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	if !tm.ReservePath(1, []int{1}) {
		t.Fatalf("seed reservation failed")
	}
	beforeV, beforeL := registrySnapshot(tm)

	if tm.ReservePath(2, []int{0, 1, 2}) {
		t.Fatalf("ReservePath succeeded across a vertex held by another agent")
	}

	afterV, afterL := registrySnapshot(tm)
	if !reflect.DeepEqual(beforeV, afterV) || !reflect.DeepEqual(beforeL, afterL) {
		t.Fatalf("failed ReservePath mutated the registry: %v/%v -> %v/%v", beforeV, beforeL, afterV, afterL)
	}
}

func TestReservePathAllowsOwnHolds(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	if !tm.ReserveVertex(1, 0) {
		t.Fatalf("ReserveVertex failed")
	}
	if !tm.ReservePath(1, []int{0, 1, 2}) {
		t.Fatalf("ReservePath must tolerate holds already owned by the caller")
	}
}

func TestReleaseIsHolderCheckedAndIdempotent(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))
	tm.ReservePath(1, []int{0, 1})

	// Releasing as a non-holder is a no-op.
	tm.ReleaseVertex(2, 0)
	if holder, held := tm.VertexHolder(0); !held || holder != 1 {
		t.Fatalf("non-holder release cleared vertex 0")
	}

	// Releasing twice is safe.
	tm.ReleaseVertex(1, 0)
	tm.ReleaseVertex(1, 0)
	if _, held := tm.VertexHolder(0); held {
		t.Fatalf("vertex 0 still held after release")
	}

	tm.ReleaseLane(2, 0, 1)
	if holder, held := tm.LaneHolder(0, 1); !held || holder != 1 {
		t.Fatalf("non-holder release cleared lane 0->1")
	}
	tm.ReleaseLane(1, 0, 1)
	tm.ReleaseLane(1, 0, 1)
	if _, held := tm.LaneHolder(0, 1); held {
		t.Fatalf("lane 0->1 still held after release")
	}
}

func TestReserveThenReleaseRoundTrip(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))
	beforeV, beforeL := registrySnapshot(tm)

	if !tm.ReservePath(7, []int{0, 1, 2}) {
		t.Fatalf("ReservePath failed")
	}
	tm.ReleasePath(7, []int{0, 1, 2})

	afterV, afterL := registrySnapshot(tm)
	if !reflect.DeepEqual(beforeV, afterV) || !reflect.DeepEqual(beforeL, afterL) {
		t.Fatalf("reserve+release did not restore the registry")
	}
}

func TestConcurrentReserveSameDestination(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	// Both paths end on vertex 2; exactly one reservation may win.
	var wg sync.WaitGroup
	results := make([]bool, 2)
	paths := [][]int{{0, 1, 2}, {1, 2}}
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = tm.ReservePath(i+1, paths[i])
		}(i)
	}
	wg.Wait()

	if results[0] == results[1] {
		t.Fatalf("want exactly one winner, got %v", results)
	}
}

func TestHeldVerticesExcludesRequester(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))
	tm.ReserveVertex(1, 0)
	tm.ReserveVertex(2, 1)

	blocked := tm.HeldVertices(1)
	if blocked[0] {
		t.Fatalf("HeldVertices included the requester's own hold")
	}
	if !blocked[1] {
		t.Fatalf("HeldVertices missed a hold by another agent")
	}
}

func TestFindAlternatePathAvoidsBlockedVertices(t *testing.T) {
	tm := NewTrafficManager(diamondGraph(t))

	path := tm.FindAlternatePath(1, 0, 3, map[int]bool{1: true})
	want := []int{0, 2, 3}
	if !reflect.DeepEqual(path, want) {
		t.Fatalf("FindAlternatePath = %v, want %v", path, want)
	}
}

func TestFindAlternatePathNoRouteWhenBlocked(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	if got := tm.FindAlternatePath(1, 0, 2, map[int]bool{1: true}); got != nil {
		t.Fatalf("FindAlternatePath = %v, want nil on a severed line", got)
	}
}

func TestFindAlternatePathBlockedEndpoint(t *testing.T) {
	tm := NewTrafficManager(lineGraph(t))

	if got := tm.FindAlternatePath(1, 0, 2, map[int]bool{2: true}); got != nil {
		t.Fatalf("FindAlternatePath = %v, want nil when the goal is blocked", got)
	}
}
