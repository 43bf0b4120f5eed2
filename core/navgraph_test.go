package core

import (
	"testing"

	"github.com/routewise/fleet-simulator/model"
)

func lineGraph(t *testing.T) *NavGraph {
	t.Helper()
	g, err := NewNavGraph("line",
		[]*model.Vertex{
			{Index: 0, X: 0, Y: 0},
			{Index: 1, X: 1, Y: 0},
			{Index: 2, X: 2, Y: 0},
		},
		[]*model.Lane{
			{Start: 0, End: 1},
			{Start: 1, End: 2},
		},
	)
	if err != nil {
		t.Fatalf("NewNavGraph error: %v", err)
	}
	return g
}

func TestNavGraphAdjacency(t *testing.T) {
	g := lineGraph(t)

	if got := g.VertexCount(); got != 3 {
		t.Fatalf("VertexCount = %d, want 3", got)
	}
	if got := g.NeighborsOf(0); len(got) != 1 || got[0] != 1 {
		t.Fatalf("NeighborsOf(0) = %v, want [1]", got)
	}
	if got := g.NeighborsOf(2); len(got) != 0 {
		t.Fatalf("NeighborsOf(2) = %v, want empty", got)
	}
	if !g.LaneExists(0, 1) {
		t.Fatalf("LaneExists(0,1) = false, want true")
	}
	if g.LaneExists(1, 0) {
		t.Fatalf("LaneExists(1,0) = true for a one-way lane")
	}
}

func TestNavGraphRejectsSparseIndices(t *testing.T) {
	_, err := NewNavGraph("bad",
		[]*model.Vertex{
			{Index: 0},
			{Index: 2},
		},
		nil,
	)
	if err == nil {
		t.Fatalf("expected error for non-dense vertex indices")
	}
}

func TestNavGraphRejectsOutOfRangeLane(t *testing.T) {
	_, err := NewNavGraph("bad",
		[]*model.Vertex{{Index: 0}, {Index: 1}},
		[]*model.Lane{{Start: 0, End: 5}},
	)
	if err == nil {
		t.Fatalf("expected error for lane with out-of-range endpoint")
	}
}

func TestNavGraphChargers(t *testing.T) {
	g, err := NewNavGraph("chargers",
		[]*model.Vertex{
			{Index: 0},
			{Index: 1, IsCharger: true},
			{Index: 2, IsCharger: true},
		},
		nil,
	)
	if err != nil {
		t.Fatalf("NewNavGraph error: %v", err)
	}
	got := g.Chargers()
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("Chargers = %v, want [1 2]", got)
	}
}

func TestNavGraphVertexOutOfRange(t *testing.T) {
	g := lineGraph(t)
	if g.Vertex(-1) != nil || g.Vertex(3) != nil {
		t.Fatalf("out-of-range Vertex lookups must return nil")
	}
}
