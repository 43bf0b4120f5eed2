package core

import (
	"math"

	"github.com/routewise/fleet-simulator/model"
)

// Distance returns the Euclidean distance between two vertices.
func Distance(a, b *model.Vertex) float64 {
	dx := b.X - a.X
	dy := b.Y - a.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Interpolate returns the point a fraction t of the way from a to b.
// t is clamped to [0,1].
func Interpolate(a, b *model.Vertex, t float64) (float64, float64) {
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}
	return a.X + (b.X-a.X)*t, a.Y + (b.Y-a.Y)*t
}

// PathDistance sums consecutive-vertex distances along a path of vertex
// indices. Indices must be valid for g.
func PathDistance(g *NavGraph, path []int) float64 {
	total := 0.0
	for i := 0; i+1 < len(path); i++ {
		total += Distance(g.Vertex(path[i]), g.Vertex(path[i+1]))
	}
	return total
}
