package model

// Unoccupied marks a vertex with no agent standing on it. Agent IDs start
// at 1, so zero is never a valid occupant.
const Unoccupied = 0

// Vertex is a discrete location in the navigation graph. Coordinates are
// planar; units are whatever the graph file uses, the engine only ever
// compares distances.
type Vertex struct {
	Index     int
	X         float64
	Y         float64
	Name      string
	IsCharger bool

	// OccupiedBy is the ID of the agent physically standing on this vertex,
	// or Unoccupied. Written only by the fleet manager under its lock.
	OccupiedBy int
}

// Lane is a directed traversable connection between two vertices. A reverse
// lane is a separate entry. SpeedLimit caps agent speed on the lane; zero
// means uncapped.
type Lane struct {
	Start      int
	End        int
	SpeedLimit float64
}
