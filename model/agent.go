package model

import "time"

// Status is the motion/energy state of an agent. It is a closed enumeration;
// the presentation layer maps it to colors or markers, the engine never does.
type Status int

const (
	StatusIdle Status = iota
	StatusMoving
	StatusWaiting
	StatusCharging
	StatusMovingToCharger
	StatusTaskComplete
	StatusError
)

var statusNames = map[Status]string{
	StatusIdle:            "IDLE",
	StatusMoving:          "MOVING",
	StatusWaiting:         "WAITING",
	StatusCharging:        "CHARGING",
	StatusMovingToCharger: "MOVING_TO_CHARGER",
	StatusTaskComplete:    "TASK_COMPLETE",
	StatusError:           "ERROR",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Active reports whether the agent is traversing a lane this tick.
func (s Status) Active() bool {
	return s == StatusMoving || s == StatusMovingToCharger
}

// NoVertex marks an unset destination or waiting target.
const NoVertex = -1

// Agent is the mutable per-agent record. All fields are owned by the fleet
// manager and mutated only under its lock; external callers observe agents
// through Info snapshots.
type Agent struct {
	ID            int
	CurrentVertex int

	// Destination is NoVertex while the agent has no task.
	Destination int

	// Path is the remaining route, destination inclusive. While the agent is
	// active its first element equals CurrentVertex.
	Path []int

	// Progress is the fraction in [0,1] of the first lane of Path already
	// covered.
	Progress float64

	// Energy is in [0,100]. It decreases while moving and increases while
	// charging, never otherwise.
	Energy float64

	Status Status

	// Speed in coordinate units per second, capped per lane by SpeedLimit.
	Speed float64

	// WaitingFor is the vertex the agent is blocked on, NoVertex unless
	// Status is StatusWaiting.
	WaitingFor   int
	WaitingSince time.Time

	// TaskStart and TotalDistance describe the task in flight, for
	// reporting only.
	TaskStart     time.Time
	TotalDistance float64

	// ColorTag is a presentation hint assigned at spawn; the engine never
	// interprets it.
	ColorTag string
}
