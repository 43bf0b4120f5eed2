package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/routewise/fleet-simulator/internal/logging"
	"github.com/routewise/fleet-simulator/model"
)

var (
	// ErrVertexOutOfRange indicates a vertex index outside the graph.
	ErrVertexOutOfRange = errors.New("vertex index out of range")
	// ErrVertexOccupied indicates a spawn target already has an agent on it.
	ErrVertexOccupied = errors.New("vertex already occupied")
	// ErrAgentNotFound indicates an unknown agent ID.
	ErrAgentNotFound = errors.New("agent not found")
)

// Params are the fleet tunables. The two energy thresholds are deliberately
// distinct: LowEnergyThreshold is the high-margin trigger that preempts a
// task and reroutes to a charger early enough that one is still reachable;
// CriticalEnergyThreshold is the tighter level used for opportunistic
// charging decisions.
type Params struct {
	DefaultSpeed            float64 // coordinate units per second
	EnergyPerUnit           float64 // energy drained per unit of distance
	ChargeRate              float64 // energy gained per second while charging
	LowEnergyThreshold      float64
	CriticalEnergyThreshold float64
}

// DefaultParams returns the stock tunables.
func DefaultParams() Params {
	return Params{
		DefaultSpeed:            0.2,
		EnergyPerUnit:           0.5,
		LowEnergyThreshold:      40.0,
		CriticalEnergyThreshold: 30.0,
		ChargeRate:              10.0,
	}
}

// FleetMetricsRecorder receives fleet-level measurements. Implemented by the
// observability collector; a nil recorder disables recording.
type FleetMetricsRecorder interface {
	ObserveTick(duration time.Duration)
	SetAgentCounts(counts map[string]int)
	TaskAssigned(result string)
	ReservationConflict()
	AlternateRoute()
}

// colorPalette cycles presentation tags across spawned agents. The engine
// never reads these back; they ride along in Info for the display layer.
var colorPalette = []string{"red", "blue", "green", "orange", "purple", "teal"}

// FleetManager orchestrates the fleet: it owns every agent record, the
// vertex occupancy on the graph, and the per-tick simulation step. One
// RWMutex serializes all mutation (Spawn, AssignTask, Tick); read-only
// snapshots (Position, Info) take the read side so concurrent readers never
// observe a torn mid-update agent.
type FleetManager struct {
	graph   *NavGraph
	traffic *TrafficManager
	params  Params

	mu          sync.RWMutex
	agents      map[int]*model.Agent
	nextAgentID int

	log     logging.Logger
	metrics FleetMetricsRecorder
	now     func() time.Time
}

// FleetOption configures a FleetManager.
type FleetOption func(*FleetManager)

// WithLogger attaches a structured logger for fleet events.
func WithLogger(log logging.Logger) FleetOption {
	return func(fm *FleetManager) {
		if log != nil {
			fm.log = log
		}
	}
}

// WithMetricsRecorder attaches an optional metrics recorder.
func WithMetricsRecorder(m FleetMetricsRecorder) FleetOption {
	return func(fm *FleetManager) { fm.metrics = m }
}

// WithParams overrides the default tunables.
func WithParams(p Params) FleetOption {
	return func(fm *FleetManager) { fm.params = p }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) FleetOption {
	return func(fm *FleetManager) {
		if now != nil {
			fm.now = now
		}
	}
}

// NewFleetManager constructs a fleet over the given graph and reservation
// registry.
func NewFleetManager(graph *NavGraph, traffic *TrafficManager, opts ...FleetOption) *FleetManager {
	fm := &FleetManager{
		graph:       graph,
		traffic:     traffic,
		params:      DefaultParams(),
		agents:      make(map[int]*model.Agent),
		nextAgentID: 1,
		log:         logging.Noop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(fm)
	}
	return fm
}

// Spawn creates a new agent standing on the given vertex, idle with full
// energy. The vertex must be in range and unoccupied. Agent IDs are
// sequential and never reused.
func (fm *FleetManager) Spawn(vertex int) (int, error) {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	v := fm.graph.Vertex(vertex)
	if v == nil {
		return 0, fmt.Errorf("spawn at %d: %w", vertex, ErrVertexOutOfRange)
	}
	if v.OccupiedBy != model.Unoccupied {
		return 0, fmt.Errorf("spawn at %d: %w", vertex, ErrVertexOccupied)
	}

	id := fm.nextAgentID
	fm.nextAgentID++

	agent := &model.Agent{
		ID:            id,
		CurrentVertex: vertex,
		Destination:   model.NoVertex,
		Status:        model.StatusIdle,
		Energy:        100.0,
		Speed:         fm.params.DefaultSpeed,
		WaitingFor:    model.NoVertex,
		ColorTag:      colorPalette[(id-1)%len(colorPalette)],
	}
	fm.agents[id] = agent
	v.OccupiedBy = id
	fm.traffic.ReserveVertex(id, vertex)

	fm.log.Info(context.Background(), "agent spawned",
		logging.Int("agent", id),
		logging.Int("vertex", vertex),
	)
	fm.recordAgentCounts()
	return id, nil
}

// AssignTask routes the agent to destination and reserves the route. It
// fails, leaving the agent untouched, when the agent is unknown, the
// destination is out of range, the agent is en route to a charger, the agent
// already stands on the destination, no path exists, or both the shortest
// path and the congestion-aware alternate cannot be reserved.
func (fm *FleetManager) AssignTask(agentID, destination int) bool {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.assignTaskLocked(agentID, destination)
}

// assignTaskLocked is AssignTask without the lock, for reuse from within
// Tick (low-energy rerouting happens mid-tick under the same lock).
func (fm *FleetManager) assignTaskLocked(agentID, destination int) bool {
	agent, ok := fm.agents[agentID]
	if !ok {
		return false
	}
	if fm.graph.Vertex(destination) == nil {
		return false
	}
	if agent.Status == model.StatusMovingToCharger {
		fm.log.Warn(context.Background(), "agent en route to charger, task rejected",
			logging.Int("agent", agentID),
			logging.Int("destination", destination),
		)
		fm.taskAssigned("rejected")
		return false
	}
	if agent.CurrentVertex == destination {
		fm.taskAssigned("rejected")
		return false
	}

	path := FindPath(fm.graph, agent.CurrentVertex, destination)
	if path == nil {
		fm.log.Warn(context.Background(), "no path to destination",
			logging.Int("agent", agentID),
			logging.Int("from", agent.CurrentVertex),
			logging.Int("destination", destination),
		)
		fm.taskAssigned("no_path")
		return false
	}

	if !fm.traffic.ReservePath(agentID, path) {
		if fm.metrics != nil {
			fm.metrics.ReservationConflict()
		}
		blocked := fm.traffic.HeldVertices(agentID)
		alt := fm.traffic.FindAlternatePath(agentID, agent.CurrentVertex, destination, blocked)
		if alt == nil || !fm.traffic.ReservePath(agentID, alt) {
			fm.log.Warn(context.Background(), "route blocked, no reservable alternate",
				logging.Int("agent", agentID),
				logging.Int("destination", destination),
			)
			fm.taskAssigned("blocked")
			return false
		}
		path = alt
		if fm.metrics != nil {
			fm.metrics.AlternateRoute()
		}
		fm.log.Info(context.Background(), "agent rerouted around congestion",
			logging.Int("agent", agentID),
			logging.Int("destination", destination),
		)
	}

	// The new route is committed; drop holds from any abandoned previous
	// route that the new one does not share.
	fm.releaseStaleHolds(agent, path)

	agent.Destination = destination
	agent.Path = path
	agent.Status = model.StatusMoving
	agent.Progress = 0
	agent.WaitingFor = model.NoVertex
	agent.WaitingSince = time.Time{}
	agent.TaskStart = fm.now()
	agent.TotalDistance = PathDistance(fm.graph, path)

	fm.log.Info(context.Background(), "task assigned",
		logging.Int("agent", agentID),
		logging.Int("from", path[0]),
		logging.Int("destination", destination),
		logging.Any("path", path),
	)
	fm.taskAssigned("ok")
	fm.recordAgentCounts()
	return true
}

// releaseStaleHolds releases everything the agent held for a previous route
// except what the new route also covers. Keeps the single-holder registry
// from accumulating orphaned entries across reassignments.
func (fm *FleetManager) releaseStaleHolds(agent *model.Agent, newPath []int) {
	if len(agent.Path) == 0 {
		return
	}
	keepVertex := make(map[int]bool, len(newPath))
	keepLane := make(map[laneKey]bool, len(newPath))
	for i, v := range newPath {
		keepVertex[v] = true
		if i+1 < len(newPath) {
			keepLane[laneKey{v, newPath[i+1]}] = true
		}
	}
	for i, v := range agent.Path {
		if !keepVertex[v] {
			fm.traffic.ReleaseVertex(agent.ID, v)
		}
		if i+1 < len(agent.Path) {
			if key := (laneKey{v, agent.Path[i+1]}); !keepLane[key] {
				fm.traffic.ReleaseLane(agent.ID, key.start, key.end)
			}
		}
	}
}

// Tick advances every agent by delta seconds. Agents update in ascending ID
// order so a run is reproducible tick for tick. Negative deltas are ignored.
func (fm *FleetManager) Tick(delta float64) {
	if delta < 0 {
		return
	}
	start := fm.now()

	fm.mu.Lock()
	ids := make([]int, 0, len(fm.agents))
	for id := range fm.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		fm.stepAgent(fm.agents[id], delta)
	}
	fm.recordAgentCounts()
	fm.mu.Unlock()

	if fm.metrics != nil {
		fm.metrics.ObserveTick(fm.now().Sub(start))
	}
}

// stepAgent runs one simulation step of the motion/energy state machine for
// a single agent. Caller holds the write lock.
func (fm *FleetManager) stepAgent(agent *model.Agent, delta float64) {
	switch {
	case agent.Status.Active() && len(agent.Path) >= 2:
		fm.stepMoving(agent, delta)

	case agent.Status == model.StatusWaiting:
		fm.stepWaiting(agent)

	case agent.Status == model.StatusCharging:
		fm.stepCharging(agent, delta)
	}

	// Low-energy preemption applies to any agent that could still act on
	// it: charging agents are already recovering, charger-bound agents are
	// already handled, waiting agents reroute when they resume, and ERROR
	// is terminal for automated recovery.
	switch agent.Status {
	case model.StatusCharging, model.StatusMovingToCharger, model.StatusWaiting, model.StatusError:
	default:
		if agent.Energy < fm.params.LowEnergyThreshold {
			fm.handleLowEnergy(agent)
		}
	}
}

func (fm *FleetManager) stepMoving(agent *model.Agent, delta float64) {
	next := agent.Path[1]
	nextVertex := fm.graph.Vertex(next)

	// Another agent standing on our reserved next vertex blocks us until it
	// moves on. No reservations change; we just wait.
	if nextVertex.OccupiedBy != model.Unoccupied && nextVertex.OccupiedBy != agent.ID {
		agent.Status = model.StatusWaiting
		agent.WaitingFor = next
		agent.WaitingSince = fm.now()
		fm.log.Info(context.Background(), "agent blocked",
			logging.Int("agent", agent.ID),
			logging.Int("at", agent.CurrentVertex),
			logging.Int("blocked_on", next),
		)
		return
	}

	current := agent.Path[0]
	currentVertex := fm.graph.Vertex(current)
	segment := Distance(currentVertex, nextVertex)

	speed := agent.Speed
	if lane := fm.graph.LaneBetween(current, next); lane != nil && lane.SpeedLimit > 0 && lane.SpeedLimit < speed {
		speed = lane.SpeedLimit
	}
	movement := speed * delta

	if segment > 0 {
		agent.Progress += movement / segment
	} else {
		agent.Progress = 1
	}
	agent.Energy = math.Max(0, agent.Energy-movement*fm.params.EnergyPerUnit)

	if agent.Progress >= 1.0 {
		fm.arriveAt(agent, current, next)
	}
}

// arriveAt commits the transition onto the next vertex: release what was
// just left, occupy the new vertex, and run the arrival branch of the state
// machine (charger, destination, or plain waypoint).
func (fm *FleetManager) arriveAt(agent *model.Agent, from, to int) {
	fm.traffic.ReleaseVertex(agent.ID, from)
	fm.traffic.ReleaseLane(agent.ID, from, to)

	fm.graph.Vertex(from).OccupiedBy = model.Unoccupied
	fm.graph.Vertex(to).OccupiedBy = agent.ID

	agent.CurrentVertex = to
	agent.Path = agent.Path[1:]
	agent.Progress = 0

	toVertex := fm.graph.Vertex(to)
	switch {
	case toVertex.IsCharger && agent.Status == model.StatusMovingToCharger:
		agent.Energy = 100.0
		fm.enterCharging(agent)
		fm.log.Info(context.Background(), "agent reached charger, fully charged",
			logging.Int("agent", agent.ID),
			logging.Int("vertex", to),
		)

	case toVertex.IsCharger && agent.Energy < fm.params.CriticalEnergyThreshold:
		fm.enterCharging(agent)
		fm.log.Info(context.Background(), "agent charging opportunistically",
			logging.Int("agent", agent.ID),
			logging.Int("vertex", to),
		)

	case len(agent.Path) == 1:
		// Only the destination remains: the task is done. The destination
		// vertex stays reserved because the agent still stands on it.
		agent.Status = model.StatusTaskComplete
		agent.Path = nil
		agent.Destination = model.NoVertex
		agent.TaskStart = time.Time{}
		fm.log.Info(context.Background(), "task complete",
			logging.Int("agent", agent.ID),
			logging.Int("destination", to),
		)
	}
}

// enterCharging parks the agent at its current vertex and tears down
// whatever remains of the route; the current vertex stays held.
func (fm *FleetManager) enterCharging(agent *model.Agent) {
	fm.abandonRoute(agent)
	agent.Status = model.StatusCharging
	agent.Destination = model.NoVertex
}

func (fm *FleetManager) stepWaiting(agent *model.Agent) {
	if agent.WaitingFor == model.NoVertex {
		return
	}
	blocking := fm.graph.Vertex(agent.WaitingFor)
	if blocking.OccupiedBy != model.Unoccupied && blocking.OccupiedBy != agent.ID {
		return
	}
	if agent.Energy < fm.params.LowEnergyThreshold {
		agent.Status = model.StatusMovingToCharger
	} else {
		agent.Status = model.StatusMoving
	}
	agent.WaitingFor = model.NoVertex
	agent.WaitingSince = time.Time{}
	fm.log.Info(context.Background(), "agent resumed after waiting", logging.Int("agent", agent.ID))
}

func (fm *FleetManager) stepCharging(agent *model.Agent, delta float64) {
	if agent.Energy >= 100.0 {
		agent.Energy = 100.0
		agent.Status = model.StatusIdle
		fm.log.Info(context.Background(), "agent finished charging", logging.Int("agent", agent.ID))
		return
	}
	agent.Energy = math.Min(100.0, agent.Energy+fm.params.ChargeRate*delta)
}

// handleLowEnergy preempts the agent's task and reroutes it to the nearest
// reachable charger. With no charger in the graph, or none reachable, the
// agent enters ERROR and stays there until an external caller assigns a
// fresh task.
func (fm *FleetManager) handleLowEnergy(agent *model.Agent) {
	chargers := fm.graph.Chargers()
	if len(chargers) == 0 {
		fm.enterError(agent, "no charger vertex in graph")
		return
	}

	// Already standing on a charger: no route needed.
	if fm.graph.Vertex(agent.CurrentVertex).IsCharger {
		fm.enterCharging(agent)
		return
	}

	nearest := model.NoVertex
	best := math.Inf(1)
	for _, charger := range chargers {
		path := FindPath(fm.graph, agent.CurrentVertex, charger)
		if path == nil {
			continue
		}
		if d := PathDistance(fm.graph, path); d < best {
			best = d
			nearest = charger
		}
	}
	if nearest == model.NoVertex {
		fm.enterError(agent, "no charger reachable")
		return
	}

	fm.log.Warn(context.Background(), "energy low, rerouting to charger",
		logging.Int("agent", agent.ID),
		logging.Any("energy", agent.Energy),
		logging.Int("charger", nearest),
	)
	fm.assignTaskLocked(agent.ID, nearest)
	// Upgrade so a later AssignTask cannot preempt the charging run.
	if agent.Status == model.StatusMoving {
		agent.Status = model.StatusMovingToCharger
	}
}

func (fm *FleetManager) enterError(agent *model.Agent, reason string) {
	fm.abandonRoute(agent)
	agent.Status = model.StatusError
	agent.Destination = model.NoVertex
	fm.log.Error(context.Background(), "agent entered error state",
		logging.Int("agent", agent.ID),
		logging.String("reason", reason),
	)
}

// abandonRoute releases every hold of the agent's remaining route except the
// vertex it stands on, then clears the route.
func (fm *FleetManager) abandonRoute(agent *model.Agent) {
	if len(agent.Path) > 0 {
		fm.traffic.ReleasePath(agent.ID, agent.Path)
		fm.traffic.ReserveVertex(agent.ID, agent.CurrentVertex)
	}
	agent.Path = nil
	agent.Progress = 0
}

// Position returns the agent's planar position: the vertex coordinates when
// stationary, or the interpolated point along the current lane when moving.
func (fm *FleetManager) Position(agentID int) (float64, float64, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.positionLocked(agentID)
}

func (fm *FleetManager) positionLocked(agentID int) (float64, float64, error) {
	agent, ok := fm.agents[agentID]
	if !ok {
		return 0, 0, fmt.Errorf("position of %d: %w", agentID, ErrAgentNotFound)
	}
	if !agent.Status.Active() || len(agent.Path) < 2 {
		v := fm.graph.Vertex(agent.CurrentVertex)
		return v.X, v.Y, nil
	}
	x, y := Interpolate(fm.graph.Vertex(agent.Path[0]), fm.graph.Vertex(agent.Path[1]), agent.Progress)
	return x, y, nil
}

// AgentInfo is a read-only projection of an agent's displayable state.
type AgentInfo struct {
	ID                 int     `json:"id"`
	X                  float64 `json:"x"`
	Y                  float64 `json:"y"`
	Status             string  `json:"status"`
	BatteryPercent     float64 `json:"batteryPercent"`
	ColorTag           string  `json:"colorTag"`
	CurrentVertex      int     `json:"currentVertex"`
	DestinationVertex  *int    `json:"destinationVertex"`
	RemainingPath      []int   `json:"remainingPath"`
	ProgressPercent    float64 `json:"progressPercent"`
	RemainingDistance  float64 `json:"remainingDistance"`
	ElapsedTaskSeconds float64 `json:"elapsedTaskSeconds"`
}

// Info returns a snapshot of one agent.
func (fm *FleetManager) Info(agentID int) (AgentInfo, error) {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return fm.infoLocked(agentID)
}

// Infos returns snapshots of every agent in ascending ID order.
func (fm *FleetManager) Infos() []AgentInfo {
	fm.mu.RLock()
	defer fm.mu.RUnlock()

	ids := make([]int, 0, len(fm.agents))
	for id := range fm.agents {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]AgentInfo, 0, len(ids))
	for _, id := range ids {
		info, err := fm.infoLocked(id)
		if err == nil {
			out = append(out, info)
		}
	}
	return out
}

func (fm *FleetManager) infoLocked(agentID int) (AgentInfo, error) {
	agent, ok := fm.agents[agentID]
	if !ok {
		return AgentInfo{}, fmt.Errorf("info of %d: %w", agentID, ErrAgentNotFound)
	}
	x, y, _ := fm.positionLocked(agentID)

	info := AgentInfo{
		ID:                agent.ID,
		X:                 x,
		Y:                 y,
		Status:            agent.Status.String(),
		BatteryPercent:    agent.Energy,
		ColorTag:          agent.ColorTag,
		CurrentVertex:     agent.CurrentVertex,
		RemainingPath:     append([]int(nil), agent.Path...),
		ProgressPercent:   agent.Progress * 100,
		RemainingDistance: fm.remainingDistance(agent),
	}
	if agent.Destination != model.NoVertex {
		dest := agent.Destination
		info.DestinationVertex = &dest
	}
	if !agent.TaskStart.IsZero() {
		info.ElapsedTaskSeconds = fm.now().Sub(agent.TaskStart).Seconds()
	}
	return info, nil
}

// remainingDistance is the uncovered fraction of the current lane plus the
// full lengths of all subsequent lanes.
func (fm *FleetManager) remainingDistance(agent *model.Agent) float64 {
	if len(agent.Path) < 2 {
		return 0
	}
	first := Distance(fm.graph.Vertex(agent.Path[0]), fm.graph.Vertex(agent.Path[1]))
	return first*(1-agent.Progress) + PathDistance(fm.graph, agent.Path[1:])
}

// OccupancySnapshot returns vertex index -> occupying agent ID for every
// occupied vertex, taken under the read lock so it is consistent with Tick.
func (fm *FleetManager) OccupancySnapshot() map[int]int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	out := make(map[int]int)
	for _, v := range fm.graph.Vertices() {
		if v.OccupiedBy != model.Unoccupied {
			out[v.Index] = v.OccupiedBy
		}
	}
	return out
}

// AgentCount returns the number of agents ever spawned and still tracked.
func (fm *FleetManager) AgentCount() int {
	fm.mu.RLock()
	defer fm.mu.RUnlock()
	return len(fm.agents)
}

func (fm *FleetManager) taskAssigned(result string) {
	if fm.metrics != nil {
		fm.metrics.TaskAssigned(result)
	}
}

func (fm *FleetManager) recordAgentCounts() {
	if fm.metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, agent := range fm.agents {
		counts[agent.Status.String()]++
	}
	fm.metrics.SetAgentCounts(counts)
}
