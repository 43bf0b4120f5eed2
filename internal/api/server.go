// Package api exposes the fleet engine over a small HTTP JSON surface.
// This is the boundary the presentation layer talks to; the engine itself
// stays a synchronous in-process API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/routewise/fleet-simulator/core"
	"github.com/routewise/fleet-simulator/internal/logging"
	"github.com/routewise/fleet-simulator/internal/observability"
)

// Server wires the fleet manager and graph into HTTP handlers.
type Server struct {
	fleet   *core.FleetManager
	graph   *core.NavGraph
	log     logging.Logger
	metrics *observability.FleetCollector
	tracer  trace.Tracer
}

// NewServer constructs the API server. metrics may be nil.
func NewServer(fleet *core.FleetManager, graph *core.NavGraph, log logging.Logger, metrics *observability.FleetCollector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{
		fleet:   fleet,
		graph:   graph,
		log:     log,
		metrics: metrics,
		tracer:  otel.Tracer("fleet-api"),
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Handle("/healthz", s.instrument("/healthz", s.handleHealth)).Methods(http.MethodGet)
	r.Handle("/api/v1/agents", s.instrument("/api/v1/agents", s.handleSpawn)).Methods(http.MethodPost)
	r.Handle("/api/v1/agents", s.instrument("/api/v1/agents", s.handleListAgents)).Methods(http.MethodGet)
	r.Handle("/api/v1/agents/{id}", s.instrument("/api/v1/agents/{id}", s.handleAgentInfo)).Methods(http.MethodGet)
	r.Handle("/api/v1/agents/{id}/task", s.instrument("/api/v1/agents/{id}/task", s.handleAssignTask)).Methods(http.MethodPost)
	r.Handle("/api/v1/agents/{id}/position", s.instrument("/api/v1/agents/{id}/position", s.handlePosition)).Methods(http.MethodGet)
	r.Handle("/api/v1/graph", s.instrument("/api/v1/graph", s.handleGraph)).Methods(http.MethodGet)
	return r
}

// instrument stacks request-id logging, a span, and metrics around a handler.
func (s *Server) instrument(route string, h http.HandlerFunc) http.Handler {
	wrapped := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, reqLog := logging.WithRequestLogger(r.Context(), s.log)
		ctx, span := s.tracer.Start(ctx, route,
			trace.WithAttributes(
				attribute.String("http.route", route),
				attribute.String("http.method", r.Method),
			),
		)
		defer span.End()

		reqLog.Debug(ctx, "api request",
			logging.String("route", route),
			logging.String("method", r.Method),
		)
		h(w, r.WithContext(ctx))
	})
	if s.metrics != nil {
		return s.metrics.Middleware(route, wrapped)
	}
	return wrapped
}

type spawnRequest struct {
	Vertex int `json:"vertex"`
}

type spawnResponse struct {
	AgentID int `json:"agentId"`
}

func (s *Server) handleSpawn(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := s.fleet.Spawn(req.Vertex)
	switch {
	case errors.Is(err, core.ErrVertexOutOfRange):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrVertexOccupied):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusCreated, spawnResponse{AgentID: id})
	}
}

type assignRequest struct {
	Destination int `json:"destination"`
}

type assignResponse struct {
	Assigned bool `json:"assigned"`
}

func (s *Server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Assignment failure is a normal negative outcome (blocked route, no
	// path, agent en route to charger), so the response is 200 with a flag
	// rather than an error status.
	assigned := s.fleet.AssignTask(id, req.Destination)
	writeJSON(w, http.StatusOK, assignResponse{Assigned: assigned})
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.fleet.Infos())
}

func (s *Server) handleAgentInfo(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	info, err := s.fleet.Info(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type positionResponse struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (s *Server) handlePosition(w http.ResponseWriter, r *http.Request) {
	id, ok := agentID(w, r)
	if !ok {
		return
	}
	x, y, err := s.fleet.Position(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, positionResponse{X: x, Y: y})
}

type graphVertexJSON struct {
	Index     int     `json:"index"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Name      string  `json:"name,omitempty"`
	IsCharger bool    `json:"isCharger"`
	Occupied  bool    `json:"occupied"`
}

type graphLaneJSON struct {
	Start      int     `json:"start"`
	End        int     `json:"end"`
	SpeedLimit float64 `json:"speedLimit,omitempty"`
}

type graphResponse struct {
	Name     string            `json:"name"`
	Vertices []graphVertexJSON `json:"vertices"`
	Lanes    []graphLaneJSON   `json:"lanes"`
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	occupied := s.fleet.OccupancySnapshot()
	resp := graphResponse{Name: s.graph.Name}
	for _, v := range s.graph.Vertices() {
		_, occ := occupied[v.Index]
		resp.Vertices = append(resp.Vertices, graphVertexJSON{
			Index:     v.Index,
			X:         v.X,
			Y:         v.Y,
			Name:      v.Name,
			IsCharger: v.IsCharger,
			Occupied:  occ,
		})
	}
	for _, l := range s.graph.Lanes() {
		resp.Lanes = append(resp.Lanes, graphLaneJSON{Start: l.Start, End: l.End, SpeedLimit: l.SpeedLimit})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func agentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid agent id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
