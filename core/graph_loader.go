// core/graph_loader.go
package core

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/routewise/fleet-simulator/model"
)

// The graph file format is a building description keyed by level name:
//
//	{
//	  "building_name": "warehouse",
//	  "levels": {
//	    "l0": {
//	      "vertices": [[x, y, {"name": "A", "is_charger": true}], ...],
//	      "lanes": [[start, end, {"speed_limit": 2.0}], ...]
//	    }
//	  }
//	}
//
// Vertex and lane entries are positional tuples with an optional trailing
// attribute object. Only one level is orchestrated; when several are
// present the lexicographically first level name wins, so loading is
// deterministic.

// internal JSON shapes, unexported so the format can evolve freely.
type graphFileJSON struct {
	BuildingName string                   `json:"building_name"`
	Levels       map[string]levelDataJSON `json:"levels"`
}

type levelDataJSON struct {
	Vertices []json.RawMessage `json:"vertices"`
	Lanes    []json.RawMessage `json:"lanes"`
}

type vertexAttrsJSON struct {
	Name      string `json:"name"`
	IsCharger bool   `json:"is_charger"`
}

type laneAttrsJSON struct {
	SpeedLimit float64 `json:"speed_limit"`
}

// LoadNavGraph reads a JSON graph description from r and assembles a
// validated NavGraph. It fails on JSON or structural errors; semantic
// validation (dense indices, in-range lane endpoints) is NewNavGraph's job.
func LoadNavGraph(r io.Reader) (*NavGraph, error) {
	var payload graphFileJSON
	dec := json.NewDecoder(r)
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("load nav graph: decode failed: %w", err)
	}
	if len(payload.Levels) == 0 {
		return nil, fmt.Errorf("load nav graph: no levels defined")
	}

	names := make([]string, 0, len(payload.Levels))
	for name := range payload.Levels {
		names = append(names, name)
	}
	sort.Strings(names)
	level := payload.Levels[names[0]]

	vertices := make([]*model.Vertex, 0, len(level.Vertices))
	for i, raw := range level.Vertices {
		v, err := decodeVertexTuple(i, raw)
		if err != nil {
			return nil, fmt.Errorf("load nav graph: %w", err)
		}
		vertices = append(vertices, v)
	}

	lanes := make([]*model.Lane, 0, len(level.Lanes))
	for i, raw := range level.Lanes {
		l, err := decodeLaneTuple(i, raw)
		if err != nil {
			return nil, fmt.Errorf("load nav graph: %w", err)
		}
		lanes = append(lanes, l)
	}

	return NewNavGraph(payload.BuildingName, vertices, lanes)
}

// decodeVertexTuple parses [x, y] or [x, y, {attrs}].
func decodeVertexTuple(index int, raw json.RawMessage) (*model.Vertex, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("vertex %d: not a tuple: %w", index, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("vertex %d: want [x, y, {attrs}], got %d elements", index, len(parts))
	}

	var x, y float64
	if err := json.Unmarshal(parts[0], &x); err != nil {
		return nil, fmt.Errorf("vertex %d: bad x: %w", index, err)
	}
	if err := json.Unmarshal(parts[1], &y); err != nil {
		return nil, fmt.Errorf("vertex %d: bad y: %w", index, err)
	}

	var attrs vertexAttrsJSON
	if len(parts) > 2 {
		if err := json.Unmarshal(parts[2], &attrs); err != nil {
			return nil, fmt.Errorf("vertex %d: bad attributes: %w", index, err)
		}
	}

	return &model.Vertex{
		Index:      index,
		X:          x,
		Y:          y,
		Name:       attrs.Name,
		IsCharger:  attrs.IsCharger,
		OccupiedBy: model.Unoccupied,
	}, nil
}

// decodeLaneTuple parses [start, end] or [start, end, {attrs}].
func decodeLaneTuple(index int, raw json.RawMessage) (*model.Lane, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, fmt.Errorf("lane %d: not a tuple: %w", index, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("lane %d: want [start, end, {attrs}], got %d elements", index, len(parts))
	}

	var start, end int
	if err := json.Unmarshal(parts[0], &start); err != nil {
		return nil, fmt.Errorf("lane %d: bad start: %w", index, err)
	}
	if err := json.Unmarshal(parts[1], &end); err != nil {
		return nil, fmt.Errorf("lane %d: bad end: %w", index, err)
	}

	var attrs laneAttrsJSON
	if len(parts) > 2 {
		if err := json.Unmarshal(parts[2], &attrs); err != nil {
			return nil, fmt.Errorf("lane %d: bad attributes: %w", index, err)
		}
	}

	return &model.Lane{Start: start, End: end, SpeedLimit: attrs.SpeedLimit}, nil
}
