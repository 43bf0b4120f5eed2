package core

import (
	"strings"
	"testing"
)

const sampleGraphJSON = `{
  "building_name": "depot",
  "levels": {
    "l0": {
      "vertices": [
        [0, 0, {"name": "dock"}],
        [1, 0, {"name": "charge_1", "is_charger": true}],
        [2, 0.5]
      ],
      "lanes": [
        [0, 1],
        [1, 2, {"speed_limit": 0.1}]
      ]
    }
  }
}`

func TestLoadNavGraph(t *testing.T) {
	g, err := LoadNavGraph(strings.NewReader(sampleGraphJSON))
	if err != nil {
		t.Fatalf("LoadNavGraph error: %v", err)
	}

	if g.Name != "depot" {
		t.Fatalf("Name = %q, want depot", g.Name)
	}
	if g.VertexCount() != 3 {
		t.Fatalf("VertexCount = %d, want 3", g.VertexCount())
	}

	v := g.Vertex(1)
	if v.Name != "charge_1" || !v.IsCharger {
		t.Fatalf("vertex 1 = %+v, want charger named charge_1", v)
	}
	if got := g.Vertex(2); got.X != 2 || got.Y != 0.5 {
		t.Fatalf("vertex 2 coords = (%g,%g), want (2,0.5)", got.X, got.Y)
	}
	if got := g.Chargers(); len(got) != 1 || got[0] != 1 {
		t.Fatalf("Chargers = %v, want [1]", got)
	}

	lane := g.LaneBetween(1, 2)
	if lane == nil || lane.SpeedLimit != 0.1 {
		t.Fatalf("lane 1->2 = %+v, want speed limit 0.1", lane)
	}
	if lane := g.LaneBetween(0, 1); lane == nil || lane.SpeedLimit != 0 {
		t.Fatalf("lane 0->1 = %+v, want no speed limit", lane)
	}
}

func TestLoadNavGraphPicksFirstLevel(t *testing.T) {
	const multi = `{
	  "building_name": "tower",
	  "levels": {
	    "l1": {"vertices": [[0, 0], [1, 0], [2, 0]], "lanes": []},
	    "l0": {"vertices": [[0, 0]], "lanes": []}
	  }
	}`
	g, err := LoadNavGraph(strings.NewReader(multi))
	if err != nil {
		t.Fatalf("LoadNavGraph error: %v", err)
	}
	if g.VertexCount() != 1 {
		t.Fatalf("VertexCount = %d, want the single vertex of level l0", g.VertexCount())
	}
}

func TestLoadNavGraphErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
	}{
		{"invalid json", `{`},
		{"no levels", `{"building_name": "x", "levels": {}}`},
		{"short vertex tuple", `{"levels": {"l0": {"vertices": [[1]], "lanes": []}}}`},
		{"vertex not a tuple", `{"levels": {"l0": {"vertices": [{"x": 1}], "lanes": []}}}`},
		{"bad coordinate", `{"levels": {"l0": {"vertices": [["a", 0]], "lanes": []}}}`},
		{"short lane tuple", `{"levels": {"l0": {"vertices": [[0, 0], [1, 0]], "lanes": [[0]]}}}`},
		{"lane out of range", `{"levels": {"l0": {"vertices": [[0, 0]], "lanes": [[0, 9]]}}}`},
	}
	for _, tc := range cases {
		if _, err := LoadNavGraph(strings.NewReader(tc.in)); err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
	}
}
