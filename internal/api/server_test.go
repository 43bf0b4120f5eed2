package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"

	"github.com/routewise/fleet-simulator/core"
	"github.com/routewise/fleet-simulator/internal/logging"
	"github.com/routewise/fleet-simulator/model"
)

func testRouter(t *testing.T) (*mux.Router, *core.FleetManager) {
	t.Helper()
	g, err := core.NewNavGraph("test",
		[]*model.Vertex{
			{Index: 0, X: 0, Y: 0},
			{Index: 1, X: 1, Y: 0},
			{Index: 2, X: 2, Y: 0, IsCharger: true},
		},
		[]*model.Lane{
			{Start: 0, End: 1}, {Start: 1, End: 0},
			{Start: 1, End: 2}, {Start: 2, End: 1},
		},
	)
	if err != nil {
		t.Fatalf("NewNavGraph error: %v", err)
	}
	fleet := core.NewFleetManager(g, core.NewTrafficManager(g))
	return NewServer(fleet, g, logging.Noop(), nil).Router(), fleet
}

func doJSON(t *testing.T, router *mux.Router, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func TestHealthz(t *testing.T) {
	router, _ := testRouter(t)
	rec := doJSON(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestSpawnEndpoint(t *testing.T) {
	router, _ := testRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("spawn status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		AgentID int `json:"agentId"`
	}
	decodeBody(t, rec, &resp)
	if resp.AgentID != 1 {
		t.Fatalf("agentId = %d, want 1", resp.AgentID)
	}

	if rec := doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`); rec.Code != http.StatusConflict {
		t.Fatalf("spawn on occupied vertex status = %d, want 409", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 42}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("spawn out of range status = %d, want 400", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodPost, "/api/v1/agents", `not json`); rec.Code != http.StatusBadRequest {
		t.Fatalf("spawn with bad body status = %d, want 400", rec.Code)
	}
}

func TestAssignTaskEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/agents/1/task", `{"destination": 2}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("assign status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Assigned bool `json:"assigned"`
	}
	decodeBody(t, rec, &resp)
	if !resp.Assigned {
		t.Fatalf("assigned = false on a free route")
	}

	// Assigning the current vertex is a negative outcome, still HTTP 200.
	rec = doJSON(t, router, http.MethodPost, "/api/v1/agents/1/task", `{"destination": 0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("negative assign status = %d, want 200", rec.Code)
	}
	decodeBody(t, rec, &resp)
	if resp.Assigned {
		t.Fatalf("assigned = true for the agent's own vertex")
	}
}

func TestAgentInfoEndpoint(t *testing.T) {
	router, fleet := testRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`)
	fleet.AssignTask(1, 2)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents/1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("info status = %d", rec.Code)
	}
	var info core.AgentInfo
	decodeBody(t, rec, &info)
	if info.ID != 1 || info.Status != "MOVING" {
		t.Fatalf("info = %+v, want agent 1 MOVING", info)
	}
	if info.DestinationVertex == nil || *info.DestinationVertex != 2 {
		t.Fatalf("destination = %v, want 2", info.DestinationVertex)
	}

	if rec := doJSON(t, router, http.MethodGet, "/api/v1/agents/99", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("unknown agent status = %d, want 404", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodGet, "/api/v1/agents/abc", ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid id status = %d, want 400", rec.Code)
	}
}

func TestListAgentsEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 1}`)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var infos []core.AgentInfo
	decodeBody(t, rec, &infos)
	if len(infos) != 2 || infos[0].ID != 1 || infos[1].ID != 2 {
		t.Fatalf("list = %+v, want agents 1 and 2 in order", infos)
	}
}

func TestPositionEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 1}`)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/agents/1/position", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("position status = %d", rec.Code)
	}
	var pos struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	decodeBody(t, rec, &pos)
	if pos.X != 1 || pos.Y != 0 {
		t.Fatalf("position = (%g,%g), want (1,0)", pos.X, pos.Y)
	}
}

func TestGraphEndpoint(t *testing.T) {
	router, _ := testRouter(t)
	doJSON(t, router, http.MethodPost, "/api/v1/agents", `{"vertex": 0}`)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/graph", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("graph status = %d", rec.Code)
	}
	var resp struct {
		Name     string `json:"name"`
		Vertices []struct {
			Index     int  `json:"index"`
			IsCharger bool `json:"isCharger"`
			Occupied  bool `json:"occupied"`
		} `json:"vertices"`
		Lanes []struct {
			Start int `json:"start"`
			End   int `json:"end"`
		} `json:"lanes"`
	}
	decodeBody(t, rec, &resp)
	if resp.Name != "test" || len(resp.Vertices) != 3 || len(resp.Lanes) != 4 {
		t.Fatalf("graph = %+v", resp)
	}
	if !resp.Vertices[0].Occupied || resp.Vertices[1].Occupied {
		t.Fatalf("occupancy flags wrong: %+v", resp.Vertices)
	}
	if !resp.Vertices[2].IsCharger {
		t.Fatalf("vertex 2 charger flag missing")
	}
}
