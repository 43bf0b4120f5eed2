package observability

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// FleetCollector bundles Prometheus metrics for the fleet engine and its
// HTTP API, and provides helpers to wire them into handlers.
type FleetCollector struct {
	gatherer prometheus.Gatherer

	APIRequests  *prometheus.CounterVec
	APIDurations *prometheus.HistogramVec

	TickDurations prometheus.Histogram
	Agents        *prometheus.GaugeVec
	Tasks         *prometheus.CounterVec
	Conflicts     prometheus.Counter
	Alternates    prometheus.Counter

	GraphVertices prometheus.Gauge
	GraphLanes    prometheus.Gauge
}

// NewFleetCollector registers fleet Prometheus metrics against the provided
// registerer, defaulting to the global Prometheus registry when nil.
// Registration tolerates collectors that already exist so repeated wiring in
// tests does not fail.
func NewFleetCollector(reg prometheus.Registerer) (*FleetCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	requests, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_api_requests_total",
		Help: "Total number of handled fleet API requests, labeled by route, method, and status code.",
	}, []string{"route", "method", "code"}), "fleet_api_requests_total")
	if err != nil {
		return nil, err
	}

	durations, err := registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_api_request_duration_seconds",
		Help:    "Fleet API request latency in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"route", "method"}), "fleet_api_request_duration_seconds")
	if err != nil {
		return nil, err
	}

	tickDurations, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fleet_tick_duration_seconds",
		Help:    "Wall-clock cost of one simulation tick.",
		Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
	}), "fleet_tick_duration_seconds")
	if err != nil {
		return nil, err
	}

	agents, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_agents",
		Help: "Current number of agents by status.",
	}, []string{"status"}), "fleet_agents")
	if err != nil {
		return nil, err
	}

	tasks, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_tasks_assigned_total",
		Help: "Task assignment attempts, labeled by result (ok, rejected, no_path, blocked).",
	}, []string{"result"}), "fleet_tasks_assigned_total")
	if err != nil {
		return nil, err
	}

	conflicts, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_reservation_conflicts_total",
		Help: "Path reservation attempts that failed on contention.",
	}), "fleet_reservation_conflicts_total")
	if err != nil {
		return nil, err
	}

	alternates, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fleet_alternate_routes_total",
		Help: "Tasks committed on a congestion-avoiding alternate route.",
	}), "fleet_alternate_routes_total")
	if err != nil {
		return nil, err
	}

	vertices, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_graph_vertices",
		Help: "Number of vertices in the loaded navigation graph.",
	}), "fleet_graph_vertices")
	if err != nil {
		return nil, err
	}

	lanes, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fleet_graph_lanes",
		Help: "Number of lanes in the loaded navigation graph.",
	}), "fleet_graph_lanes")
	if err != nil {
		return nil, err
	}

	return &FleetCollector{
		gatherer:      gatherer,
		APIRequests:   requests,
		APIDurations:  durations,
		TickDurations: tickDurations,
		Agents:        agents,
		Tasks:         tasks,
		Conflicts:     conflicts,
		Alternates:    alternates,
		GraphVertices: vertices,
		GraphLanes:    lanes,
	}, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *FleetCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Middleware records request counts and durations for HTTP handlers. route
// should be the route template, not the expanded URL, to bound cardinality.
func (c *FleetCollector) Middleware(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		if c == nil {
			return
		}
		if c.APIRequests != nil {
			c.APIRequests.WithLabelValues(route, r.Method, fmt.Sprintf("%d", sw.code)).Inc()
		}
		if c.APIDurations != nil {
			c.APIDurations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// SetGraphSize records the loaded graph dimensions.
func (c *FleetCollector) SetGraphSize(vertices, lanes int) {
	if c == nil {
		return
	}
	if c.GraphVertices != nil {
		c.GraphVertices.Set(float64(vertices))
	}
	if c.GraphLanes != nil {
		c.GraphLanes.Set(float64(lanes))
	}
}

// ---- core.FleetMetricsRecorder ----

// ObserveTick records the wall-clock cost of one tick.
func (c *FleetCollector) ObserveTick(d time.Duration) {
	if c == nil || c.TickDurations == nil {
		return
	}
	c.TickDurations.Observe(d.Seconds())
}

// SetAgentCounts drives the per-status agent gauges. Statuses absent from
// counts reset to zero so stale states do not linger.
func (c *FleetCollector) SetAgentCounts(counts map[string]int) {
	if c == nil || c.Agents == nil {
		return
	}
	c.Agents.Reset()
	for status, n := range counts {
		c.Agents.WithLabelValues(status).Set(float64(n))
	}
}

// TaskAssigned counts an assignment attempt by result.
func (c *FleetCollector) TaskAssigned(result string) {
	if c == nil || c.Tasks == nil {
		return
	}
	c.Tasks.WithLabelValues(result).Inc()
}

// ReservationConflict counts a failed whole-path reservation.
func (c *FleetCollector) ReservationConflict() {
	if c == nil || c.Conflicts == nil {
		return
	}
	c.Conflicts.Inc()
}

// AlternateRoute counts a task committed on the BFS fallback route.
func (c *FleetCollector) AlternateRoute() {
	if c == nil || c.Alternates == nil {
		return
	}
	c.Alternates.Inc()
}

// ---- registration helpers ----

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogramVec(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string) (*prometheus.HistogramVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGaugeVec(reg prometheus.Registerer, vec *prometheus.GaugeVec, name string) (*prometheus.GaugeVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.GaugeVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
