package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/routewise/fleet-simulator/core"
	"github.com/routewise/fleet-simulator/internal/api"
	"github.com/routewise/fleet-simulator/internal/config"
	"github.com/routewise/fleet-simulator/internal/logging"
	"github.com/routewise/fleet-simulator/internal/observability"
	"github.com/routewise/fleet-simulator/timectrl"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional)")
	listenAddr := flag.String("listen-addr", "", "override the HTTP API listen address")
	metricsAddr := flag.String("metrics-addr", "", "override the Prometheus /metrics address")
	graphPath := flag.String("graph", "", "override the navigation graph file")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("error", err.Error()))
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if *graphPath != "" {
		cfg.GraphPath = *graphPath
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	collector, err := observability.NewFleetCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}

	graph, err := loadGraph(cfg.GraphPath)
	if err != nil {
		log.Error(ctx, "failed to load navigation graph",
			logging.String("path", cfg.GraphPath),
			logging.String("error", err.Error()),
		)
		os.Exit(1)
	}
	collector.SetGraphSize(graph.VertexCount(), len(graph.Lanes()))
	log.Info(ctx, "navigation graph loaded",
		logging.String("path", cfg.GraphPath),
		logging.String("name", graph.Name),
		logging.Int("vertices", graph.VertexCount()),
		logging.Int("lanes", len(graph.Lanes())),
	)

	traffic := core.NewTrafficManager(graph)
	fleet := core.NewFleetManager(graph, traffic,
		core.WithLogger(log.With(logging.String("component", "fleet"))),
		core.WithMetricsRecorder(collector),
		core.WithParams(cfg.Params()),
	)

	mode := timectrl.RealTime
	if cfg.Accelerated {
		mode = timectrl.Accelerated
	}
	controller := timectrl.NewTimeController(time.Now(), cfg.Tick, mode)
	controller.AddListener(func(delta time.Duration) {
		fleet.Tick(delta.Seconds())
	})

	stop := make(chan struct{})
	tickerDone := controller.Start(0, stop)

	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	apiSrv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(fleet, graph, log, collector).Router(),
	}
	go func() {
		log.Info(ctx, "starting fleet API server", logging.String("addr", cfg.ListenAddr))
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.String("error", err.Error()))
		}
	}()

	stopCtx, cancelSignals := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancelSignals()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down fleet server")
	close(stop)
	<-tickerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = apiSrv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)
}

func loadGraph(path string) (*core.NavGraph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return core.LoadNavGraph(f)
}

func serveMetrics(addr string, collector *observability.FleetCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
