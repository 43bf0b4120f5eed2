// fleet-sim runs a headless batch simulation: load a graph, spawn a few
// agents, hand out tasks, and print what happened. Useful for exercising the
// engine without the HTTP surface.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/routewise/fleet-simulator/core"
	"github.com/routewise/fleet-simulator/internal/logging"
	"github.com/routewise/fleet-simulator/timectrl"
)

func main() {
	graphPath := flag.String("graph", "configs/warehouse_graph.json", "navigation graph file")
	agents := flag.IntSlice("spawn", []int{0}, "vertex indices to spawn agents at")
	tasks := flag.IntSlice("task", nil, "destination per spawned agent, in spawn order")
	duration := flag.Duration("duration", 60*time.Second, "total simulation duration")
	tick := flag.Duration("tick", 100*time.Millisecond, "tick interval")
	accelerated := flag.Bool("accelerated", true, "run in accelerated mode (vs real-time)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	f, err := os.Open(*graphPath)
	if err != nil {
		log.Error(ctx, "failed to open graph", logging.String("path", *graphPath), logging.String("error", err.Error()))
		os.Exit(1)
	}
	graph, err := core.LoadNavGraph(f)
	f.Close()
	if err != nil {
		log.Error(ctx, "failed to load graph", logging.String("error", err.Error()))
		os.Exit(1)
	}

	traffic := core.NewTrafficManager(graph)
	fleet := core.NewFleetManager(graph, traffic, core.WithLogger(log))

	var ids []int
	for _, vertex := range *agents {
		id, err := fleet.Spawn(vertex)
		if err != nil {
			log.Error(ctx, "spawn failed", logging.Int("vertex", vertex), logging.String("error", err.Error()))
			os.Exit(1)
		}
		ids = append(ids, id)
	}

	for i, destination := range *tasks {
		if i >= len(ids) {
			break
		}
		if !fleet.AssignTask(ids[i], destination) {
			log.Warn(ctx, "task rejected",
				logging.Int("agent", ids[i]),
				logging.Int("destination", destination),
			)
		}
	}

	mode := timectrl.RealTime
	if *accelerated {
		mode = timectrl.Accelerated
	}
	controller := timectrl.NewTimeController(time.Now(), *tick, mode)
	controller.AddListener(func(delta time.Duration) {
		fleet.Tick(delta.Seconds())
	})

	<-controller.Start(*duration, nil)

	fmt.Println("final fleet state:")
	for _, info := range fleet.Infos() {
		fmt.Printf("  agent %d: status=%s vertex=%d battery=%.1f%% pos=(%.2f, %.2f)\n",
			info.ID, info.Status, info.CurrentVertex, info.BatteryPercent, info.X, info.Y)
	}
}
