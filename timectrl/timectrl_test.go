package timectrl

import (
	"testing"
	"time"
)

func TestAcceleratedRunDeliversEveryTick(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	tc := NewTimeController(start, time.Second, Accelerated)

	var deltas []time.Duration
	tc.AddListener(func(delta time.Duration) {
		deltas = append(deltas, delta)
	})

	done := tc.Start(10*time.Second, nil)
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("accelerated run did not finish")
	}

	if len(deltas) != 10 {
		t.Fatalf("listener invoked %d times, want 10", len(deltas))
	}
	for i, d := range deltas {
		if d != time.Second {
			t.Fatalf("tick %d delta = %s, want 1s", i, d)
		}
	}
	if got := tc.Now(); !got.Equal(start.Add(10 * time.Second)) {
		t.Fatalf("Now = %s, want start+10s", got)
	}
}

func TestStopEndsRealTimeRun(t *testing.T) {
	tc := NewTimeController(time.Now(), 10*time.Millisecond, RealTime)

	ticks := 0
	tc.AddListener(func(time.Duration) { ticks++ })

	stop := make(chan struct{})
	done := tc.Start(0, stop)

	time.Sleep(50 * time.Millisecond)
	close(stop)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("controller did not stop")
	}
	if ticks == 0 {
		t.Fatalf("no ticks delivered before stop")
	}
}

func TestListenersRunInRegistrationOrder(t *testing.T) {
	tc := NewTimeController(time.Now(), time.Second, Accelerated)

	var order []int
	tc.AddListener(func(time.Duration) { order = append(order, 1) })
	tc.AddListener(func(time.Duration) { order = append(order, 2) })

	<-tc.Start(time.Second, nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("listener order = %v, want [1 2]", order)
	}
}
