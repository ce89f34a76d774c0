package progress

import (
	"context"
	"fmt"
	"time"
)

// ExampleHub_Emit demonstrates emitting an event and flushing via Close.
func ExampleHub_Emit() {
	total := 0
	hub := NewHub(HubConfig{
		BufferSize: 4,
		MaxBatch:   1,
		MaxWait:    time.Second,
	}, SinkFunc(func(_ context.Context, batch []Event) error {
		total += len(batch)
		return nil
	}))

	hub.Emit(Event{RunID: "run-1", TS: time.Unix(0, 0), Stage: StageRunStart})
	if err := hub.Close(context.Background()); err != nil {
		panic(err)
	}

	fmt.Printf("events forwarded: %d\n", total)
	// Output:
	// events forwarded: 1
}

// ExampleTracker shows a run's percentage moving forward and completing.
func ExampleTracker() {
	tracker, err := NewTracker(8)
	if err != nil {
		panic(err)
	}
	tracker.Start("run-1")
	tracker.Advance("run-1", 50)
	tracker.Advance("run-1", 20)
	st, _ := tracker.Get("run-1")
	fmt.Println(st.Percentage, st.Running)

	tracker.Complete("run-1")
	st, _ = tracker.Get("run-1")
	fmt.Println(st.Percentage, st.Running)
	// Output:
	// 50 true
	// 100 false
}
