// Package progress defines the event structures emitted by the crawl pipeline.
package progress

import (
	"errors"
	"fmt"
	"time"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart     Stage = "RUN_START"
	StageTargetDone   Stage = "TARGET_DONE"
	StageTargetFailed Stage = "TARGET_FAILED"
	StageRunDone      Stage = "RUN_DONE"
	StageRunError     Stage = "RUN_ERROR"
)

// Event captures a single milestone of a crawl run.
type Event struct {
	// RunID identifies the crawl run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle or target milestone occurred.
	Stage Stage
	// Platform is the platform tag of the run.
	Platform string
	// Target is the page link for target-scoped events.
	Target string
	// Targets is the deduplicated target count of the run.
	Targets int
	// Percentage is the completion reported with the event, if any.
	Percentage int
	// Succeeded and Failed carry final counts on RUN_DONE.
	Succeeded int
	Failed    int
	// Dur captures elapsed time for targets and whole runs.
	Dur time.Duration
	// Note lets emitters attach low-volume debug context (e.g. error text).
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageTargetDone, StageTargetFailed:
		if e.Target == "" {
			return fmt.Errorf("%s requires target", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	if e.Percentage < 0 || e.Percentage > 100 {
		return errors.New("percentage must be within [0,100]")
	}
	return nil
}

// Terminal reports whether the event closes a run.
func (e Event) Terminal() bool {
	return e.Stage == StageRunDone || e.Stage == StageRunError
}
