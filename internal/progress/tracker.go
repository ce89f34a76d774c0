package progress

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultRetainedRuns bounds how many runs a Tracker remembers.
const DefaultRetainedRuns = 256

// State is the completion of one crawl run.
type State struct {
	RunID      string    `json:"run_id"`
	Percentage int       `json:"percentage"`
	Running    bool      `json:"running"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Tracker keeps the completion percentage per crawl run. Within a run the
// percentage never decreases; the least recently touched runs are evicted
// once the retention limit is reached.
type Tracker struct {
	mu   sync.Mutex
	runs *lru.Cache[string, State]
	now  func() time.Time
}

// NewTracker creates a Tracker retaining up to size runs.
func NewTracker(size int) (*Tracker, error) {
	if size <= 0 {
		size = DefaultRetainedRuns
	}
	cache, err := lru.New[string, State](size)
	if err != nil {
		return nil, fmt.Errorf("create progress cache: %w", err)
	}
	return &Tracker{runs: cache, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Start resets a run to 0 and marks it running.
func (t *Tracker) Start(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs.Add(runID, State{RunID: runID, Percentage: 0, Running: true, UpdatedAt: t.now()})
}

// Ensure registers an unknown run at 0 without disturbing a known one, and
// returns the current state.
func (t *Tracker) Ensure(runID string) State {
	t.mu.Lock()
	defer t.mu.Unlock()
	if st, ok := t.runs.Get(runID); ok {
		return st
	}
	st := State{RunID: runID, UpdatedAt: t.now()}
	t.runs.Add(runID, st)
	return st
}

// Advance raises the run's percentage. Lower values are ignored and the value
// is clamped to [0,100].
func (t *Tracker) Advance(runID string, percentage int) {
	percentage = max(0, min(100, percentage))
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.runs.Get(runID)
	if !ok {
		st = State{RunID: runID, Running: true}
	}
	if percentage > st.Percentage {
		st.Percentage = percentage
	}
	st.UpdatedAt = t.now()
	t.runs.Add(runID, st)
}

// Complete forces the run to 100 and clears its running flag.
func (t *Tracker) Complete(runID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs.Add(runID, State{RunID: runID, Percentage: 100, Running: false, UpdatedAt: t.now()})
}

// Get returns the run's state.
func (t *Tracker) Get(runID string) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs.Get(runID)
}

// Running lists runs that have not completed.
func (t *Tracker) Running() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []State
	for _, id := range t.runs.Keys() {
		if st, ok := t.runs.Peek(id); ok && st.Running {
			out = append(out, st)
		}
	}
	return out
}
