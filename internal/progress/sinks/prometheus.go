package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/review-trends/internal/progress"
)

// PrometheusSink exports crawl progress metrics via Prometheus. It owns all
// collectors for runs started/completed/running and per-platform target
// outcomes.
type PrometheusSink struct {
	runsStarted   *prometheus.CounterVec
	runsCompleted *prometheus.CounterVec
	runsRunning   prometheus.Gauge
	runDuration   *prometheus.HistogramVec

	targets        *prometheus.CounterVec
	targetDuration *prometheus.HistogramVec

	tracker *runSet
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewtrends_runs_started_total",
			Help: "Crawl runs started partitioned by platform.",
		}, []string{"platform"}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewtrends_runs_completed_total",
			Help: "Crawl runs completed partitioned by platform and result.",
		}, []string{"platform", "result"}),
		runsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "reviewtrends_runs_running",
			Help: "Current number of running crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewtrends_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1200, 3600},
		}, []string{"result"}),
		targets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewtrends_targets_total",
			Help: "Processed targets partitioned by platform and outcome.",
		}, []string{"platform", "outcome"}),
		targetDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewtrends_target_duration_seconds",
			Help:    "Time spent per target partitioned by platform.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"platform"}),
		tracker: newRunSet(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsRunning,
		s.runDuration,
		s.targets,
		s.targetDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	platform := evt.Platform
	if platform == "" {
		platform = "unknown"
	}
	switch evt.Stage {
	case progress.StageRunStart:
		s.runsStarted.WithLabelValues(platform).Inc()
		if s.tracker.add(evt.RunID) {
			s.runsRunning.Inc()
		}
	case progress.StageRunDone, progress.StageRunError:
		result := "success"
		if evt.Stage == progress.StageRunError {
			result = "error"
		}
		s.runsCompleted.WithLabelValues(platform, result).Inc()
		if evt.Dur > 0 {
			s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
		}
		if s.tracker.remove(evt.RunID) {
			s.runsRunning.Dec()
		}
	case progress.StageTargetDone, progress.StageTargetFailed:
		outcome := "extracted"
		if evt.Stage == progress.StageTargetFailed {
			outcome = "skipped"
		}
		s.targets.WithLabelValues(platform, outcome).Inc()
		if evt.Dur > 0 {
			s.targetDuration.WithLabelValues(platform).Observe(evt.Dur.Seconds())
		}
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runSet struct {
	mu      sync.Mutex
	running map[string]struct{}
}

func newRunSet() *runSet {
	return &runSet{running: make(map[string]struct{})}
}

func (r *runSet) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; ok {
		return false
	}
	r.running[id] = struct{}{}
	return true
}

func (r *runSet) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.running[id]; !ok {
		return false
	}
	delete(r.running, id)
	return true
}
