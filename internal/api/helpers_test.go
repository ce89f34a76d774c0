package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/analytics"
	"github.com/JakeFAU/review-trends/internal/config"
	"github.com/JakeFAU/review-trends/internal/crawler"
)

type fakeIDGen struct {
	mu  sync.Mutex
	ids []string
}

func (f *fakeIDGen) NewID() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ids) == 0 {
		return "", errors.New("no ids left")
	}
	id := f.ids[0]
	f.ids = f.ids[1:]
	return id, nil
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []crawler.Request
	result crawler.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, req crawler.Request) (crawler.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return crawler.Result{}, f.err
	}
	res := f.result
	res.RunID = req.RunID
	res.Platform = req.Platform
	res.Targets = len(req.Targets)
	return res, nil
}

func (f *fakeRunner) lastCall() crawler.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return crawler.Request{}
	}
	return f.calls[len(f.calls)-1]
}

type fakeLocations struct {
	targets []crawler.Target
	err     error
}

func (f fakeLocations) Discover(_ context.Context, city, state string) ([]crawler.Target, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]crawler.Target, 0, len(f.targets))
	for _, t := range f.targets {
		t.City, t.State = city, state
		out = append(out, t)
	}
	return out, nil
}

type fakeReports struct {
	report analytics.Report
	err    error
}

func (f fakeReports) Report(context.Context) (analytics.Report, error) {
	return f.report, f.err
}

func testConfig() config.Config {
	return config.Config{
		Server: config.ServerConfig{
			RequestTimeoutSeconds: 30,
			MaxUploadMB:           1,
		},
		Progress: config.ProgressConfig{IntervalMillis: 10},
	}
}

func newTestServer(deps Deps) *Server {
	if deps.IDs == nil {
		deps.IDs = &fakeIDGen{ids: []string{"run-1", "run-2", "run-3"}}
	}
	if deps.Clock == nil {
		deps.Clock = &fakeClock{now: time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)}
	}
	return NewServer(deps, testConfig(), zap.NewNop())
}
