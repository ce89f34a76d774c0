// Package extractor reads one establishment record from a loaded page through
// an ordered chain of isolated steps.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/metrics"
)

// ReviewDateLayout is the day/month/year format shown on review entries.
const ReviewDateLayout = "02/01/2006"

// Config bounds the time spent on each extraction stage.
type Config struct {
	// NavTimeout covers navigation plus the wait for the title marker.
	NavTimeout time.Duration
	// StepTimeout bounds each non-fatal step.
	StepTimeout time.Duration
	// Settle overrides every profile's settle delay when positive.
	Settle time.Duration
}

// Extractor implements crawler.Extractor using per-platform profiles.
type Extractor struct {
	profiles map[crawler.Platform]Profile
	cfg      Config
	logger   *zap.Logger
	sleep    func(context.Context, time.Duration) error
}

var _ crawler.Extractor = (*Extractor)(nil)

// New builds an Extractor. Without explicit profiles the built-in ones are used.
func New(cfg Config, logger *zap.Logger, profiles ...Profile) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.NavTimeout <= 0 {
		cfg.NavTimeout = 45 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	byPlatform := DefaultProfiles()
	if len(profiles) > 0 {
		byPlatform = make(map[crawler.Platform]Profile, len(profiles))
		for _, p := range profiles {
			byPlatform[p.Platform] = p
		}
	}
	return &Extractor{
		profiles: byPlatform,
		cfg:      cfg,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// step is one link of the fallback chain. A step whose prerequisite did not
// succeed is recorded as skipped without running.
type step struct {
	name     crawler.Step
	requires crawler.Step
	run      func(ctx context.Context, x *extraction) (crawler.StepStatus, error)
}

type extraction struct {
	page    crawler.Page
	profile Profile
	record  *crawler.Record
	sleep   func(context.Context, time.Duration) error
}

var pipeline = []step{
	{name: crawler.StepReveal, run: revealReviews},
	{name: crawler.StepCount, requires: crawler.StepReveal, run: readCount},
	{name: crawler.StepDates, requires: crawler.StepReveal, run: readDates},
}

// Extract loads link into page and reads the establishment record. Only a
// title failure is returned as an error; every later step falls back to its
// default value.
func (e *Extractor) Extract(
	ctx context.Context,
	page crawler.Page,
	platform crawler.Platform,
	link string,
) (crawler.Record, error) {
	profile, ok := e.profiles[platform]
	if !ok {
		return crawler.Record{}, fmt.Errorf("%w: no extraction profile for %q", crawler.ErrInvalidRequest, platform)
	}
	logger := e.logger.With(zap.String("platform", string(platform)), zap.String("target", link))

	name, err := e.loadTitle(ctx, page, profile, link)
	if err != nil {
		return crawler.Record{}, crawler.PageLoadError{Link: link, Err: err}
	}

	record := crawler.Record{
		Name:        name,
		ReviewCount: crawler.DefaultReviewCount,
		Steps:       []crawler.StepResult{{Step: crawler.StepTitle, Status: crawler.StepOK}},
	}
	x := &extraction{page: page, profile: e.withSettle(profile), record: &record, sleep: e.sleep}

	for _, s := range pipeline {
		if s.requires != "" && record.Status(s.requires) != crawler.StepOK {
			record.Steps = append(record.Steps, crawler.StepResult{Step: s.name, Status: crawler.StepSkipped})
			continue
		}
		status, err := e.runStep(ctx, s, x)
		res := crawler.StepResult{Step: s.name, Status: status}
		if err != nil {
			res.Status = crawler.StepDefault
			res.Error = err.Error()
			metrics.ObserveStepFailure(string(platform), string(s.name))
			logger.Warn("extraction step fell back to default", zap.String("step", string(s.name)), zap.Error(err))
		}
		record.Steps = append(record.Steps, res)
	}
	return record, nil
}

func (e *Extractor) loadTitle(ctx context.Context, page crawler.Page, profile Profile, link string) (string, error) {
	navCtx, cancel := context.WithTimeout(ctx, e.cfg.NavTimeout)
	defer cancel()
	if err := page.Navigate(navCtx, link); err != nil {
		return "", fmt.Errorf("navigate: %w", err)
	}
	if err := page.WaitVisible(navCtx, profile.Title); err != nil {
		return "", fmt.Errorf("wait for title: %w", err)
	}
	name, err := page.Text(navCtx, profile.Title)
	if err != nil {
		return "", fmt.Errorf("read title: %w", err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("title marker is empty")
	}
	return name, nil
}

func (e *Extractor) runStep(ctx context.Context, s step, x *extraction) (crawler.StepStatus, error) {
	timeout := e.cfg.StepTimeout
	if s.name == crawler.StepReveal {
		timeout += x.profile.Settle
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.run(stepCtx, x)
}

func (e *Extractor) withSettle(p Profile) Profile {
	if e.cfg.Settle > 0 && p.Settle > 0 {
		p.Settle = e.cfg.Settle
	}
	return p
}

func revealReviews(ctx context.Context, x *extraction) (crawler.StepStatus, error) {
	p := x.profile
	if p.NoTriggerMeansNoReviews {
		present, err := x.page.Exists(ctx, p.RevealTrigger)
		if err != nil {
			return crawler.StepDefault, fmt.Errorf("look up reviews trigger: %w", err)
		}
		if !present {
			x.record.ReviewCount = crawler.PlaceholderNoReviews
			return crawler.StepAbsent, nil
		}
	}
	if err := x.page.Click(ctx, p.RevealTrigger); err != nil {
		return crawler.StepDefault, fmt.Errorf("open reviews panel: %w", err)
	}
	if err := x.page.WaitVisible(ctx, p.RevealPanel); err != nil {
		return crawler.StepDefault, fmt.Errorf("wait for reviews panel: %w", err)
	}
	if p.Settle > 0 {
		if err := x.sleep(ctx, p.Settle); err != nil {
			return crawler.StepDefault, fmt.Errorf("settle reviews panel: %w", err)
		}
	}
	return crawler.StepOK, nil
}

func readCount(ctx context.Context, x *extraction) (crawler.StepStatus, error) {
	text, err := x.page.Text(ctx, x.profile.Count)
	if err != nil {
		return crawler.StepDefault, fmt.Errorf("read review count: %w", err)
	}
	text = strings.TrimSpace(strings.Replace(text, x.profile.CountSuffix, "", 1))
	if text == "" {
		return crawler.StepDefault, errors.New("review count marker is empty")
	}
	x.record.ReviewCount = text
	return crawler.StepOK, nil
}

func readDates(ctx context.Context, x *extraction) (crawler.StepStatus, error) {
	texts, err := x.page.TextAll(ctx, x.profile.Dates)
	if err != nil {
		return crawler.StepDefault, fmt.Errorf("read review dates: %w", err)
	}
	latest, ok := LatestDate(texts, x.profile.DatePlaceholder)
	if !ok {
		return crawler.StepDefault, nil
	}
	formatted := latest.Format(ReviewDateLayout)
	x.record.LastReviewDate = &formatted
	return crawler.StepOK, nil
}

// LatestDate parses day/month/year strings and returns the most recent one.
// Placeholder values and unparsable entries are ignored.
func LatestDate(values []string, placeholder string) (time.Time, bool) {
	var (
		latest time.Time
		found  bool
	)
	for _, raw := range values {
		raw = strings.TrimSpace(raw)
		if raw == "" || raw == placeholder {
			continue
		}
		d, err := time.Parse("2/1/2006", raw)
		if err != nil {
			continue
		}
		if !found || d.After(latest) {
			latest = d
			found = true
		}
	}
	return latest, found
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
