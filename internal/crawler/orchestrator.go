package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/policy/ratelimit"
	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/store"
	"github.com/JakeFAU/review-trends/internal/telemetry"
)

var tracer = telemetry.Tracer("crawler")

// Config controls Orchestrator behavior.
type Config struct {
	// TargetsPerSecond caps how fast pages on one host are opened across all
	// runs; 0 disables it.
	TargetsPerSecond float64
	// CaptureFailures stores page HTML for targets whose title never loaded.
	CaptureFailures bool
	// ArtifactPrefix is prepended to captured artifact paths.
	ArtifactPrefix string
}

// Orchestrator walks a target list sequentially inside one automation session.
type Orchestrator struct {
	browser   Browser
	extractor Extractor
	sink      IngestionSink
	tracker   ProgressTracker
	emitter   progress.Emitter
	artifacts ArtifactStore
	throttle  *ratelimit.Limiter
	clock     Clock
	cfg       Config
	logger    *zap.Logger
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithEmitter publishes lifecycle events to a progress hub.
func WithEmitter(emitter progress.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = emitter }
}

// WithArtifacts enables failure captures when Config.CaptureFailures is set.
func WithArtifacts(artifacts ArtifactStore) Option {
	return func(o *Orchestrator) { o.artifacts = artifacts }
}

// NewOrchestrator wires the pipeline collaborators.
func NewOrchestrator(
	browser Browser,
	extractor Extractor,
	sink IngestionSink,
	tracker ProgressTracker,
	clock Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		browser:   browser,
		extractor: extractor,
		sink:      sink,
		tracker:   tracker,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
	if cfg.TargetsPerSecond > 0 {
		o.throttle = ratelimit.New(ratelimit.Config{PerSecond: cfg.TargetsPerSecond, Burst: 1})
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run processes every target of the request. Per-target failures are recorded
// in the result; only a session start failure aborts the run.
func (o *Orchestrator) Run(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.RunID) == "" {
		return Result{}, fmt.Errorf("%w: run id is required", ErrInvalidRequest)
	}
	if _, err := ParsePlatform(string(req.Platform)); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	targets := DedupeTargets(req.Targets)
	ctx, span := tracer.Start(ctx, "crawl.run", trace.WithAttributes(
		attribute.String("run_id", req.RunID),
		attribute.String("platform", string(req.Platform)),
		attribute.Int("targets", len(targets)),
	))
	defer span.End()
	started := o.clock.Now()
	logger := o.logger.With(zap.String("run_id", req.RunID), zap.String("platform", string(req.Platform)))

	o.tracker.Start(req.RunID)
	o.emit(progress.Event{
		RunID:    req.RunID,
		TS:       started,
		Stage:    progress.StageRunStart,
		Platform: string(req.Platform),
		Targets:  len(targets),
	})
	logger.Info("crawl run started", zap.Int("targets", len(targets)))

	result := Result{
		RunID:    req.RunID,
		Platform: req.Platform,
		Targets:  len(targets),
		Items:    []Item{},
		Failed:   []Failure{},
		Started:  started,
	}

	session, err := o.browser.Start(ctx)
	if err != nil {
		o.tracker.Complete(req.RunID)
		finished := o.clock.Now()
		o.emit(progress.Event{
			RunID:    req.RunID,
			TS:       finished,
			Stage:    progress.StageRunError,
			Platform: string(req.Platform),
			Targets:  len(targets),
			Dur:      finished.Sub(started),
			Note:     err.Error(),
		})
		logger.Error("automation session start failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "session start failed")
		result.Finished = finished
		return result, SessionError{Err: err}
	}
	defer func() {
		if cerr := session.Close(); cerr != nil {
			logger.Warn("automation session close failed", zap.Error(cerr))
		}
	}()

	for i, target := range targets {
		if err := o.wait(ctx, target.Link); err != nil {
			result.Failed = append(result.Failed, Failure{Link: target.Link, Error: err.Error()})
		} else {
			item, err := o.processTarget(ctx, session, req, i, target, logger)
			if err != nil {
				result.Failed = append(result.Failed, Failure{Link: target.Link, Error: err.Error()})
			} else {
				result.Items = append(result.Items, item)
			}
		}
		o.tracker.Advance(req.RunID, Percentage(i+1, len(targets)))
	}

	o.tracker.Complete(req.RunID)
	result.Success = true
	result.Finished = o.clock.Now()
	o.emit(progress.Event{
		RunID:      req.RunID,
		TS:         result.Finished,
		Stage:      progress.StageRunDone,
		Platform:   string(req.Platform),
		Targets:    len(targets),
		Percentage: 100,
		Succeeded:  len(result.Items),
		Failed:     len(result.Failed),
		Dur:        result.Finished.Sub(started),
	})
	logger.Info("crawl run finished",
		zap.Int("succeeded", len(result.Items)),
		zap.Int("failed", len(result.Failed)),
		zap.Duration("duration", result.Finished.Sub(started)),
	)
	return result, nil
}

func (o *Orchestrator) processTarget(
	ctx context.Context,
	session Session,
	req Request,
	index int,
	target Target,
	logger *zap.Logger,
) (Item, error) {
	logger = logger.With(zap.String("target", target.Link))
	ctx, span := tracer.Start(ctx, "crawl.target", trace.WithAttributes(attribute.String("target", target.Link)))
	defer span.End()
	start := o.clock.Now()

	page, err := session.NewPage(ctx)
	if err != nil {
		o.targetFailed(req, target, start, err)
		logger.Error("open page failed", zap.Error(err))
		return Item{}, PageLoadError{Link: target.Link, Err: err}
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			logger.Warn("page close failed", zap.Error(cerr))
		}
	}()

	record, err := o.extractor.Extract(ctx, page, req.Platform, target.Link)
	if err != nil {
		o.captureFailure(ctx, page, req.RunID, index, logger)
		o.targetFailed(req, target, start, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "target skipped")
		logger.Error("target skipped", zap.Error(err))
		return Item{}, err
	}

	item := o.normalize(record, target)
	snap, err := o.sink.Create(ctx, store.NewSnapshot{
		RunID:         req.RunID,
		Establishment: item.Name,
		City:          item.City,
		State:         item.State,
		Platform:      string(req.Platform),
		Link:          item.Link,
		Reviews:       item.Reviews,
		ReviewsKnown:  item.ReviewsKnown,
		LastReview:    item.LastReview,
	})
	if err != nil {
		logger.Error("snapshot ingestion failed", zap.Error(err))
	} else {
		item.SnapshotID = snap.ID
	}

	done := o.clock.Now()
	o.emit(progress.Event{
		RunID:    req.RunID,
		TS:       done,
		Stage:    progress.StageTargetDone,
		Platform: string(req.Platform),
		Target:   target.Link,
		Dur:      done.Sub(start),
	})
	logger.Debug("target extracted",
		zap.String("name", item.Name),
		zap.Int("reviews", item.Reviews),
		zap.Bool("reviews_known", item.ReviewsKnown),
	)
	return item, nil
}

func (o *Orchestrator) normalize(record Record, target Target) Item {
	city, state := target.City, target.State
	if city == "" || state == "" {
		city, state = LocationFromLink(target.Link)
	}
	reviews, known := ParseReviewCount(record.ReviewCount)
	if !record.CountCaptured() {
		known = false
	}
	return Item{
		Name:         record.Name,
		Link:         target.Link,
		City:         city,
		State:        state,
		Reviews:      reviews,
		ReviewsKnown: known,
		LastReview:   NormalizeDate(record.LastReviewDate),
	}
}

func (o *Orchestrator) targetFailed(req Request, target Target, start time.Time, err error) {
	now := o.clock.Now()
	o.emit(progress.Event{
		RunID:    req.RunID,
		TS:       now,
		Stage:    progress.StageTargetFailed,
		Platform: string(req.Platform),
		Target:   target.Link,
		Dur:      now.Sub(start),
		Note:     err.Error(),
	})
}

func (o *Orchestrator) captureFailure(ctx context.Context, page Page, runID string, index int, logger *zap.Logger) {
	if !o.cfg.CaptureFailures || o.artifacts == nil {
		return
	}
	html, err := page.HTML(ctx)
	if err != nil {
		logger.Warn("capture page html failed", zap.Error(err))
		return
	}
	path := fmt.Sprintf("%s/%d.html", runID, index)
	if prefix := strings.Trim(o.cfg.ArtifactPrefix, "/"); prefix != "" {
		path = prefix + "/" + path
	}
	uri, err := o.artifacts.PutObject(ctx, path, "text/html; charset=utf-8", strings.NewReader(html))
	if err != nil {
		logger.Warn("store failure artifact failed", zap.Error(err))
		return
	}
	logger.Info("failure artifact stored", zap.String("uri", uri))
}

func (o *Orchestrator) wait(ctx context.Context, link string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("crawl canceled: %w", err)
	}
	if o.throttle == nil {
		return nil
	}
	if err := o.throttle.Wait(ctx, link); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("crawl canceled: %w", err)
		}
		return err
	}
	return nil
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	o.emitter.Emit(evt)
}
