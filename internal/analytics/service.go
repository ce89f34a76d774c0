package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/clock/system"
	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/metrics"
	"github.com/JakeFAU/review-trends/internal/store"
)

// ErrHistoryUnavailable is returned when the snapshot history cannot be read.
var ErrHistoryUnavailable = errors.New("snapshot history unavailable")

// HistorySource returns every stored snapshot.
type HistorySource interface {
	ListAll(ctx context.Context) ([]store.Snapshot, error)
}

// Service loads the history and computes the report on demand.
type Service struct {
	source HistorySource
	clock  crawler.Clock
	logger *zap.Logger
}

// NewService wires the history source and clock.
func NewService(source HistorySource, clock crawler.Clock, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Service{source: source, clock: clock, logger: logger}
}

// Report reads the full history and computes a fresh report. Any history
// failure fails the whole report.
func (s *Service) Report(ctx context.Context) (Report, error) {
	if s.source == nil {
		return Report{}, fmt.Errorf("%w: no history source configured", ErrHistoryUnavailable)
	}
	start := time.Now()
	snaps, err := s.source.ListAll(ctx)
	if err != nil {
		s.logger.Error("failed to load snapshot history", zap.Error(err))
		return Report{}, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	report := Compute(snaps, s.clock.Now())
	metrics.ObserveAnalytics(time.Since(start))
	s.logger.Debug("analytics report computed",
		zap.Int("snapshots", len(snaps)),
		zap.Int("establishments", report.KPIs.TotalEstablishments),
		zap.Duration("dur", time.Since(start)),
	)
	return report, nil
}
