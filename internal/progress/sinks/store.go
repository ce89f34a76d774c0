package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/progress"
	"github.com/JakeFAU/review-trends/internal/store"
)

// StoreSink records run lifecycle events in a store.RunRepository so runs can
// be listed and inspected after they finish.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume forwards run start and terminal events to the repository. Target
// events are not persisted individually. Repository errors are returned.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	for _, evt := range batch {
		switch evt.Stage {
		case progress.StageRunStart:
			if err := s.repo.StartRun(ctx, evt.RunID, evt.Platform, evt.Targets, evt.TS); err != nil {
				return fmt.Errorf("start run: %w", err)
			}
		case progress.StageRunDone, progress.StageRunError:
			if err := s.repo.FinishRun(ctx, evt.RunID, outcomeFor(evt)); err != nil {
				return fmt.Errorf("finish run: %w", err)
			}
		}
	}
	return nil
}

func outcomeFor(evt progress.Event) store.RunOutcome {
	out := store.RunOutcome{
		FinishedAt: evt.TS,
		Status:     store.RunSuccess,
		Succeeded:  evt.Succeeded,
		Failed:     evt.Failed,
	}
	if evt.Stage == progress.StageRunError {
		out.Status = store.RunError
		if evt.Note != "" {
			note := evt.Note
			out.Error = &note
		}
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}
