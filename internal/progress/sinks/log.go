package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch. Target events go to debug level so a
// large run does not flood production logs.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("run_id", evt.RunID),
			zap.String("stage", string(evt.Stage)),
			zap.String("platform", evt.Platform),
			zap.Duration("dur", evt.Dur),
		}
		if evt.Target != "" {
			fields = append(fields, zap.String("target", evt.Target))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		switch evt.Stage {
		case progress.StageTargetDone, progress.StageTargetFailed:
			s.logger.Debug("progress event", fields...)
		default:
			fields = append(fields,
				zap.Int("targets", evt.Targets),
				zap.Int("succeeded", evt.Succeeded),
				zap.Int("failed", evt.Failed),
			)
			s.logger.Info("progress event", fields...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
