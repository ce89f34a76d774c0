package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/review-trends/internal/crawler"
	"github.com/JakeFAU/review-trends/internal/progress"
)

// RunNotification is published once per finished crawl run.
type RunNotification struct {
	RunID      string    `json:"run_id"`
	Platform   string    `json:"platform"`
	Status     string    `json:"status"`
	Targets    int       `json:"targets"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// NotifySink publishes a RunNotification for every terminal run event.
type NotifySink struct {
	publisher crawler.Publisher
	topic     string
	logger    *zap.Logger
}

// NewNotifySink wires a publisher and topic.
func NewNotifySink(publisher crawler.Publisher, topic string, logger *zap.Logger) *NotifySink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifySink{publisher: publisher, topic: topic, logger: logger}
}

// Consume publishes terminal events; other stages are ignored.
func (s *NotifySink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	for _, evt := range batch {
		if !evt.Terminal() {
			continue
		}
		msg := RunNotification{
			RunID:      evt.RunID,
			Platform:   evt.Platform,
			Status:     "success",
			Targets:    evt.Targets,
			Succeeded:  evt.Succeeded,
			Failed:     evt.Failed,
			FinishedAt: evt.TS,
		}
		if evt.Stage == progress.StageRunError {
			msg.Status = "error"
			msg.Error = evt.Note
		}
		id, err := s.publisher.Publish(ctx, s.topic, msg)
		if err != nil {
			return fmt.Errorf("publish run notification: %w", err)
		}
		s.logger.Debug("run notification published", zap.String("run_id", evt.RunID), zap.String("message_id", id))
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *NotifySink) Close(context.Context) error {
	return nil
}
