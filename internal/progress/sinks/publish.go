package sinks

import (
	"context"
	"errors"
	"fmt"

	"github.com/JakeFAU/wayback-crawler/internal/progress"
)

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// PublishSink forwards every event to a message topic. Lifecycle stages
// always go out; per-URL stages can be filtered with RunEventsOnly.
type PublishSink struct {
	publisher     Publisher
	topic         string
	runEventsOnly bool
}

// NewPublishSink creates a sink for topic.
func NewPublishSink(publisher Publisher, topic string, runEventsOnly bool) *PublishSink {
	return &PublishSink{publisher: publisher, topic: topic, runEventsOnly: runEventsOnly}
}

// Consume publishes the batch, continuing past individual failures.
func (s *PublishSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.publisher == nil {
		return nil
	}
	var errs []error
	for _, evt := range batch {
		if s.runEventsOnly && !isRunStage(evt.Stage) {
			continue
		}
		if _, err := s.publisher.Publish(ctx, s.topic, evt); err != nil {
			errs = append(errs, fmt.Errorf("publish %s: %w", evt.Stage, err))
		}
	}
	return errors.Join(errs...)
}

// Close implements progress.Sink.
func (s *PublishSink) Close(context.Context) error {
	return nil
}

func isRunStage(stage progress.Stage) bool {
	switch stage {
	case progress.StageRunStart, progress.StageRunDone, progress.StageRunStopped, progress.StageDomainSkipped:
		return true
	}
	return false
}
