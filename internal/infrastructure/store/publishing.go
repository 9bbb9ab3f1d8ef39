package store

import (
	"context"

	"go.uber.org/zap"
)

// PublishingEventStore forwards every appended event to a Publisher. It gives
// stores without a built-in bus hook (DynamoDB) the same post-append delivery
// the memory and Postgres stores have.
type PublishingEventStore struct {
	EventStoreInterface
	publisher Publisher
	logger    *zap.Logger
}

func NewPublishingEventStore(inner EventStoreInterface, publisher Publisher, logger *zap.Logger) *PublishingEventStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublishingEventStore{EventStoreInterface: inner, publisher: publisher, logger: logger}
}

func (s *PublishingEventStore) Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error) {
	event, err := s.EventStoreInterface.Append(ctx, aggregateID, aggregateType, eventType, expectedVersion, data)
	if err != nil {
		return nil, err
	}
	publishCommitted(ctx, s.publisher, s.logger, *event)
	return event, nil
}

// publishCommitted delivers an event that is already stored. The append stands
// whatever happens here, so a delivery failure is logged and never returned:
// callers must not retry a write that committed. Read models pick the event up
// again on replay.
func publishCommitted(ctx context.Context, publisher Publisher, logger *zap.Logger, event Event) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, event.AggregateID, event); err != nil {
		logger.Error("publish stored event",
			zap.String("event_id", event.ID),
			zap.String("aggregate_id", event.AggregateID),
			zap.String("event_type", event.EventType),
			zap.Int("version", event.Version),
			zap.Error(err),
		)
	}
}
