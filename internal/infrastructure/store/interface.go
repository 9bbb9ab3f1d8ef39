package store

import (
	"context"
	"errors"
)

// ErrVersionConflict is returned by Append when another writer has already
// stored an event at the expected version of the aggregate.
var ErrVersionConflict = errors.New("store: aggregate version conflict")

// EventStoreInterface defines the interface for event stores.
//
// Append writes the event at expectedVersion+1 and must fail with
// ErrVersionConflict when the aggregate has moved past expectedVersion.
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error)
	GetEvents(ctx context.Context, aggregateID string) ([]Event, error)
	GetEventsFromVersion(ctx context.Context, aggregateID string, fromVersion int) ([]Event, error)
	GetAllEvents(ctx context.Context) ([]Event, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
}

// Publisher delivers stored events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, key string, event any) error
}
