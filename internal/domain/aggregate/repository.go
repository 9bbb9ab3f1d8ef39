package aggregate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/grocery-orders/internal/infrastructure/store"
)

// DefaultSnapshotEvery is how many events separate two snapshots of one stream.
const DefaultSnapshotEvery = 10

// ErrNotFound is returned by Load when the stream has no snapshot and no events.
var ErrNotFound = errors.New("aggregate: not found")

// Root is an event-sourced aggregate that can be rebuilt from its stream.
type Root interface {
	GetID() string
	GetVersion() int
	SetVersion(int)
	ApplyEvent(store.Event) error
}

// Repository rebuilds aggregates of a single type from the event store and
// snapshots them periodically.
type Repository[T Root] struct {
	events        store.EventStoreInterface
	aggregateType string
	newRoot       func() T
	snapshotEvery int
	now           func() time.Time
}

func NewRepository[T Root](events store.EventStoreInterface, aggregateType string, newRoot func() T) *Repository[T] {
	return &Repository[T]{
		events:        events,
		aggregateType: aggregateType,
		newRoot:       newRoot,
		snapshotEvery: DefaultSnapshotEvery,
		now:           time.Now,
	}
}

// WithSnapshotEvery changes the snapshot interval. n <= 0 disables snapshots.
func (r *Repository[T]) WithSnapshotEvery(n int) *Repository[T] {
	r.snapshotEvery = n
	return r
}

// Load replays the stream of id on top of its latest snapshot. Snapshots
// written for another aggregate type are ignored and the stream is replayed
// from the start.
func (r *Repository[T]) Load(ctx context.Context, id string) (T, error) {
	var zero T
	root := r.newRoot()

	snapshot, err := r.events.GetSnapshot(ctx, id)
	if err != nil {
		return zero, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	if snapshot != nil && snapshot.AggregateType != "" && snapshot.AggregateType != r.aggregateType {
		snapshot = nil
	}

	var events []store.Event
	if snapshot != nil {
		if err := json.Unmarshal(snapshot.State, root); err != nil {
			return zero, fmt.Errorf("decode snapshot %s: %w", id, err)
		}
		root.SetVersion(snapshot.Version)
		events, err = r.events.GetEventsFromVersion(ctx, id, snapshot.Version)
	} else {
		events, err = r.events.GetEvents(ctx, id)
	}
	if err != nil {
		return zero, fmt.Errorf("get events %s: %w", id, err)
	}
	if snapshot == nil && len(events) == 0 {
		return zero, ErrNotFound
	}

	for _, event := range events {
		if err := root.ApplyEvent(event); err != nil {
			return zero, fmt.Errorf("apply %s v%d: %w", event.EventType, event.Version, err)
		}
	}
	return root, nil
}

// Snapshot stores the state of root when its version lands on the interval.
// It reports whether a snapshot was written.
func (r *Repository[T]) Snapshot(ctx context.Context, root T) (bool, error) {
	version := root.GetVersion()
	if r.snapshotEvery <= 0 || version <= 0 || version%r.snapshotEvery != 0 {
		return false, nil
	}

	state, err := json.Marshal(root)
	if err != nil {
		return false, fmt.Errorf("encode snapshot %s: %w", root.GetID(), err)
	}
	err = r.events.SaveSnapshot(ctx, &store.Snapshot{
		AggregateID:   root.GetID(),
		AggregateType: r.aggregateType,
		Version:       version,
		State:         state,
		CreatedAt:     r.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("save snapshot %s: %w", root.GetID(), err)
	}
	return true, nil
}
