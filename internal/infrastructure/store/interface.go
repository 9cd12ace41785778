package store

import "context"

// EventStoreInterface defines the interface for event stores. Append is
// conditional: it fails with ErrVersionConflict when the stream's current
// version differs from expectedVersion (pass AnyVersion to append at the
// tail unconditionally).
type EventStoreInterface interface {
	Append(ctx context.Context, aggregateID, aggregateType, eventType string, expectedVersion int, data any) (*Event, error)
	GetEvents(aggregateID string) []Event
	GetEventsFromVersion(aggregateID string, version int) []Event
	GetEventsByType(aggregateType string) []Event
	GetAllEvents() []Event
	GetSnapshot(ctx context.Context, aggregateID string) (*Snapshot, error)
	SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
}
