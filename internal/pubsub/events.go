// Package pubsub provides a generic publish/subscribe event system used to
// observe the engine: instance lifecycle, stored writes, cache
// invalidations and resolutions.
package pubsub

import "time"

// EventType represents the type of event being published.
type EventType string

const (
	InstanceCreatedEvent  EventType = "instance-created"
	ValueWrittenEvent     EventType = "value-written"
	FieldInvalidatedEvent EventType = "field-invalidated"
	FieldResolvedEvent    EventType = "field-resolved"
	SchemaChangedEvent    EventType = "schema-changed"
	LogEntryEvent         EventType = "log-entry"
)

// Event represents a published event with a typed payload.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}
