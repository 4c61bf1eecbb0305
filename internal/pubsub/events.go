// Package pubsub provides a small generic publish/subscribe broker used
// to fan events out from the data layer into the Bubble Tea loop.
package pubsub

import (
	"context"
	"time"
)

// EventType names what happened to the payload.
type EventType string

const (
	// FetchedEvent announces a collection page applied to the cache.
	FetchedEvent EventType = "fetched"
	// FetchFailedEvent announces a classified fetch failure.
	FetchFailedEvent EventType = "fetch_failed"
	// ChangedEvent announces a rebuilt view model snapshot.
	ChangedEvent EventType = "changed"
	// LoggedEvent carries a log line to the debug overlay.
	LoggedEvent EventType = "logged"
)

// Event wraps a typed payload with its event type and publish time.
type Event[T any] struct {
	Type      EventType
	Payload   T
	Timestamp time.Time
}

// Subscriber hands out subscription channels.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher pushes events to all current subscribers.
type Publisher[T any] interface {
	Publish(eventType EventType, payload T)
}
