// Package events publishes marketplace activity (new listings, sales, bids)
// for other services to consume.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	TypeListingCreated = "listing.created"
	TypeListingSold    = "listing.sold"
	TypeBidPlaced      = "listing.bid"

	SubjectPrefix = "market"
)

type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// New stamps an event with a fresh id and the current time.
func New(eventType string, data any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

// Subject is the NATS subject the event is published on.
func (e Event) Subject() string {
	return SubjectPrefix + "." + e.Type
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close()
}

// Nop discards events. It is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}
