// Package queue defines the domain events published to the message broker,
// the RabbitMQ publisher and the audit consumer that records them.
package queue

import (
    "context"
    "time"
)

// Event types.
const (
    ImageUploaded          = "image.uploaded"
    ImageDeleted           = "image.deleted"
    ImageReordered         = "image.reordered"
    ImageEdited            = "image.edited"
    PasswordResetRequested = "password.reset_requested"
)

// Event is the single envelope for everything put on the events queue.  It
// carries enough for consumers (audit log, mailer, analytics) to act without
// reading the primary database.
type Event struct {
    Type       string   `json:"type"`
    UserID     string   `json:"user_id"`
    ImageIDs   []string `json:"image_ids,omitempty"`
    Titles     []string `json:"titles,omitempty"`
    Email      string   `json:"email,omitempty"`
    ResetToken string   `json:"reset_token,omitempty"`
    OccurredAt string   `json:"occurred_at"`
}

// NewEvent stamps an event with the current UTC time.
func NewEvent(typ, userID string) Event {
    return Event{Type: typ, UserID: userID, OccurredAt: time.Now().UTC().Format(time.RFC3339)}
}

// Publisher sends events to the broker.
type Publisher interface {
    Publish(ctx context.Context, ev Event) error
}

// NopPublisher drops every event.  It is used when events are disabled.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
