package model

import "time"

// EventFormCompleted is published once per form when it transitions to
// completed.
const EventFormCompleted = "form.completed"

// Event is a notification emitted after a state change has been persisted.
type Event struct {
	// ID is unique per event and lets subscribers drop duplicates.
	ID string `json:"id"`

	// Name is the event type, e.g. EventFormCompleted.
	Name string `json:"name"`

	// Token is the form the event refers to.
	Token string `json:"token"`

	OccurredAt time.Time `json:"occurred_at"`
}

// CompletionPayload is the wire shape of a form.completed event.
type CompletionPayload struct {
	Token string `json:"token"`
}

// Payload returns the wire-visible body of the event.
func (e Event) Payload() CompletionPayload {
	return CompletionPayload{Token: e.Token}
}
