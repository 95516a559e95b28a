package model

import "time"

// CandidateMessage is a provider-neutral view of a message that may be a
// reply to a pending form.
type CandidateMessage struct {
	// ID is the provider's message identifier, used only for logging.
	ID string

	ReceivedAt time.Time

	// Body is the plain-text content of the message.
	Body string
}
