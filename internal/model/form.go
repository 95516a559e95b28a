package model

import "time"

// FormStatus is the lifecycle state of an information-request form.
type FormStatus string

// Form status constants. Completed is terminal.
const (
	FormStatusPending   FormStatus = "pending"
	FormStatusCompleted FormStatus = "completed"
)

// Answers maps a field name to the value the candidate supplied.
type Answers map[string]string

// PendingForm is an information request sent to a candidate by email.
type PendingForm struct {
	// Token uniquely identifies the form. It is assigned at creation and
	// never changes.
	Token string `json:"token" db:"token"`

	// SenderEmail is the mailbox the request was sent from. It selects the
	// session used to poll for replies.
	SenderEmail string `json:"sender_email" db:"sender_email"`

	// CandidateEmail is the address a reply is expected from.
	CandidateEmail string `json:"candidate_email" db:"candidate_email"`

	// CreatedAt is when the request was sent; replies older than this are
	// ignored.
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Status FormStatus `json:"status" db:"status"`

	// ResponseData holds the extracted answers once the form is completed.
	ResponseData Answers `json:"response_data,omitempty" db:"-"`

	// CompletedAt is set together with ResponseData on completion.
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"-"`
}

// IsPending reports whether the form is still awaiting a reply.
func (f PendingForm) IsPending() bool {
	return f.Status == FormStatusPending
}
