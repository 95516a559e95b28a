// Package form holds the lifecycle rules of an information-request form.
//
// A form starts pending and moves to completed exactly once, when a reply
// with extractable answers is found. There is no edge back to pending.
package form

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/nhle/formpoll/internal/model"
)

var (
	// ErrNotPending means a transition was requested for a form that is no
	// longer pending. Callers only ever pass rows returned by a pending
	// listing, so this indicates a broken contract, not a normal outcome.
	ErrNotPending = errors.New("form is not pending")

	// ErrNoAnswers means a transition was requested without any answers.
	ErrNoAnswers = errors.New("no answers to record")
)

// Completion is the state to persist when a form completes.
type Completion struct {
	Token        string
	ResponseData model.Answers
	CompletedAt  time.Time
}

// Complete applies the pending -> completed transition. The completion time
// is never earlier than the form's creation time.
func Complete(f model.PendingForm, answers model.Answers, at time.Time) (Completion, error) {
	if !f.IsPending() {
		return Completion{}, fmt.Errorf("completing form %s in status %q: %w", f.Token, f.Status, ErrNotPending)
	}
	if len(answers) == 0 {
		return Completion{}, fmt.Errorf("completing form %s: %w", f.Token, ErrNoAnswers)
	}

	if at.Before(f.CreatedAt) {
		at = f.CreatedAt
	}

	return Completion{
		Token:        f.Token,
		ResponseData: maps.Clone(answers),
		CompletedAt:  at.UTC(),
	}, nil
}

// Apply returns f as it looks after c has been persisted.
func Apply(f model.PendingForm, c Completion) model.PendingForm {
	completedAt := c.CompletedAt
	f.Status = model.FormStatusCompleted
	f.ResponseData = c.ResponseData
	f.CompletedAt = &completedAt
	return f
}
