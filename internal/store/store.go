package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/formpoll/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// FormFilter controls filtering and pagination for form listings.
type FormFilter struct {
	Status *model.FormStatus
	Limit  int
	Offset int
}

// FormStore is the persistence contract the reconciliation engine relies on.
type FormStore interface {
	// ListPending returns every form whose status is pending, oldest first.
	ListPending(ctx context.Context) ([]model.PendingForm, error)

	// CompareAndSetCompleted records the completion of a form only if it is
	// still pending at write time. It reports whether the row changed.
	CompareAndSetCompleted(
		ctx context.Context,
		token string,
		responseData model.Answers,
		completedAt time.Time,
	) (bool, error)
}

// SessionStore resolves the mailbox session of a form's sender.
type SessionStore interface {
	// GetSession returns the session owned by email, or ErrNotFound.
	GetSession(ctx context.Context, email string) (*model.Session, error)
}

// Store defines the full persistence interface for forms and sessions.
type Store interface {
	FormStore
	SessionStore

	CreateForm(ctx context.Context, f model.PendingForm) (model.PendingForm, error)
	GetForm(ctx context.Context, token string) (*model.PendingForm, error)
	ListForms(ctx context.Context, filter FormFilter) ([]model.PendingForm, error)

	UpsertSession(ctx context.Context, s model.Session) error
}
