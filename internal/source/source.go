package source

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/nhle/formpoll/internal/model"
)

// AuthError indicates that a session was rejected by its provider, for
// example because the access token expired mid-poll.
type AuthError struct {
	Provider model.Provider
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error (%s): %s", e.Provider, e.Message)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// Messages is a lazy, finite sequence of candidate messages. Nothing is
// requested from the provider until the sequence is ranged over, and every
// range issues a fresh query. A non-nil error ends the sequence.
type Messages = iter.Seq2[model.CandidateMessage, error]

// Adapter hides the query and paging differences of a mail provider.
// Implementations are read-only with respect to the remote mailbox.
type Adapter interface {
	// Provider returns the provider this adapter serves.
	Provider() model.Provider

	// FetchNewMessages yields messages from candidateEmail received after
	// since, most relevant first.
	FetchNewMessages(
		ctx context.Context,
		session model.Session,
		candidateEmail string,
		since time.Time,
	) Messages
}

// Registry maps providers to their adapters.
type Registry struct {
	adapters map[model.Provider]Adapter
}

// NewRegistry builds a registry from the given adapters. A later adapter
// for the same provider replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[model.Provider]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Provider()] = a
	}
	return r
}

// Lookup returns the adapter for p.
func (r *Registry) Lookup(p model.Provider) (Adapter, bool) {
	a, ok := r.adapters[p]
	return a, ok
}

// Fail returns a sequence that yields only err.
func Fail(err error) Messages {
	return func(yield func(model.CandidateMessage, error) bool) {
		yield(model.CandidateMessage{}, err)
	}
}
