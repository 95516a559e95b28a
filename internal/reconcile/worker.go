// Package reconcile checks a single pending form against its sender's
// mailbox and completes it when the candidate has replied.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/formpoll/internal/extract"
	"github.com/nhle/formpoll/internal/form"
	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/source"
	"github.com/nhle/formpoll/internal/store"
)

var (
	// ErrNoSession means no mailbox session exists for the form's sender.
	ErrNoSession = errors.New("no session for sender")

	// ErrNoAdapter means the session's provider has no registered adapter.
	ErrNoAdapter = errors.New("no adapter for provider")
)

// DefaultFetchTimeout bounds one provider fetch when no option overrides it.
const DefaultFetchTimeout = 30 * time.Second

// FormWriter persists a completion only while the form is still pending.
type FormWriter interface {
	CompareAndSetCompleted(
		ctx context.Context,
		token string,
		responseData model.Answers,
		completedAt time.Time,
	) (bool, error)
}

// Publisher delivers events to interested observers.
type Publisher interface {
	Publish(ctx context.Context, e model.Event) error
}

// Result describes the outcome of one reconciliation.
type Result struct {
	// Transitioned is true when this call moved the form to completed.
	Transitioned bool

	// Form is the form as it stands after the call.
	Form model.PendingForm
}

// Worker reconciles forms one at a time. It holds no per-form state, so a
// single Worker may be used from many goroutines.
type Worker struct {
	sessions     store.SessionStore
	forms        FormWriter
	bus          Publisher
	adapters     *source.Registry
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithFetchTimeout bounds each provider fetch. Non-positive values are ignored.
func WithFetchTimeout(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.fetchTimeout = d
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(w *Worker) { w.now = now }
}

// WithLogger sets the logger used for per-form diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a Worker with the given collaborators.
func NewWorker(
	sessions store.SessionStore,
	forms FormWriter,
	bus Publisher,
	adapters *source.Registry,
	opts ...Option,
) *Worker {
	w := &Worker{
		sessions:     sessions,
		forms:        forms,
		bus:          bus,
		adapters:     adapters,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Reconcile looks for the candidate's reply to f and, if one with
// extractable answers exists, completes the form and publishes a
// form.completed event. It performs at most one store write and one
// publish. A form completed concurrently by another caller is not an
// error; the call simply reports no transition.
func (w *Worker) Reconcile(ctx context.Context, f model.PendingForm) (Result, error) {
	if !f.IsPending() {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: %w", f.Token, form.ErrNotPending)
	}

	sess, err := w.sessions.GetSession(ctx, f.SenderEmail)
	if errors.Is(err, store.ErrNotFound) {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: %w: %s", f.Token, ErrNoSession, f.SenderEmail)
	}
	if err != nil {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: loading session: %w", f.Token, err)
	}

	adapter, ok := w.adapters.Lookup(sess.Provider)
	if !ok {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: %w: %q", f.Token, ErrNoAdapter, sess.Provider)
	}

	msg, answers, found, err := w.findReply(ctx, adapter, *sess, f)
	if err != nil {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: %w", f.Token, err)
	}
	if !found {
		w.logger.Debug("no reply yet", "token", f.Token, "provider", sess.Provider)
		return Result{Form: f}, nil
	}

	at := w.now()
	if msg.ReceivedAt.After(at) {
		at = msg.ReceivedAt
	}
	c, err := form.Complete(f, answers, at)
	if err != nil {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: %w", f.Token, err)
	}

	// Persist and publish must not be split by a cancellation arriving
	// between them.
	commitCtx := context.WithoutCancel(ctx)

	won, err := w.forms.CompareAndSetCompleted(commitCtx, c.Token, c.ResponseData, c.CompletedAt)
	if err != nil {
		return Result{Form: f}, fmt.Errorf("reconciling form %s: persisting completion: %w", f.Token, err)
	}
	if !won {
		w.logger.Info("form already completed elsewhere", "token", f.Token)
		return Result{Form: f}, nil
	}

	completed := form.Apply(f, c)
	event := model.Event{
		ID:         uuid.New().String(),
		Name:       model.EventFormCompleted,
		Token:      f.Token,
		OccurredAt: c.CompletedAt,
	}
	if err := w.bus.Publish(commitCtx, event); err != nil {
		w.logger.Error("form completed but event not published",
			"token", f.Token, "event_id", event.ID, "error", err)
		return Result{Transitioned: true, Form: completed},
			fmt.Errorf("reconciling form %s: publishing %s: %w", f.Token, event.Name, err)
	}

	w.logger.Info("form completed",
		"token", f.Token,
		"provider", sess.Provider,
		"message_id", msg.ID,
		"fields", len(answers),
	)
	return Result{Transitioned: true, Form: completed}, nil
}

// findReply walks the adapter's sequence under the fetch timeout and
// returns the first message whose body yields answers.
func (w *Worker) findReply(
	ctx context.Context,
	adapter source.Adapter,
	sess model.Session,
	f model.PendingForm,
) (model.CandidateMessage, model.Answers, bool, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, w.fetchTimeout)
	defer cancel()

	for msg, err := range adapter.FetchNewMessages(fetchCtx, sess, f.CandidateEmail, f.CreatedAt) {
		if err != nil {
			return model.CandidateMessage{}, nil, false, fmt.Errorf("fetching messages from %s: %w", adapter.Provider(), err)
		}
		if answers, ok := extract.Extract(msg.Body); ok {
			return msg, answers, true, nil
		}
		w.logger.Debug("reply has no answers", "token", f.Token, "message_id", msg.ID)
	}
	return model.CandidateMessage{}, nil, false, nil
}
