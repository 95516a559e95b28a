// Package api serves the operational HTTP endpoints: scheduler health, a
// manual poll trigger and the live completion event stream.
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/nhle/formpoll/internal/model"
	"github.com/nhle/formpoll/internal/sync"
)

// StatusSource exposes the scheduler's state.
type StatusSource interface {
	Status() sync.Status
	Trigger()
}

// Subscriber hands out event subscriptions.
type Subscriber interface {
	Subscribe() (<-chan model.Event, func())
}

// NewRouter creates the chi router with all routes and middleware.
func NewRouter(poller StatusSource, events Subscriber, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(Logger(logger))
	r.Use(Recovery(logger))

	r.Get("/healthz", handleHealth(poller))
	r.Post("/poll", handleTrigger(poller))
	r.Get("/events", handleEvents(events, logger))

	return r
}
